package viewdb

import (
	"context"
	"sync"

	"github.com/autom8ter/machine/v4"
	"github.com/autom8ter/viewdb/errors"
)

const changeChannel = "changes"

// ChangeStream calls fn with the changeset of every commit published after it starts, until fn returns false or
// an error, the context is cancelled, or the database closes. Changesets are buffered for a slow fn, so it never
// holds up writers, and fn may itself run transactions.
func (d *Database) ChangeStream(ctx context.Context, fn func(ctx context.Context, changes *Changeset) (bool, error)) error {
	if d.closed.Load() {
		return errors.New(errors.Forbidden, "database is closed")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()
	queue := newChangeQueue()
	subCtx, unsubscribe := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.machine.Subscribe(subCtx, changeChannel, func(ctx context.Context, msg machine.Message) (bool, error) {
			if changes, ok := msg.Body.(*Changeset); ok {
				queue.push(changes)
			}
			return true, nil
		})
	}()
	defer func() {
		// no publish may run while the subscription channel is closed
		d.publishMu.Lock()
		defer d.publishMu.Unlock()
		unsubscribe()
		<-done
	}()
	for {
		changes, ok := queue.pop(ctx)
		if !ok {
			return nil
		}
		cont, err := fn(ctx, changes)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// enqueueChanges records a committed changeset. The caller must hold the write lock.
func (d *Database) enqueueChanges(changes *Changeset) {
	d.outboxMu.Lock()
	defer d.outboxMu.Unlock()
	d.outbox = append(d.outbox, changes)
}

// flushChanges publishes every recorded changeset in commit order. It must be called without holding the write
// lock.
func (d *Database) flushChanges() {
	d.publishMu.Lock()
	defer d.publishMu.Unlock()
	d.outboxMu.Lock()
	outbox := d.outbox
	d.outbox = nil
	d.outboxMu.Unlock()
	for _, changes := range outbox {
		d.machine.Publish(d.ctx, machine.Message{
			Channel: changeChannel,
			Body:    changes,
		})
	}
}

// changeQueue is an unbounded FIFO of changesets between a subscription and a ChangeStream consumer
type changeQueue struct {
	mu     sync.Mutex
	items  []*Changeset
	signal chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{signal: make(chan struct{}, 1)}
}

func (q *changeQueue) push(changes *Changeset) {
	q.mu.Lock()
	q.items = append(q.items, changes)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop waits for the next changeset. It returns false once ctx is cancelled.
func (q *changeQueue) pop(ctx context.Context) (*Changeset, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			changes := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return changes, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.signal:
		}
	}
}
