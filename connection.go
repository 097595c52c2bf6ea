package viewdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autom8ter/viewdb/errors"
	"github.com/samber/lo"
	"github.com/segmentio/ksuid"
)

// Connection is a handle to the database owned by a single goroutine. It caches the latest snapshot it has
// applied and queues the changesets of commits made by other connections until its next transaction.
// Transactions on one connection are serialized.
type Connection struct {
	id        string
	db        *Database
	mu        sync.Mutex
	pendingMu sync.Mutex
	pending   []*version
	current   atomic.Pointer[version]
	changes   []*Changeset
	closed    atomic.Bool
}

// Connect opens a new connection to the database
func (d *Database) Connect() (*Connection, error) {
	if d.closed.Load() {
		return nil, errors.New(errors.Forbidden, "database is closed")
	}
	c := &Connection{
		id: ksuid.New().String(),
		db: d,
	}
	c.current.Store(d.store.attach(c))
	d.connections.Set(c.id, c)
	return c, nil
}

// ID returns the unique id of the connection
func (c *Connection) ID() string {
	return c.id
}

// Snapshot returns the snapshot the connection last applied
func (c *Connection) Snapshot() uint64 {
	return c.current.Load().snapshot
}

// Changes returns the changesets consumed by the connection's latest reconciliation, in commit order. A
// connection reconciles at the start of every transaction.
func (c *Connection) Changes() []*Changeset {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.changes
}

// Reconcile applies every pending changeset and returns them in commit order
func (c *Connection) Reconcile(ctx context.Context) ([]*Changeset, error) {
	if err := c.usable(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconcile(ctx), nil
}

func (c *Connection) enqueue(v *version) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending = append(c.pending, v)
}

// reconcile moves the connection to the newest queued version and returns the changesets it consumed. The
// caller must hold c.mu.
func (c *Connection) reconcile(ctx context.Context) []*Changeset {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.changes = lo.Map(pending, func(v *version, _ int) *Changeset {
		return v.changeset
	})
	changes := c.changes
	c.pendingMu.Unlock()
	if len(pending) == 0 {
		return changes
	}
	prev := c.current.Swap(pending[len(pending)-1])
	c.db.store.release(ctx, prev)
	for _, v := range pending[:len(pending)-1] {
		c.db.store.release(ctx, v)
	}
	return changes
}

func (c *Connection) usable(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New(errors.Forbidden, "connection is closed")
	}
	if c.db.closed.Load() {
		return errors.New(errors.Forbidden, "database is closed")
	}
	if s := scopeFrom(ctx); s != nil && s.holds(c) {
		return errors.New(errors.Forbidden, "nested transaction on connection %s", c.id)
	}
	return nil
}

// Read runs fn in a read transaction bound to the connection's latest snapshot. Pending changesets are applied
// first. Read never waits for a write transaction.
func (c *Connection) Read(ctx context.Context, fn func(ctx context.Context, tx ReadTx) error) error {
	if err := c.usable(ctx); err != nil {
		return err
	}
	ctx = withScope(ctx, c, false)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconcile(ctx)
	tx := newReadTransaction(c.db, c.current.Load())
	defer tx.close(ctx)
	return fn(ctx, tx)
}

// ReadWrite runs fn in a write transaction. Write transactions are serialized across the database. If fn returns
// an error or panics, or the row store fails to commit, every change is discarded. Otherwise the changes are
// published as a new snapshot.
func (c *Connection) ReadWrite(ctx context.Context, fn func(ctx context.Context, tx WriteTx) error) error {
	_, err := c.readWrite(ctx, fn)
	return err
}

func (c *Connection) readWrite(ctx context.Context, fn func(ctx context.Context, tx WriteTx) error) (*Changeset, error) {
	if err := c.usable(ctx); err != nil {
		return nil, err
	}
	if s := scopeFrom(ctx); s != nil && s.writing() {
		return nil, errors.New(errors.Forbidden, "nested write transaction")
	}
	ctx = withScope(ctx, c, true)
	changes, err := c.commitWrite(ctx, fn)
	if err != nil {
		return nil, err
	}
	c.db.flushChanges()
	return changes, nil
}

// commitWrite runs fn under the connection and write locks and publishes the resulting snapshot to the other
// connections. The changeset is left in the outbox for the change stream.
func (c *Connection) commitWrite(ctx context.Context, fn func(ctx context.Context, tx WriteTx) error) (*Changeset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.db
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.closed.Load() {
		return nil, errors.New(errors.Forbidden, "database is closed")
	}
	start := time.Now()
	c.reconcile(ctx)
	base := c.current.Load()
	tx, err := newWriteTransaction(ctx, d, base)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			tx.rollback(ctx)
			d.metrics.rollbacks.Inc()
			d.logger.Error(ctx, "write transaction panicked", fmt.Errorf("%v", r), map[string]any{
				"snapshot": base.snapshot,
			})
			panic(r)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		tx.rollback(ctx)
		d.metrics.rollbacks.Inc()
		d.logger.Debug(ctx, "write transaction rolled back", map[string]any{
			"snapshot": base.snapshot,
			"error":    err.Error(),
		})
		return nil, err
	}
	next, err := tx.commit(ctx)
	if err != nil {
		d.metrics.rollbacks.Inc()
		d.logger.Error(ctx, "failed to commit write transaction", err, map[string]any{
			"snapshot": base.snapshot,
		})
		return nil, err
	}
	committed = true
	d.store.publish(ctx, next, c)
	prev := c.current.Swap(next)
	d.store.release(ctx, prev)
	d.enqueueChanges(next.changeset)
	d.metrics.commits.Inc()
	d.metrics.commitLatency.Observe(time.Since(start).Seconds())
	d.logger.Debug(ctx, "committed write transaction", map[string]any{
		"snapshot":  next.snapshot,
		"kvVersion": next.kvVersion,
	})
	return next.changeset, nil
}

// Close closes the connection. Pending changesets are dropped.
func (c *Connection) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.store.detach(c)
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()
	for _, v := range pending {
		c.db.store.release(ctx, v)
	}
	c.db.store.release(ctx, c.current.Load())
	c.db.connections.Del(c.id)
	return nil
}

type scopeKey struct{}

// txScope records the transactions running in a context so nested misuse can be rejected instead of deadlocking
type txScope struct {
	parent *txScope
	conn   *Connection
	write  bool
}

func scopeFrom(ctx context.Context) *txScope {
	s, _ := ctx.Value(scopeKey{}).(*txScope)
	return s
}

func withScope(ctx context.Context, c *Connection, write bool) context.Context {
	return context.WithValue(ctx, scopeKey{}, &txScope{
		parent: scopeFrom(ctx),
		conn:   c,
		write:  write,
	})
}

func (s *txScope) holds(c *Connection) bool {
	for p := s; p != nil; p = p.parent {
		if p.conn == c {
			return true
		}
	}
	return false
}

func (s *txScope) writing() bool {
	for p := s; p != nil; p = p.parent {
		if p.write {
			return true
		}
	}
	return false
}
