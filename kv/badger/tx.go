package badger

import (
	"context"

	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/kv"
	"github.com/autom8ter/viewdb/kv/kvutil"
	"github.com/dgraph-io/badger/v3"
)

type badgerTx struct {
	opts   kv.TxOpts
	txn    *badger.Txn
	db     *badgerKV
	readTs uint64
	done   bool
}

func (b *badgerTx) NewIterator(kopts kv.IterOpts) (kv.Iterator, error) {
	if b.done {
		return nil, errors.New(errors.Forbidden, "transaction already closed")
	}
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.PrefetchSize = 10
	opts.Prefix = kopts.Prefix
	opts.Reverse = kopts.Reverse
	iter := b.txn.NewIterator(opts)
	seek := kopts.Seek
	if seek == nil && kopts.Prefix != nil {
		if kopts.Reverse {
			seek = kvutil.ReverseSeekKey(kopts.Prefix)
		} else {
			seek = kopts.Prefix
		}
	}
	if seek == nil {
		iter.Rewind()
	} else {
		iter.Seek(seek)
	}
	return &badgerIterator{iter: iter, opts: kopts}, nil
}

func (b *badgerTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	if b.done {
		return nil, errors.New(errors.Forbidden, "transaction already closed")
	}
	i, err := b.txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return i.ValueCopy(nil)
}

func (b *badgerTx) Set(ctx context.Context, key, value []byte) error {
	if b.opts.IsReadOnly {
		return errors.New(errors.Forbidden, "writes forbidden in read-only transaction")
	}
	if b.done {
		return errors.New(errors.Forbidden, "transaction already closed")
	}
	return b.txn.SetEntry(&badger.Entry{
		Key:   key,
		Value: value,
	})
}

func (b *badgerTx) Delete(ctx context.Context, key []byte) error {
	if b.opts.IsReadOnly {
		return errors.New(errors.Forbidden, "writes forbidden in read-only transaction")
	}
	if b.done {
		return errors.New(errors.Forbidden, "transaction already closed")
	}
	return b.txn.Delete(key)
}

func (b *badgerTx) Commit(ctx context.Context) (uint64, error) {
	if b.done {
		return 0, errors.New(errors.Forbidden, "transaction already closed")
	}
	b.done = true
	if b.opts.IsReadOnly {
		b.txn.Discard()
		return b.readTs, nil
	}
	b.db.commitMu.Lock()
	defer b.db.commitMu.Unlock()
	commitTs := b.db.version.Load() + 1
	if err := b.txn.CommitAt(commitTs, nil); err != nil {
		return 0, errors.Wrap(err, errors.Internal, "failed to commit at version %v", commitTs)
	}
	b.db.version.Store(commitTs)
	return commitTs, nil
}

func (b *badgerTx) Rollback(ctx context.Context) {
	if b.done {
		return
	}
	b.done = true
	b.txn.Discard()
}

func (b *badgerTx) Close(ctx context.Context) {
	b.Rollback(ctx)
}
