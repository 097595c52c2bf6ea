package tikv

import (
	"context"

	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/kv"
	"github.com/autom8ter/viewdb/kv/kvutil"
	tikvErr "github.com/tikv/client-go/v2/error"
	"github.com/tikv/client-go/v2/txnkv/transaction"
)

type tikvTx struct {
	txn      *transaction.KVTxn
	readOnly bool
	db       *tikvKV
	done     bool
}

func (t *tikvTx) NewIterator(kopts kv.IterOpts) (kv.Iterator, error) {
	if kopts.Reverse {
		seek := kopts.Seek
		if seek == nil {
			seek = kvutil.NextPrefix(kopts.Prefix)
		}
		iter, err := t.txn.IterReverse(seek)
		if err != nil {
			return nil, err
		}
		return &tikvIterator{iter: iter, opts: kopts}, nil
	}
	start := kopts.Seek
	if start == nil {
		start = kopts.Prefix
	}
	var upper []byte
	if kopts.Prefix != nil {
		upper = kvutil.NextPrefix(kopts.Prefix)
	}
	iter, err := t.txn.Iter(start, upper)
	if err != nil {
		return nil, err
	}
	return &tikvIterator{iter: iter, opts: kopts}, nil
}

func (t *tikvTx) Get(ctx context.Context, key []byte) ([]byte, error) {
	val, err := t.txn.Get(ctx, key)
	if err != nil {
		if tikvErr.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return val, err
}

func (t *tikvTx) Set(ctx context.Context, key, value []byte) error {
	if t.readOnly {
		return errors.New(errors.Forbidden, "writes forbidden in read-only transaction")
	}
	return t.txn.Set(key, value)
}

func (t *tikvTx) Delete(ctx context.Context, key []byte) error {
	if t.readOnly {
		return errors.New(errors.Forbidden, "writes forbidden in read-only transaction")
	}
	return t.txn.Delete(key)
}

func (t *tikvTx) Rollback(ctx context.Context) {
	if t.done {
		return
	}
	t.done = true
	_ = t.txn.Rollback()
}

func (t *tikvTx) Commit(ctx context.Context) (uint64, error) {
	if t.done {
		return 0, errors.New(errors.Forbidden, "transaction already closed")
	}
	t.done = true
	if t.readOnly {
		_ = t.txn.Rollback()
		return t.txn.StartTS(), nil
	}
	if err := t.txn.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, errors.Internal, "failed to commit")
	}
	return t.db.currentVersion()
}

func (t *tikvTx) Close(ctx context.Context) {
	t.Rollback(ctx)
}
