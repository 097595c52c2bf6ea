package tikv

import (
	"context"

	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/kv"
	"github.com/autom8ter/viewdb/kv/registry"
	"github.com/spf13/cast"
	"github.com/tikv/client-go/v2/tikv"
	"github.com/tikv/client-go/v2/txnkv"
)

func init() {
	registry.Register("tikv", func(params map[string]interface{}) (kv.DB, error) {
		if params["pd_addr"] == nil {
			return nil, errors.New(errors.Configuration, "'pd_addr' is a required parameter")
		}
		return open(cast.ToString(params["pd_addr"]))
	})
}

// tikvKV uses tikv timestamps as versions: a read pinned to version v starts its snapshot at timestamp v
type tikvKV struct {
	db *txnkv.Client
}

func open(pdAddr string) (kv.DB, error) {
	if pdAddr == "" {
		return nil, errors.New(errors.Configuration, "empty pd address")
	}
	client, err := txnkv.NewClient([]string{pdAddr})
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to connect to pd: %s", pdAddr)
	}
	return &tikvKV{
		db: client,
	}, nil
}

func (b *tikvKV) Tx(ctx context.Context, opts kv.TxOpts, fn func(kv.Tx) error) error {
	tx, err := b.NewTx(opts)
	if err != nil {
		return err
	}
	defer tx.Close(ctx)
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	_, err = tx.Commit(ctx)
	return err
}

func (b *tikvKV) NewTx(opts kv.TxOpts) (kv.Tx, error) {
	if opts.ReadVersion != 0 {
		tx, err := b.db.Begin(tikv.WithStartTS(opts.ReadVersion))
		if err != nil {
			return nil, err
		}
		return &tikvTx{txn: tx, db: b, readOnly: opts.IsReadOnly}, nil
	}
	tx, err := b.db.Begin()
	if err != nil {
		return nil, err
	}
	return &tikvTx{txn: tx, db: b, readOnly: opts.IsReadOnly}, nil
}

// currentVersion returns a timestamp that observes every transaction committed before the call
func (b *tikvKV) currentVersion() (uint64, error) {
	txn, err := b.db.Begin()
	if err != nil {
		return 0, err
	}
	ts := txn.StartTS()
	_ = txn.Rollback()
	return ts, nil
}

func (b *tikvKV) Close(ctx context.Context) error {
	return b.db.Close()
}
