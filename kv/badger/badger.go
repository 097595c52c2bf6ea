package badger

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/kv"
	"github.com/autom8ter/viewdb/kv/registry"
	"github.com/dgraph-io/badger/v3"
	"github.com/spf13/cast"
)

func init() {
	registry.Register("badger", func(params map[string]interface{}) (kv.DB, error) {
		return open(cast.ToString(params["storage_path"]))
	})
}

// badgerKV runs badger in managed mode: commit timestamps come from a local counter so that every commit
// produces exactly one new version and readers can be pinned to any retained version.
type badgerKV struct {
	db       *badger.DB
	commitMu sync.Mutex
	version  atomic.Uint64
}

func open(storagePath string) (*badgerKV, error) {
	opts := badger.DefaultOptions(storagePath)
	if storagePath == "" {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	}
	opts = opts.WithLoggingLevel(badger.ERROR)
	db, err := badger.OpenManaged(opts)
	if err != nil {
		return nil, err
	}
	b := &badgerKV{db: db}
	// versions start at 1 so that 0 can mean "latest" in kv.TxOpts
	latest := db.MaxVersion()
	if latest == 0 {
		latest = 1
	}
	b.version.Store(latest)
	return b, nil
}

func (b *badgerKV) NewTx(opts kv.TxOpts) (kv.Tx, error) {
	latest := b.version.Load()
	readTs := opts.ReadVersion
	if readTs == 0 {
		readTs = latest
	}
	if readTs > latest {
		return nil, errors.New(errors.Validation, "version %v has not been committed (latest: %v)", readTs, latest)
	}
	return &badgerTx{
		opts:   opts,
		txn:    b.db.NewTransactionAt(readTs, !opts.IsReadOnly),
		db:     b,
		readTs: readTs,
	}, nil
}

func (b *badgerKV) Tx(ctx context.Context, opts kv.TxOpts, fn func(kv.Tx) error) error {
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

func (b *badgerKV) DiscardBefore(ctx context.Context, version uint64) error {
	if version == 0 {
		return nil
	}
	b.db.SetDiscardTs(version)
	return nil
}

func (b *badgerKV) Close(ctx context.Context) error {
	return b.db.Close()
}
