package viewdb

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/autom8ter/machine/v4"
	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/internal/safe"
	"github.com/autom8ter/viewdb/javascript"
	"github.com/autom8ter/viewdb/kv"
	_ "github.com/autom8ter/viewdb/kv/badger"
	"github.com/autom8ter/viewdb/kv/registry"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultConcurrency     = 8
	defaultScriptCacheSize = 128
)

type namedView struct {
	name string
	view *View
}

// Database is an embedded document store with incrementally maintained views. All access goes through a
// Connection.
type Database struct {
	config      Config
	kv          kv.DB
	logger      Logger
	registry    *prometheus.Registry
	metrics     *metrics
	store       *snapshotStore
	writeMu     sync.Mutex
	closed      atomic.Bool
	// outbox holds committed changesets in commit order until they are published
	outboxMu    sync.Mutex
	outbox      []*Changeset
	publishMu   sync.Mutex
	machine     machine.Machine
	ctx         context.Context
	cancel      context.CancelFunc
	schemas     *safe.Map[*collectionSchema]
	connections *safe.Map[*Connection]
	programs    *lru.Cache[string, *javascript.Program]
	concurrency int
	initViews   []namedView
	// admin runs registrations
	admin *Connection
}

// Open opens the database, applies the configured collection schemas and registers the configured views
func Open(ctx context.Context, cfg Config, opts ...DBOpt) (*Database, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	kvdb, err := registry.Open(cfg.KV.Provider, cfg.KV.Params)
	if err != nil {
		return nil, errors.Wrap(err, 0, "failed to open row store %s", cfg.KV.Provider)
	}
	d := &Database{
		config:      cfg,
		kv:          kvdb,
		machine:     machine.New(),
		schemas:     safe.NewMap(map[string]*collectionSchema{}),
		connections: safe.NewMap(map[string]*Connection{}),
		concurrency: cfg.Concurrency,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(d)
	}
	if d.concurrency == 0 {
		d.concurrency = defaultConcurrency
	}
	if d.logger == nil {
		d.logger, err = NewLogger(cfg.LogLevel, map[string]any{
			"provider": cfg.KV.Provider,
		})
		if err != nil {
			return nil, d.abort(ctx, errors.Wrap(err, errors.Configuration, "failed to create logger"))
		}
	}
	if d.registry == nil {
		d.registry = prometheus.NewRegistry()
	}
	d.metrics, err = newMetrics(d.registry)
	if err != nil {
		return nil, d.abort(ctx, errors.Wrap(err, errors.Configuration, "failed to register metrics"))
	}
	cacheSize := cfg.ScriptCacheSize
	if cacheSize == 0 {
		cacheSize = defaultScriptCacheSize
	}
	d.programs, err = lru.New[string, *javascript.Program](cacheSize)
	if err != nil {
		return nil, d.abort(ctx, errors.Wrap(err, errors.Configuration, "failed to create script cache"))
	}
	kvVersion, err := latestKVVersion(ctx, kvdb)
	if err != nil {
		return nil, d.abort(ctx, err)
	}
	discarder, _ := kvdb.(kv.VersionDiscarder)
	d.store = newSnapshotStore(kvVersion, discarder, d.metrics, d.logger)
	for _, c := range cfg.Collections {
		if err := d.SetSchema(ctx, c.Name, c.JSONSchema); err != nil {
			return nil, d.abort(ctx, err)
		}
	}
	d.admin, err = d.Connect()
	if err != nil {
		return nil, d.abort(ctx, err)
	}
	for _, vc := range cfg.Views {
		view, err := d.NewJavascriptView(vc.Grouping, vc.Sorting, WithCollections(vc.Collections...))
		if err != nil {
			return nil, d.abort(ctx, errors.Wrap(err, 0, "view %s", vc.Name))
		}
		if err := d.Register(ctx, vc.Name, view); err != nil {
			return nil, d.abort(ctx, err)
		}
	}
	for _, nv := range d.initViews {
		if err := d.Register(ctx, nv.name, nv.view); err != nil {
			return nil, d.abort(ctx, err)
		}
	}
	d.logger.Info(ctx, "opened database", map[string]any{
		"views": len(d.Views()),
	})
	return d, nil
}

// latestKVVersion returns the newest version committed to the row store
func latestKVVersion(ctx context.Context, kvdb kv.DB) (uint64, error) {
	tx, err := kvdb.NewTx(kv.TxOpts{IsReadOnly: true})
	if err != nil {
		return 0, errors.Wrap(err, errors.Internal, "failed to read row store version")
	}
	defer tx.Close(ctx)
	v, err := tx.Commit(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.Internal, "failed to read row store version")
	}
	return v, nil
}

func (d *Database) abort(ctx context.Context, err error) error {
	d.cancel()
	if closeErr := d.kv.Close(ctx); closeErr != nil {
		return multierror.Append(err, closeErr)
	}
	return err
}

// Register registers the view and populates it from the existing rows in a single write transaction. It fails
// with errors.Configuration if the name is taken or the view has no grouping or sorting.
func (d *Database) Register(ctx context.Context, name string, view *View) error {
	if err := view.validate(name); err != nil {
		return err
	}
	changes, err := d.admin.readWrite(ctx, func(ctx context.Context, tx WriteTx) error {
		return tx.(*transaction).registerView(ctx, name, view)
	})
	if err != nil {
		return err
	}
	d.logger.Info(ctx, "registered view", map[string]any{
		"view":     name,
		"snapshot": changes.Snapshot,
	})
	return nil
}

// Unregister removes the view
func (d *Database) Unregister(ctx context.Context, name string) error {
	changes, err := d.admin.readWrite(ctx, func(ctx context.Context, tx WriteTx) error {
		return tx.(*transaction).unregisterView(ctx, name)
	})
	if err != nil {
		return err
	}
	d.metrics.unregisterView(name)
	d.logger.Info(ctx, "unregistered view", map[string]any{
		"view":     name,
		"snapshot": changes.Snapshot,
	})
	return nil
}

// Views returns the names of the views registered at the latest snapshot
func (d *Database) Views() []string {
	return slices.Sorted(maps.Keys(d.store.head().views))
}

// Snapshot returns the latest published snapshot
func (d *Database) Snapshot() uint64 {
	return d.store.head().snapshot
}

// Logger returns the database's logger
func (d *Database) Logger() Logger {
	return d.logger
}

// MetricsRegistry returns the registry holding the database's metrics
func (d *Database) MetricsRegistry() *prometheus.Registry {
	return d.registry
}

// Close waits for the running write transaction, closes every connection and the row store. Transactions queued
// behind the running one fail with errors.Forbidden.
func (d *Database) Close(ctx context.Context) error {
	d.writeMu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.writeMu.Unlock()
		return nil
	}
	d.cancel()
	// connections are closed without the write lock: a queued write holds its connection while it waits for it
	d.writeMu.Unlock()
	var err error
	for _, c := range d.connections.Values() {
		if cerr := c.Close(ctx); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}
	if kerr := d.kv.Close(ctx); kerr != nil {
		err = multierror.Append(err, kerr)
	}
	if err != nil {
		d.logger.Error(ctx, "error closing database", err, map[string]any{})
		return errors.Wrap(err, errors.Internal, "failed to close database")
	}
	d.logger.Info(ctx, "closed database", map[string]any{})
	return nil
}
