package viewdb

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/internal/prefix"
	"github.com/autom8ter/viewdb/kv"
	"github.com/autom8ter/viewdb/kv/kvutil"
	"github.com/segmentio/ksuid"
)

// ReadTx reads one consistent snapshot of the database: every row read and every view query reflects the same
// point in time
type ReadTx interface {
	// Snapshot returns the snapshot the transaction reads. In a write transaction it is the snapshot the commit
	// will publish.
	Snapshot() uint64
	// Get returns the row or nil if it does not exist
	Get(ctx context.Context, collection, key string) (*Row, error)
	// Exists returns true if the row exists
	Exists(ctx context.Context, collection, key string) (bool, error)
	// Keys calls fn with every key in the collection in key order until fn returns false or an error
	Keys(ctx context.Context, collection string, fn func(key string) (bool, error)) error
	// Collections returns the names of every collection holding at least one row
	Collections(ctx context.Context) ([]string, error)
	// Views returns the names of the registered views
	Views() []string
	// View returns a reader for the named view. It fails with errors.NotFound if the view is not registered.
	View(name string) (*ViewReader, error)
}

// WriteTx is a read/write transaction. Every mutation updates the registered views before it returns.
type WriteTx interface {
	ReadTx
	// Set creates or overwrites a row. A nil metadata clears the row's metadata.
	Set(ctx context.Context, collection, key string, object, metadata *Document) error
	// Create creates a row with a generated key and returns the key
	Create(ctx context.Context, collection string, object, metadata *Document) (string, error)
	// Update merges the fields into the row's object. Nested fields may be addressed with dot notation.
	Update(ctx context.Context, collection, key string, fields map[string]any) error
	// ReplaceObject replaces the row's object and leaves its metadata untouched
	ReplaceObject(ctx context.Context, collection, key string, object *Document) error
	// ReplaceMetadata replaces the row's metadata and leaves its object untouched
	ReplaceMetadata(ctx context.Context, collection, key string, metadata *Document) error
	// Touch re-evaluates the row in every view as though its object and metadata changed
	Touch(ctx context.Context, collection, key string) error
	// Delete removes the row
	Delete(ctx context.Context, collection, key string) error
	// DeleteCollection removes every row in the collection
	DeleteCollection(ctx context.Context, collection string) error
}

// transaction implements ReadTx and WriteTx. Methods that write fail with errors.Forbidden on read transactions.
// Update, ReplaceObject, ReplaceMetadata, Touch and Delete are no-ops when the row does not exist.
type transaction struct {
	db    *Database
	write bool
	base  *version
	done  atomic.Bool

	kvMu sync.Mutex
	kvTx kv.Tx

	views        map[string]*registeredView
	maintainers  map[string]*maintainer
	unregistered []string
	rows         map[RowID]*Row
	modified     []RowID
	modifiedSet  map[RowID]struct{}
}

func newReadTransaction(d *Database, v *version) *transaction {
	return &transaction{
		db:    d,
		base:  v,
		views: v.views,
	}
}

func newWriteTransaction(ctx context.Context, d *Database, base *version) (*transaction, error) {
	kvTx, err := d.kv.NewTx(kv.TxOpts{})
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to start row store transaction")
	}
	return &transaction{
		db:          d,
		write:       true,
		base:        base,
		kvTx:        kvTx,
		views:       maps.Clone(base.views),
		maintainers: map[string]*maintainer{},
		rows:        map[RowID]*Row{},
		modifiedSet: map[RowID]struct{}{},
	}, nil
}

func (t *transaction) Snapshot() uint64 {
	if t.write {
		return t.base.snapshot + 1
	}
	return t.base.snapshot
}

func (t *transaction) kv() (kv.Tx, error) {
	if t.done.Load() {
		return nil, errors.New(errors.Forbidden, "transaction is closed")
	}
	t.kvMu.Lock()
	defer t.kvMu.Unlock()
	if t.kvTx == nil {
		tx, err := t.db.kv.NewTx(kv.TxOpts{IsReadOnly: true, ReadVersion: t.base.kvVersion})
		if err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to start row store transaction")
		}
		t.kvTx = tx
	}
	return t.kvTx, nil
}

func (t *transaction) writable() error {
	if !t.write {
		return errors.New(errors.Forbidden, "writes are forbidden in read transactions")
	}
	if t.done.Load() {
		return errors.New(errors.Forbidden, "transaction is closed")
	}
	return nil
}

// readRow reads the row from the row store
func (t *transaction) readRow(ctx context.Context, id RowID) (*Row, error) {
	tx, err := t.kv()
	if err != nil {
		return nil, err
	}
	object, err := tx.Get(ctx, prefix.Row(prefix.Object, id.Collection, id.Key))
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to read %s", id)
	}
	if object == nil {
		return nil, nil
	}
	metadata, err := tx.Get(ctx, prefix.Row(prefix.Metadata, id.Collection, id.Key))
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to read %s metadata", id)
	}
	return decodeRow(id, object, metadata)
}

func decodeRow(id RowID, object, metadata []byte) (*Row, error) {
	row := &Row{Collection: id.Collection, Key: id.Key}
	var err error
	row.Object, err = NewDocumentFromBytes(object)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "corrupt object for %s", id)
	}
	if metadata != nil {
		row.Metadata, err = NewDocumentFromBytes(metadata)
		if err != nil {
			return nil, errors.Wrap(err, errors.Internal, "corrupt metadata for %s", id)
		}
	}
	return row, nil
}

// row returns the current value of the row, caching it for the rest of a write transaction. The result must not
// be modified.
func (t *transaction) row(ctx context.Context, id RowID) (*Row, error) {
	if !t.write {
		return t.readRow(ctx, id)
	}
	if row, ok := t.rows[id]; ok {
		return row, nil
	}
	row, err := t.readRow(ctx, id)
	if err != nil {
		return nil, err
	}
	t.rows[id] = row
	return row, nil
}

func (t *transaction) loadRow(ctx context.Context, id RowID, _ InputSet) (*Row, error) {
	row, err := t.row(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.New(errors.Internal, "row %s is indexed but missing from the row store", id)
	}
	return row, nil
}

func (t *transaction) Get(ctx context.Context, collection, key string) (*Row, error) {
	row, err := t.row(ctx, RowID{Collection: collection, Key: key})
	if err != nil || row == nil {
		return nil, err
	}
	if !t.write {
		return row, nil
	}
	cloned := &Row{Collection: row.Collection, Key: row.Key, Object: row.Object.Clone()}
	if row.Metadata != nil {
		cloned.Metadata = row.Metadata.Clone()
	}
	return cloned, nil
}

func (t *transaction) Exists(ctx context.Context, collection, key string) (bool, error) {
	row, err := t.row(ctx, RowID{Collection: collection, Key: key})
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

func (t *transaction) Keys(ctx context.Context, collection string, fn func(key string) (bool, error)) error {
	tx, err := t.kv()
	if err != nil {
		return err
	}
	iter, err := tx.NewIterator(kv.IterOpts{Prefix: prefix.Collection(prefix.Object, collection)})
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to iterate collection %s", collection)
	}
	defer iter.Close()
	for iter.Valid() {
		_, key, ok := prefix.Split(iter.Key())
		if ok {
			next, err := fn(key)
			if err != nil {
				return err
			}
			if !next {
				return nil
			}
		}
		if err := iter.Next(); err != nil {
			return errors.Wrap(err, errors.Internal, "failed to iterate collection %s", collection)
		}
	}
	return nil
}

func (t *transaction) Collections(ctx context.Context) ([]string, error) {
	tx, err := t.kv()
	if err != nil {
		return nil, err
	}
	iter, err := tx.NewIterator(kv.IterOpts{Prefix: prefix.All(prefix.Object)})
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to iterate collections")
	}
	defer iter.Close()
	var collections []string
	for iter.Valid() {
		collection, _, ok := prefix.Split(iter.Key())
		if !ok {
			if err := iter.Next(); err != nil {
				return nil, errors.Wrap(err, errors.Internal, "failed to iterate collections")
			}
			continue
		}
		collections = append(collections, collection)
		iter.Seek(kvutil.NextPrefix(prefix.Collection(prefix.Object, collection)))
	}
	return collections, nil
}

func (t *transaction) Views() []string {
	return slices.Sorted(maps.Keys(t.views))
}

func (t *transaction) View(name string) (*ViewReader, error) {
	if t.done.Load() {
		return nil, errors.New(errors.Forbidden, "transaction is closed")
	}
	if _, ok := t.views[name]; !ok {
		return nil, errors.New(errors.NotFound, "view %s is not registered", name)
	}
	return &ViewReader{name: name, tx: t}, nil
}

// viewState returns the state of the view as seen by the transaction, or nil once the transaction is closed
func (t *transaction) viewState(name string) *viewState {
	if t.done.Load() {
		return nil
	}
	if m, ok := t.maintainers[name]; ok {
		return m.state
	}
	if rv, ok := t.views[name]; ok {
		return rv.state
	}
	return nil
}

func (t *transaction) Set(ctx context.Context, collection, key string, object, metadata *Document) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := validateRowID(collection, key); err != nil {
		return err
	}
	if object == nil {
		return errors.New(errors.Validation, "nil object for %s/%s", collection, key)
	}
	id := RowID{Collection: collection, Key: key}
	existing, err := t.row(ctx, id)
	if err != nil {
		return err
	}
	var md *Document
	if metadata != nil {
		md = metadata.Clone()
	}
	return t.put(ctx, id, object.Clone(), md, existing == nil, touchAll)
}

func (t *transaction) Create(ctx context.Context, collection string, object, metadata *Document) (string, error) {
	key := ksuid.New().String()
	if err := t.Set(ctx, collection, key, object, metadata); err != nil {
		return "", err
	}
	return key, nil
}

func (t *transaction) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := RowID{Collection: collection, Key: key}
	existing, err := t.row(ctx, id)
	if err != nil || existing == nil {
		return err
	}
	patch, err := NewDocumentFrom(fields)
	if err != nil {
		return err
	}
	object := existing.Object.Clone()
	if err := object.Merge(patch); err != nil {
		return err
	}
	return t.put(ctx, id, object, existing.Metadata, false, touchObject)
}

func (t *transaction) ReplaceObject(ctx context.Context, collection, key string, object *Document) error {
	if err := t.writable(); err != nil {
		return err
	}
	if object == nil {
		return errors.New(errors.Validation, "nil object for %s/%s", collection, key)
	}
	id := RowID{Collection: collection, Key: key}
	existing, err := t.row(ctx, id)
	if err != nil || existing == nil {
		return err
	}
	return t.put(ctx, id, object.Clone(), existing.Metadata, false, touchObject)
}

func (t *transaction) ReplaceMetadata(ctx context.Context, collection, key string, metadata *Document) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := RowID{Collection: collection, Key: key}
	existing, err := t.row(ctx, id)
	if err != nil || existing == nil {
		return err
	}
	var md *Document
	if metadata != nil {
		md = metadata.Clone()
	}
	return t.put(ctx, id, existing.Object, md, false, touchMetadata)
}

func (t *transaction) Touch(ctx context.Context, collection, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := RowID{Collection: collection, Key: key}
	existing, err := t.row(ctx, id)
	if err != nil || existing == nil {
		return err
	}
	return t.mutate(ctx, mutation{id: id, row: existing, touched: touchAll})
}

func (t *transaction) Delete(ctx context.Context, collection, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := RowID{Collection: collection, Key: key}
	existing, err := t.row(ctx, id)
	if err != nil || existing == nil {
		return err
	}
	if err := t.kvTx.Delete(ctx, prefix.Row(prefix.Object, collection, key)); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to delete %s", id)
	}
	if err := t.kvTx.Delete(ctx, prefix.Row(prefix.Metadata, collection, key)); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to delete %s metadata", id)
	}
	t.rows[id] = nil
	t.markModified(id)
	return t.mutate(ctx, mutation{id: id, touched: touchAll})
}

func (t *transaction) DeleteCollection(ctx context.Context, collection string) error {
	if err := t.writable(); err != nil {
		return err
	}
	var keys []string
	if err := t.Keys(ctx, collection, func(key string) (bool, error) {
		keys = append(keys, key)
		return true, nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := t.Delete(ctx, collection, key); err != nil {
			return err
		}
	}
	return nil
}

// put writes the row and updates every view
func (t *transaction) put(ctx context.Context, id RowID, object, metadata *Document, insert bool, touched touch) error {
	if err := t.db.validateObject(ctx, id.Collection, object); err != nil {
		return err
	}
	if touched&touchObject != 0 {
		if err := t.kvTx.Set(ctx, prefix.Row(prefix.Object, id.Collection, id.Key), object.Bytes()); err != nil {
			return errors.Wrap(err, errors.Internal, "failed to write %s", id)
		}
	}
	if touched&touchMetadata != 0 {
		key := prefix.Row(prefix.Metadata, id.Collection, id.Key)
		var err error
		if metadata == nil {
			err = t.kvTx.Delete(ctx, key)
		} else {
			err = t.kvTx.Set(ctx, key, metadata.Bytes())
		}
		if err != nil {
			return errors.Wrap(err, errors.Internal, "failed to write %s metadata", id)
		}
	}
	row := &Row{Collection: id.Collection, Key: id.Key, Object: object, Metadata: metadata}
	t.rows[id] = row
	t.markModified(id)
	return t.mutate(ctx, mutation{id: id, row: row, insert: insert, touched: touched})
}

func (t *transaction) markModified(id RowID) {
	if _, ok := t.modifiedSet[id]; ok {
		return
	}
	t.modifiedSet[id] = struct{}{}
	t.modified = append(t.modified, id)
}

// mutate drives the maintainer of every registered view
func (t *transaction) mutate(ctx context.Context, mu mutation) error {
	for _, name := range t.Views() {
		if err := t.maintainer(name).apply(ctx, mu); err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) maintainer(name string) *maintainer {
	m, ok := t.maintainers[name]
	if !ok {
		rv := t.views[name]
		m = newMaintainer(name, rv.view, rv.state, t, t.db.metrics)
		t.maintainers[name] = m
	}
	return m
}

// registerView adds the view and populates it from every row visible to the transaction
func (t *transaction) registerView(ctx context.Context, name string, view *View) error {
	if err := t.writable(); err != nil {
		return err
	}
	if err := view.validate(name); err != nil {
		return err
	}
	if _, ok := t.views[name]; ok {
		return errors.New(errors.Configuration, "view %s is already registered", name)
	}
	rows, err := t.scanRows(ctx, view)
	if err != nil {
		return err
	}
	empty := newViewState()
	m := newMaintainer(name, view, empty, t, t.db.metrics)
	if err := m.populate(ctx, rows, t.db.concurrency); err != nil {
		return err
	}
	t.views[name] = &registeredView{view: view, state: empty}
	t.maintainers[name] = m
	return nil
}

func (t *transaction) unregisterView(ctx context.Context, name string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.views[name]; !ok {
		return errors.New(errors.NotFound, "view %s is not registered", name)
	}
	delete(t.views, name)
	delete(t.maintainers, name)
	t.unregistered = append(t.unregistered, name)
	return nil
}

// scanRows loads every row the view may include, in collection/key order
func (t *transaction) scanRows(ctx context.Context, view *View) ([]*Row, error) {
	prefixes := [][]byte{prefix.All(prefix.Object)}
	if len(view.collections) > 0 {
		collections := view.Collections()
		slices.Sort(collections)
		prefixes = prefixes[:0]
		for _, c := range collections {
			prefixes = append(prefixes, prefix.Collection(prefix.Object, c))
		}
	}
	withMetadata := view.inputs().needsMetadata()
	var rows []*Row
	for _, p := range prefixes {
		iter, err := t.kvTx.NewIterator(kv.IterOpts{Prefix: p})
		if err != nil {
			return nil, errors.Wrap(err, errors.Internal, "failed to scan rows")
		}
		for iter.Valid() {
			collection, key, ok := prefix.Split(iter.Key())
			if ok {
				id := RowID{Collection: collection, Key: key}
				object, err := iter.Value()
				if err != nil {
					iter.Close()
					return nil, errors.Wrap(err, errors.Internal, "failed to read %s", id)
				}
				var metadata []byte
				if withMetadata {
					metadata, err = t.kvTx.Get(ctx, prefix.Row(prefix.Metadata, collection, key))
					if err != nil {
						iter.Close()
						return nil, errors.Wrap(err, errors.Internal, "failed to read %s metadata", id)
					}
				}
				row, err := decodeRow(id, object, metadata)
				if err != nil {
					iter.Close()
					return nil, err
				}
				rows = append(rows, row)
			}
			if err := iter.Next(); err != nil {
				iter.Close()
				return nil, errors.Wrap(err, errors.Internal, "failed to scan rows")
			}
		}
		iter.Close()
	}
	return rows, nil
}

// commit commits the row store and builds the next version. On failure the transaction is rolled back.
func (t *transaction) commit(ctx context.Context) (*version, error) {
	kvVersion, err := t.kvTx.Commit(ctx)
	if err != nil {
		t.rollback(ctx)
		return nil, errors.Wrap(err, errors.Internal, "failed to commit row store")
	}
	t.done.Store(true)
	views := make(map[string]*registeredView, len(t.views))
	changes := map[string]*ViewChangeset{}
	for name, rv := range t.views {
		m, ok := t.maintainers[name]
		if !ok {
			views[name] = rv
			continue
		}
		state, vc := m.commit()
		views[name] = &registeredView{view: rv.view, state: state}
		if !vc.Empty() {
			changes[name] = vc
		}
	}
	for _, name := range t.unregistered {
		if _, ok := views[name]; !ok {
			changes[name] = &ViewChangeset{Unregistered: true}
		}
	}
	snapshot := t.base.snapshot + 1
	return &version{
		snapshot:  snapshot,
		kvVersion: kvVersion,
		views:     views,
		changeset: &Changeset{
			Snapshot: snapshot,
			Views:    changes,
			Modified: t.modified,
		},
	}, nil
}

func (t *transaction) rollback(ctx context.Context) {
	if t.done.Swap(true) {
		return
	}
	t.kvMu.Lock()
	defer t.kvMu.Unlock()
	if t.kvTx != nil {
		t.kvTx.Rollback(ctx)
	}
	t.maintainers = nil
	t.rows = nil
}

func (t *transaction) close(ctx context.Context) {
	t.rollback(ctx)
}
