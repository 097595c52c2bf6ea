package kv

import "context"

// DB is a versioned key value store. Every committed write transaction produces a new version and
// read transactions may be pinned to any version that has not been discarded.
type DB interface {
	// NewTx starts a transaction. The caller must Commit or Rollback it.
	NewTx(opts TxOpts) (Tx, error)
	// Tx runs fn inside a transaction, committing if fn returns nil and rolling back otherwise
	Tx(ctx context.Context, opts TxOpts, fn func(Tx) error) error
	// Close closes the store
	Close(ctx context.Context) error
}

// VersionDiscarder is implemented by stores that can drop data only visible to versions older than the given one
type VersionDiscarder interface {
	DiscardBefore(ctx context.Context, version uint64) error
}

// TxOpts are options when creating a transaction
type TxOpts struct {
	// IsReadOnly indicates that the transaction only reads
	IsReadOnly bool `json:"isReadOnly"`
	// ReadVersion pins reads to the state committed at the given version. 0 reads the latest version.
	ReadVersion uint64 `json:"readVersion"`
}

// IterOpts are options when creating an iterator
type IterOpts struct {
	Prefix  []byte `json:"prefix"`
	Seek    []byte `json:"seek"`
	Reverse bool   `json:"reverse"`
}

// Tx is a key value transaction
type Tx interface {
	// Get returns the value for the key or nil if the key does not exist
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	NewIterator(opts IterOpts) (Iterator, error)
	// Commit commits the transaction and returns the version that contains its writes.
	// Read only transactions return the version they read from.
	Commit(ctx context.Context) (uint64, error)
	Rollback(ctx context.Context)
	// Close releases the transaction's resources. It is a no-op after Commit or Rollback.
	Close(ctx context.Context)
}

// Iterator iterates over key value pairs in key order
type Iterator interface {
	Seek(key []byte)
	Close()
	Valid() bool
	Key() []byte
	Value() ([]byte, error)
	Next() error
}
