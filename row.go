package viewdb

import (
	"strings"

	"github.com/autom8ter/viewdb/errors"
)

// RowID is the identity of a row: a collection and a key within it
type RowID struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

// String returns the row id as collection/key
func (r RowID) String() string {
	return r.Collection + "/" + r.Key
}

// ParseRowID parses a collection/key string
func ParseRowID(s string) (RowID, error) {
	collection, key, ok := strings.Cut(s, "/")
	if !ok || collection == "" {
		return RowID{}, errors.New(errors.Validation, "invalid row id: %s", s)
	}
	return RowID{Collection: collection, Key: key}, nil
}

// Row is a row in the database. Metadata may be nil.
type Row struct {
	Collection string    `json:"collection"`
	Key        string    `json:"key"`
	Object     *Document `json:"object"`
	Metadata   *Document `json:"metadata,omitempty"`
}

// ID returns the identity of the row
func (r *Row) ID() RowID {
	return RowID{Collection: r.Collection, Key: r.Key}
}

func validateRowID(collection, key string) error {
	if collection == "" {
		return errors.New(errors.Validation, "empty collection")
	}
	if strings.ContainsRune(collection, 0) || strings.ContainsRune(key, 0) {
		return errors.New(errors.Validation, "collection and key may not contain null bytes")
	}
	return nil
}
