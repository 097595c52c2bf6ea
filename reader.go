package viewdb

import (
	"context"
	"iter"
	"slices"

	"github.com/autom8ter/viewdb/errors"
)

// Order is the direction rows of a group are read in
type Order int

const (
	// Ascending reads a group from its first row to its last
	Ascending Order = iota
	// Descending reads a group from its last row to its first
	Descending
)

// String returns the name of the order
func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// ParseOrder parses asc/desc (an empty string is ascending)
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, errors.New(errors.Validation, "unknown order: %s", s)
	}
}

// ViewReader queries one view inside a transaction. A missing group or row is reported as an empty result rather
// than an error. Once the transaction ends every query returns an empty result.
type ViewReader struct {
	name string
	tx   *transaction
}

// Name returns the name of the view
func (r *ViewReader) Name() string {
	return r.name
}

func (r *ViewReader) state() *viewState {
	if s := r.tx.viewState(r.name); s != nil {
		return s
	}
	return newViewState()
}

// GroupCount returns the number of non-empty groups
func (r *ViewReader) GroupCount() int {
	return len(r.state().groups)
}

// Groups returns the names of the non-empty groups in sorted order
func (r *ViewReader) Groups() []string {
	return r.state().groupNames()
}

// Count returns the number of rows in the group
func (r *ViewReader) Count(group string) int {
	return len(r.state().rows(group))
}

// CountAll returns the number of rows in every group
func (r *ViewReader) CountAll() int {
	return r.state().count
}

// RowAt returns the row at index in the group
func (r *ViewReader) RowAt(group string, index int) (RowID, bool) {
	rows := r.state().rows(group)
	if index < 0 || index >= len(rows) {
		return RowID{}, false
	}
	return rows[index], true
}

// Locate returns the group and index of the row, or false if the view excludes it
func (r *ViewReader) Locate(id RowID) (string, int, bool) {
	state := r.state()
	name, ok := state.locate(id)
	if !ok {
		return "", 0, false
	}
	index := state.indexOf(name, id)
	if index < 0 {
		return "", 0, false
	}
	return name, index, true
}

// First returns the first row of the group
func (r *ViewReader) First(group string) (RowID, bool) {
	return r.RowAt(group, 0)
}

// Last returns the last row of the group
func (r *ViewReader) Last(group string) (RowID, bool) {
	return r.RowAt(group, r.Count(group)-1)
}

// Rows returns an iterator over the group's rows and their indexes in the given order. The iterator reads the
// group as it was when Rows was called and may be ranged over more than once.
func (r *ViewReader) Rows(group string, order Order) iter.Seq2[int, RowID] {
	rows := r.state().rows(group)
	return func(yield func(int, RowID) bool) {
		if order == Descending {
			for i := len(rows) - 1; i >= 0; i-- {
				if r.tx.done.Load() || !yield(i, rows[i]) {
					return
				}
			}
			return
		}
		for i, id := range rows {
			if r.tx.done.Load() || !yield(i, id) {
				return
			}
		}
	}
}

// Range returns up to limit rows of the group starting offset rows from the start in the given order. A limit
// <= 0 returns every remaining row.
func (r *ViewReader) Range(group string, offset, limit int, order Order) []RowID {
	rows := r.state().rows(group)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []RowID{}
	}
	if order == Descending {
		rows = slices.Clone(rows)
		slices.Reverse(rows)
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return slices.Clone(rows[offset:end])
}

// RowAtIndex returns the row stored at index in the group, or nil if the index is out of range
func (r *ViewReader) RowAtIndex(ctx context.Context, group string, index int) (*Row, error) {
	id, ok := r.RowAt(group, index)
	if !ok {
		return nil, nil
	}
	return r.tx.Get(ctx, id.Collection, id.Key)
}

// Export returns a copy of every group
func (r *ViewReader) Export() map[string][]RowID {
	state := r.state()
	groups := make(map[string][]RowID, len(state.groups))
	for name, g := range state.groups {
		groups[name] = slices.Clone(g.rows)
	}
	return groups
}
