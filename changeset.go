package viewdb

import (
	"encoding/json"
	"slices"

	"github.com/autom8ter/viewdb/errors"
	"github.com/samber/lo"
)

// ChangeType is the kind of an edit to a group
type ChangeType int

const (
	// ChangeInsert inserts a row at Index
	ChangeInsert ChangeType = iota + 1
	// ChangeDelete removes the row at Index
	ChangeDelete
	// ChangeMove removes the row at From and inserts it at To
	ChangeMove
)

// String returns the name of the change type
func (c ChangeType) String() string {
	switch c {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeMove:
		return "move"
	default:
		return "unknown"
	}
}

// MarshalText encodes the change type as its name
func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes the change type from its name
func (c *ChangeType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "insert":
		*c = ChangeInsert
	case "delete":
		*c = ChangeDelete
	case "move":
		*c = ChangeMove
	default:
		return errors.New(errors.Validation, "unknown change type: %s", string(text))
	}
	return nil
}

// Change is a single edit to a group. Insert and Delete use Index; Move uses From and To, where To is the
// row's index after it has been removed from From.
type Change struct {
	Type  ChangeType `json:"type"`
	Row   RowID      `json:"row"`
	Index int        `json:"index"`
	From  int        `json:"from"`
	To    int        `json:"to"`
}

// ViewChangeset holds the ordered edits a commit made to each group of one view
type ViewChangeset struct {
	Groups        map[string][]Change `json:"groups,omitempty"`
	GroupsAdded   []string            `json:"groupsAdded,omitempty"`
	GroupsRemoved []string            `json:"groupsRemoved,omitempty"`
	// Registered is set when the view was registered (and populated) by the commit. The edits of a populated view
	// are not listed; readers should reload it.
	Registered bool `json:"registered,omitempty"`
	// Unregistered is set when the view was removed by the commit
	Unregistered bool `json:"unregistered,omitempty"`

	touched map[string]bool
}

func newViewChangeset() *ViewChangeset {
	return &ViewChangeset{
		Groups:  map[string][]Change{},
		touched: map[string]bool{},
	}
}

// Empty returns true if the changeset holds no edits
func (v *ViewChangeset) Empty() bool {
	return v == nil || (len(v.Groups) == 0 && len(v.GroupsAdded) == 0 && len(v.GroupsRemoved) == 0 && !v.Registered && !v.Unregistered)
}

func (v *ViewChangeset) add(group string, change Change) {
	v.Groups[group] = append(v.Groups[group], change)
	v.touched[group] = true
}

// seal computes the groups added and removed relative to the base state
func (v *ViewChangeset) seal(base, next *viewState) {
	for name := range v.touched {
		_, before := base.groups[name]
		_, after := next.groups[name]
		switch {
		case !before && after:
			v.GroupsAdded = append(v.GroupsAdded, name)
		case before && !after:
			v.GroupsRemoved = append(v.GroupsRemoved, name)
		}
	}
	slices.Sort(v.GroupsAdded)
	slices.Sort(v.GroupsRemoved)
	v.touched = nil
}

// Changeset describes everything one write transaction changed
type Changeset struct {
	// Snapshot is the snapshot the commit produced
	Snapshot uint64 `json:"snapshot"`
	// Views holds the edits per view name. Views the commit did not change are omitted.
	Views map[string]*ViewChangeset `json:"views,omitempty"`
	// Modified lists the rows the commit wrote or deleted
	Modified []RowID `json:"modified,omitempty"`
}

// Empty returns true if the commit changed nothing
func (c *Changeset) Empty() bool {
	return c == nil || (len(c.Views) == 0 && len(c.Modified) == 0)
}

// View returns the changes made to the named view, or nil if it did not change
func (c *Changeset) View(name string) *ViewChangeset {
	if c == nil {
		return nil
	}
	return c.Views[name]
}

// String returns the changeset as json
func (c *Changeset) String() string {
	bits, _ := json.Marshal(c)
	return string(bits)
}

// Apply replays the changeset on a copy of groups (as returned by ViewReader.Export) and returns the result.
// Replaying the changeset of snapshot n on the groups of snapshot n-1 yields the groups of snapshot n.
func (v *ViewChangeset) Apply(groups map[string][]RowID) (map[string][]RowID, error) {
	next := lo.MapValues(groups, func(rows []RowID, _ string) []RowID {
		return slices.Clone(rows)
	})
	if v == nil {
		return next, nil
	}
	for name, changes := range v.Groups {
		rows := next[name]
		for _, c := range changes {
			switch c.Type {
			case ChangeInsert:
				if c.Index < 0 || c.Index > len(rows) {
					return nil, errors.New(errors.Validation, "group %s: insert index %v out of range", name, c.Index)
				}
				rows = slices.Insert(rows, c.Index, c.Row)
			case ChangeDelete:
				if c.Index < 0 || c.Index >= len(rows) || rows[c.Index] != c.Row {
					return nil, errors.New(errors.Validation, "group %s: delete of %s at %v does not match", name, c.Row, c.Index)
				}
				rows = slices.Delete(rows, c.Index, c.Index+1)
			case ChangeMove:
				if c.From < 0 || c.From >= len(rows) || rows[c.From] != c.Row {
					return nil, errors.New(errors.Validation, "group %s: move of %s from %v does not match", name, c.Row, c.From)
				}
				rows = slices.Delete(rows, c.From, c.From+1)
				if c.To < 0 || c.To > len(rows) {
					return nil, errors.New(errors.Validation, "group %s: move index %v out of range", name, c.To)
				}
				rows = slices.Insert(rows, c.To, c.Row)
			}
		}
		if len(rows) == 0 {
			delete(next, name)
		} else {
			next[name] = rows
		}
	}
	return next, nil
}
