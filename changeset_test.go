package viewdb

import (
	"encoding/json"
	"testing"

	"github.com/autom8ter/viewdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeset(t *testing.T) {
	a := RowID{Collection: "task", Key: "a"}
	b := RowID{Collection: "task", Key: "b"}
	c := RowID{Collection: "task", Key: "c"}
	t.Run("apply", func(t *testing.T) {
		groups := map[string][]RowID{
			"open": {a, b},
			"done": {c},
		}
		vc := &ViewChangeset{Groups: map[string][]Change{
			"open": {
				{Type: ChangeMove, Row: a, From: 0, To: 1},
				{Type: ChangeInsert, Row: c, Index: 0},
			},
			"done": {
				{Type: ChangeDelete, Row: c, Index: 0},
			},
		}}
		next, err := vc.Apply(groups)
		require.NoError(t, err)
		assert.Equal(t, map[string][]RowID{"open": {c, b, a}}, next)
		assert.Equal(t, []RowID{a, b}, groups["open"])
	})
	t.Run("apply nil", func(t *testing.T) {
		var vc *ViewChangeset
		next, err := vc.Apply(map[string][]RowID{"open": {a}})
		require.NoError(t, err)
		assert.Equal(t, map[string][]RowID{"open": {a}}, next)
	})
	t.Run("apply mismatch", func(t *testing.T) {
		vc := &ViewChangeset{Groups: map[string][]Change{
			"open": {{Type: ChangeDelete, Row: b, Index: 0}},
		}}
		_, err := vc.Apply(map[string][]RowID{"open": {a, b}})
		assert.True(t, errors.HasCode(err, errors.Validation))
		vc = &ViewChangeset{Groups: map[string][]Change{
			"open": {{Type: ChangeInsert, Row: b, Index: 3}},
		}}
		_, err = vc.Apply(map[string][]RowID{"open": {a}})
		assert.True(t, errors.HasCode(err, errors.Validation))
	})
	t.Run("seal", func(t *testing.T) {
		base := newViewState().fork()
		base.insert("open", 0, a)
		base = base.freeze()
		next := base.fork()
		vc := newViewChangeset()
		next.remove("open", 0)
		vc.add("open", Change{Type: ChangeDelete, Row: a})
		next.insert("done", 0, a)
		vc.add("done", Change{Type: ChangeInsert, Row: a})
		vc.seal(base, next)
		assert.Equal(t, []string{"done"}, vc.GroupsAdded)
		assert.Equal(t, []string{"open"}, vc.GroupsRemoved)
		assert.False(t, vc.Empty())
	})
	t.Run("json", func(t *testing.T) {
		cs := &Changeset{
			Snapshot: 3,
			Views: map[string]*ViewChangeset{
				"by_status": {Groups: map[string][]Change{"open": {{Type: ChangeMove, Row: a, From: 0, To: 2}}}},
			},
			Modified: []RowID{a},
		}
		var decoded Changeset
		require.NoError(t, json.Unmarshal([]byte(cs.String()), &decoded))
		assert.Equal(t, ChangeMove, decoded.View("by_status").Groups["open"][0].Type)
		assert.Equal(t, 2, decoded.View("by_status").Groups["open"][0].To)
		assert.Nil(t, decoded.View("missing"))
		assert.True(t, (&Changeset{Snapshot: 4}).Empty())
		var ct ChangeType
		assert.True(t, errors.HasCode(ct.UnmarshalText([]byte("upsert")), errors.Validation))
	})
}
