package viewdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLoader map[RowID]*Row

func (m memLoader) loadRow(ctx context.Context, id RowID, _ InputSet) (*Row, error) {
	row, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("missing row %s", id)
	}
	return row, nil
}

func priorityRow(key string, group string, priority int) *Row {
	obj, err := NewDocumentFrom(map[string]any{"group": group, "priority": priority})
	if err != nil {
		panic(err)
	}
	return &Row{Collection: "task", Key: key, Object: obj}
}

type maintainerHarness struct {
	t           *testing.T
	rows        memLoader
	m           *maintainer
	metrics     *metrics
	comparisons int
}

func newHarness(t *testing.T) *maintainerHarness {
	h := &maintainerHarness{t: t, rows: memLoader{}}
	var err error
	h.metrics, err = newMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	view := NewView(
		GroupByObject(func(collection, key string, object *Document) string {
			return object.GetString("group")
		}),
		SortByObject(func(group, c1, k1 string, o1 *Document, c2, k2 string, o2 *Document) int {
			h.comparisons++
			return CompareField("priority", o1, o2)
		}),
	)
	h.m = newMaintainer("tasks", view, newViewState(), h.rows, h.metrics)
	return h
}

func (h *maintainerHarness) set(key, group string, priority int) {
	row := priorityRow(key, group, priority)
	_, existed := h.rows[row.ID()]
	h.rows[row.ID()] = row
	require.NoError(h.t, h.m.apply(context.Background(), mutation{id: row.ID(), row: row, insert: !existed, touched: touchAll}))
}

func (h *maintainerHarness) del(key string) {
	id := RowID{Collection: "task", Key: key}
	delete(h.rows, id)
	require.NoError(h.t, h.m.apply(context.Background(), mutation{id: id, touched: touchAll}))
}

func (h *maintainerHarness) keys(group string) []string {
	var keys []string
	for _, id := range h.m.state.rows(group) {
		keys = append(keys, id.Key)
	}
	return keys
}

func (h *maintainerHarness) path(path string) float64 {
	return testutil.ToFloat64(h.metrics.positions.WithLabelValues("tasks", path))
}

func TestPositioning(t *testing.T) {
	t.Run("inbox", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 5)
		h.set("b", "inbox", 1)
		h.m.changes = newViewChangeset()
		h.set("c", "inbox", 3)
		assert.Equal(t, []string{"b", "c", "a"}, h.keys("inbox"))
		assert.Equal(t, []Change{{Type: ChangeInsert, Row: RowID{Collection: "task", Key: "c"}, Index: 1}}, h.m.changes.Groups["inbox"])
	})
	t.Run("tail fast path", func(t *testing.T) {
		h := newHarness(t)
		for i := 0; i < 100; i++ {
			before := h.comparisons
			h.set(fmt.Sprintf("%03d", i), "inbox", i)
			assert.LessOrEqual(t, h.comparisons-before, 1)
		}
		assert.Equal(t, float64(1), h.path(pathEmpty))
		assert.Equal(t, float64(99), h.path(pathTail))
		assert.Equal(t, float64(0), h.path(pathSearch))
	})
	t.Run("head", func(t *testing.T) {
		h := newHarness(t)
		for i := 10; i > 0; i-- {
			h.set(fmt.Sprintf("%03d", i), "inbox", i)
		}
		assert.Equal(t, "001", h.keys("inbox")[0])
		assert.Equal(t, float64(9), h.path(pathHead))
	})
	t.Run("ties are stable", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 1)
		h.set("b", "inbox", 2)
		h.set("c", "inbox", 2)
		h.set("d", "inbox", 3)
		h.set("e", "inbox", 2)
		h.set("f", "inbox", 1)
		assert.Equal(t, []string{"a", "f", "b", "c", "e", "d"}, h.keys("inbox"))
	})
	t.Run("move", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 1)
		h.set("b", "inbox", 2)
		h.set("c", "inbox", 3)
		h.m.changes = newViewChangeset()
		h.set("a", "inbox", 4)
		assert.Equal(t, []string{"b", "c", "a"}, h.keys("inbox"))
		assert.Equal(t, []Change{{Type: ChangeMove, Row: RowID{Collection: "task", Key: "a"}, From: 0, To: 2}}, h.m.changes.Groups["inbox"])
	})
	t.Run("neighbor fast path", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 1)
		h.set("b", "inbox", 5)
		h.set("c", "inbox", 9)
		h.m.changes = newViewChangeset()
		before := h.comparisons
		h.set("b", "inbox", 6)
		assert.Equal(t, 2, h.comparisons-before)
		assert.Equal(t, float64(1), h.path(pathNeighbor))
		assert.True(t, h.m.changes.Empty())
	})
	t.Run("regroup", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 1)
		h.set("b", "inbox", 2)
		h.m.changes = newViewChangeset()
		h.set("a", "archive", 1)
		assert.Equal(t, []string{"b"}, h.keys("inbox"))
		assert.Equal(t, []string{"a"}, h.keys("archive"))
		id := RowID{Collection: "task", Key: "a"}
		assert.Equal(t, []Change{{Type: ChangeDelete, Row: id, Index: 0}}, h.m.changes.Groups["inbox"])
		assert.Equal(t, []Change{{Type: ChangeInsert, Row: id, Index: 0}}, h.m.changes.Groups["archive"])
	})
	t.Run("exclude and delete", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 1)
		h.set("b", "", 1)
		_, ok := h.m.state.locate(RowID{Collection: "task", Key: "b"})
		assert.False(t, ok)
		h.del("a")
		h.del("b")
		assert.Empty(t, h.m.state.groups)
		assert.Equal(t, 0, h.m.state.count)
	})
	t.Run("groups added and removed", func(t *testing.T) {
		h := newHarness(t)
		h.set("a", "inbox", 1)
		state, _ := h.m.commit()
		h.m = newMaintainer("tasks", h.m.view, state, h.rows, h.metrics)
		h.set("a", "archive", 1)
		next, changes := h.m.commit()
		assert.Equal(t, []string{"archive"}, changes.GroupsAdded)
		assert.Equal(t, []string{"inbox"}, changes.GroupsRemoved)
		assert.Equal(t, []RowID{{Collection: "task", Key: "a"}}, state.rows("inbox"))
		assert.Nil(t, next.rows("inbox"))
	})
}

func TestInputSkipping(t *testing.T) {
	t.Run("untouched inputs skip the functions", func(t *testing.T) {
		var groupings, sortings int
		view := NewView(
			GroupByMetadata(func(collection, key string, metadata *Document) string {
				groupings++
				return "all"
			}),
			SortByMetadata(func(group, c1, k1 string, m1 *Document, c2, k2 string, m2 *Document) int {
				sortings++
				return CompareField("rank", m1, m2)
			}),
		)
		metrics, err := newMetrics(prometheus.NewRegistry())
		require.NoError(t, err)
		rows := memLoader{}
		m := newMaintainer("by_rank", view, newViewState(), rows, metrics)
		ctx := context.Background()
		for i, key := range []string{"a", "b"} {
			md, err := NewDocumentFrom(map[string]any{"rank": i})
			require.NoError(t, err)
			row := &Row{Collection: "task", Key: key, Object: NewDocument(), Metadata: md}
			rows[row.ID()] = row
			require.NoError(t, m.apply(ctx, mutation{id: row.ID(), row: row, insert: true, touched: touchAll}))
		}
		groupings, sortings = 0, 0
		row := rows[RowID{Collection: "task", Key: "a"}]
		require.NoError(t, m.apply(ctx, mutation{id: row.ID(), row: row, touched: touchObject}))
		assert.Equal(t, 0, groupings)
		assert.Equal(t, 0, sortings)
		require.NoError(t, m.apply(ctx, mutation{id: row.ID(), row: row, touched: touchMetadata}))
		assert.Equal(t, 1, groupings)
		assert.Equal(t, 1, sortings)
	})
}

func TestPopulate(t *testing.T) {
	metrics, err := newMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	var rows []*Row
	for i, p := range []int{3, 1, 2, 1, 3} {
		rows = append(rows, priorityRow(fmt.Sprint(i), "inbox", p))
	}
	rows = append(rows, priorityRow("x", "", 0))
	view := NewView(
		GroupByObject(func(collection, key string, object *Document) string {
			return object.GetString("group")
		}),
		SortByObject(func(group, c1, k1 string, o1 *Document, c2, k2 string, o2 *Document) int {
			return CompareField("priority", o1, o2)
		}),
	)
	m := newMaintainer("tasks", view, newViewState(), memLoader{}, metrics)
	require.NoError(t, m.populate(context.Background(), rows, 2))
	state, changes := m.commit()
	assert.True(t, changes.Registered)
	var keys []string
	for _, id := range state.rows("inbox") {
		keys = append(keys, id.Key)
	}
	assert.Equal(t, []string{"1", "3", "2", "0", "4"}, keys)
	assert.Equal(t, 5, state.count)
	group, ok := state.locate(RowID{Collection: "task", Key: "2"})
	assert.True(t, ok)
	assert.Equal(t, "inbox", group)
}
