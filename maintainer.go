package viewdb

import (
	"context"
	"slices"

	"github.com/autom8ter/viewdb/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// rowLoader loads the current value of a row inside a write transaction. Only the parts named by inputs need to
// be loaded.
type rowLoader interface {
	loadRow(ctx context.Context, id RowID, inputs InputSet) (*Row, error)
}

// mutation is a single change to a row
type mutation struct {
	id RowID
	// row is the new value of the row, nil when it was deleted
	row *Row
	// insert is set when the row did not exist before the mutation
	insert  bool
	touched touch
}

// maintainer keeps one view's working state consistent with the row mutations of a write transaction
type maintainer struct {
	name    string
	view    *View
	base    *viewState
	state   *viewState
	changes *ViewChangeset
	loader  rowLoader
	metrics *metrics
}

func newMaintainer(name string, view *View, base *viewState, loader rowLoader, m *metrics) *maintainer {
	return &maintainer{
		name:    name,
		view:    view,
		base:    base,
		state:   base.fork(),
		changes: newViewChangeset(),
		loader:  loader,
		metrics: m,
	}
}

// apply updates the view for one mutation and records the edits it made
func (m *maintainer) apply(ctx context.Context, mu mutation) error {
	gOld, _ := m.state.locate(mu.id)
	gNew := gOld
	switch {
	case mu.row == nil:
		gNew = ""
	case !m.view.allows(mu.id.Collection):
		gNew = ""
	case mu.insert || m.view.Grouping.Inputs.touchedBy(mu.touched):
		var err error
		gNew, err = m.view.Grouping.classify(mu.row)
		if err != nil {
			return errors.Wrap(err, 0, "view %s: failed to group %s", m.name, mu.id)
		}
	}
	switch {
	case gOld == "" && gNew == "":
		return nil
	case gOld == "":
		return m.insertRow(ctx, gNew, mu.row)
	case gNew == "":
		m.removeRow(gOld, mu.id)
		return nil
	case gOld == gNew:
		if !m.view.Sorting.Inputs.touchedBy(mu.touched) {
			return nil
		}
		return m.repositionRow(ctx, gOld, mu.row)
	default:
		m.removeRow(gOld, mu.id)
		return m.insertRow(ctx, gNew, mu.row)
	}
}

func (m *maintainer) insertRow(ctx context.Context, name string, row *Row) error {
	index, err := m.position(ctx, name, row)
	if err != nil {
		return err
	}
	m.state.insert(name, index, row.ID())
	m.changes.add(name, Change{Type: ChangeInsert, Row: row.ID(), Index: index})
	return nil
}

func (m *maintainer) removeRow(name string, id RowID) {
	index := m.state.indexOf(name, id)
	if index < 0 {
		return
	}
	m.state.remove(name, index)
	m.changes.add(name, Change{Type: ChangeDelete, Row: id, Index: index})
}

func (m *maintainer) repositionRow(ctx context.Context, name string, row *Row) error {
	id := row.ID()
	rows := m.state.rows(name)
	from := slices.Index(rows, id)
	if from < 0 {
		return nil
	}
	inPlace := true
	if from > 0 {
		c, err := m.compareStored(ctx, name, rows[from-1], row, true)
		if err != nil {
			return err
		}
		inPlace = c <= 0
	}
	if inPlace && from < len(rows)-1 {
		c, err := m.compareStored(ctx, name, rows[from+1], row, false)
		if err != nil {
			return err
		}
		inPlace = c <= 0
	}
	if inPlace {
		m.metrics.positions.WithLabelValues(m.name, pathNeighbor).Inc()
		return nil
	}
	m.state.remove(name, from)
	to, err := m.position(ctx, name, row)
	if err != nil {
		return err
	}
	m.state.insert(name, to, id)
	if to != from {
		m.changes.add(name, Change{Type: ChangeMove, Row: id, From: from, To: to})
	}
	return nil
}

// position returns the index at which row belongs in the group. Rows that compare equal to existing rows are
// placed after them.
func (m *maintainer) position(ctx context.Context, name string, row *Row) (int, error) {
	rows := m.state.rows(name)
	n := len(rows)
	if n == 0 {
		m.metrics.positions.WithLabelValues(m.name, pathEmpty).Inc()
		return 0, nil
	}
	c, err := m.compareStored(ctx, name, rows[n-1], row, false)
	if err != nil {
		return 0, err
	}
	if c >= 0 {
		m.metrics.positions.WithLabelValues(m.name, pathTail).Inc()
		return n, nil
	}
	if n == 1 {
		m.metrics.positions.WithLabelValues(m.name, pathHead).Inc()
		return 0, nil
	}
	c, err = m.compareStored(ctx, name, rows[0], row, false)
	if err != nil {
		return 0, err
	}
	if c < 0 {
		m.metrics.positions.WithLabelValues(m.name, pathHead).Inc()
		return 0, nil
	}
	// row >= rows[0] and row < rows[n-1]: find the first index in [1, n-1] whose row sorts after it
	low, high := 1, n-1
	for low < high {
		mid := int(uint(low+high) >> 1)
		c, err := m.compareStored(ctx, name, rows[mid], row, false)
		if err != nil {
			return 0, err
		}
		if c < 0 {
			high = mid
		} else {
			low = mid + 1
		}
	}
	m.metrics.positions.WithLabelValues(m.name, pathSearch).Inc()
	return low, nil
}

// compareStored loads the stored row and compares it with row. When storedFirst is set it returns
// cmp(stored, row), otherwise cmp(row, stored).
func (m *maintainer) compareStored(ctx context.Context, name string, stored RowID, row *Row, storedFirst bool) (int, error) {
	other, err := m.loader.loadRow(ctx, stored, m.view.Sorting.Inputs)
	if err != nil {
		return 0, err
	}
	m.metrics.comparisons.WithLabelValues(m.name).Inc()
	var c int
	if storedFirst {
		c, err = m.view.Sorting.compare(name, other, row)
	} else {
		c, err = m.view.Sorting.compare(name, row, other)
	}
	if err != nil {
		return 0, errors.Wrap(err, 0, "view %s: failed to sort %s", m.name, row.ID())
	}
	return c, nil
}

// populate rebuilds the view from scratch. Rows are classified concurrently and each group is stable sorted, so
// rows that compare equal keep the order they were given in.
func (m *maintainer) populate(ctx context.Context, rows []*Row, concurrency int) error {
	names := make([]string, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, row := range rows {
		if !m.view.allows(row.Collection) {
			continue
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.New(errors.Internal, "view %s: grouping panicked on %s: %v", m.name, row.ID(), r)
				}
			}()
			if err := ctx.Err(); err != nil {
				return err
			}
			name, err := m.view.Grouping.classify(row)
			if err != nil {
				return errors.Wrap(err, 0, "view %s: failed to group %s", m.name, row.ID())
			}
			names[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	grouped := map[string][]*Row{}
	for i, row := range rows {
		if names[i] != "" {
			grouped[names[i]] = append(grouped[names[i]], row)
		}
	}
	var firstErr error
	sorted := lo.MapValues(grouped, func(members []*Row, name string) []RowID {
		slices.SortStableFunc(members, func(a, b *Row) int {
			m.metrics.comparisons.WithLabelValues(m.name).Inc()
			c, err := m.view.Sorting.compare(name, a, b)
			if err != nil && firstErr == nil {
				firstErr = errors.Wrap(err, 0, "view %s: failed to sort group %s", m.name, name)
			}
			return c
		})
		return lo.Map(members, func(r *Row, _ int) RowID {
			return r.ID()
		})
	})
	if firstErr != nil {
		return firstErr
	}
	m.state.reset(sorted)
	m.changes.Registered = true
	return nil
}

// commit freezes the working state and returns it with its changes
func (m *maintainer) commit() (*viewState, *ViewChangeset) {
	m.changes.seal(m.base, m.state)
	return m.state.freeze(), m.changes
}
