package viewdb

import (
	"maps"
	"slices"

	"github.com/cespare/xxhash/v2"
)

const locatorShards = 256

// group is an ordered sequence of row ids. A published group is never mutated.
type group struct {
	rows []RowID
}

// viewState is the grouped, sorted state of a view at one snapshot. Published states are immutable; a working copy
// made with fork shares every group and locator shard with its base until it writes to them.
type viewState struct {
	groups map[string]*group
	// locator maps a row to its group, sharded so a write copies one shard instead of the whole map
	locator [locatorShards]map[RowID]string
	count   int

	ownedGroups map[string]bool
	ownedShards *[locatorShards]bool
}

func newViewState() *viewState {
	v := &viewState{
		groups: map[string]*group{},
	}
	for i := range v.locator {
		v.locator[i] = map[RowID]string{}
	}
	return v
}

func shardOf(id RowID) int {
	return int(xxhash.Sum64String(id.Collection+"\x00"+id.Key) % locatorShards)
}

// fork returns a writable copy of the state
func (v *viewState) fork() *viewState {
	return &viewState{
		groups:      maps.Clone(v.groups),
		locator:     v.locator,
		count:       v.count,
		ownedGroups: map[string]bool{},
		ownedShards: &[locatorShards]bool{},
	}
}

// freeze makes a working copy immutable
func (v *viewState) freeze() *viewState {
	v.ownedGroups = nil
	v.ownedShards = nil
	return v
}

func (v *viewState) locate(id RowID) (string, bool) {
	name, ok := v.locator[shardOf(id)][id]
	return name, ok
}

func (v *viewState) rows(name string) []RowID {
	if g, ok := v.groups[name]; ok {
		return g.rows
	}
	return nil
}

func (v *viewState) indexOf(name string, id RowID) int {
	return slices.Index(v.rows(name), id)
}

func (v *viewState) groupNames() []string {
	return slices.Sorted(maps.Keys(v.groups))
}

func (v *viewState) writableShard(id RowID) map[RowID]string {
	i := shardOf(id)
	if !v.ownedShards[i] {
		v.locator[i] = maps.Clone(v.locator[i])
		v.ownedShards[i] = true
	}
	return v.locator[i]
}

func (v *viewState) writableGroup(name string) *group {
	g, ok := v.groups[name]
	switch {
	case !ok:
		g = &group{}
		v.groups[name] = g
	case !v.ownedGroups[name]:
		g = &group{rows: slices.Clone(g.rows)}
		v.groups[name] = g
	}
	v.ownedGroups[name] = true
	return g
}

// insert places the row at index in the group, creating the group if needed
func (v *viewState) insert(name string, index int, id RowID) {
	g := v.writableGroup(name)
	g.rows = slices.Insert(g.rows, index, id)
	v.writableShard(id)[id] = name
	v.count++
}

// remove removes the row at index from the group, dropping the group once it is empty
func (v *viewState) remove(name string, index int) RowID {
	g := v.writableGroup(name)
	id := g.rows[index]
	g.rows = slices.Delete(g.rows, index, index+1)
	if len(g.rows) == 0 {
		delete(v.groups, name)
		delete(v.ownedGroups, name)
	}
	delete(v.writableShard(id), id)
	v.count--
	return id
}

// move relocates the row within a group from one index to another, where to is the index after removal
func (v *viewState) move(name string, from, to int) {
	g := v.writableGroup(name)
	id := g.rows[from]
	g.rows = slices.Delete(g.rows, from, from+1)
	g.rows = slices.Insert(g.rows, to, id)
}

// reset replaces the contents of the state with the given sorted groups
func (v *viewState) reset(groups map[string][]RowID) {
	v.groups = map[string]*group{}
	for i := range v.locator {
		v.locator[i] = map[RowID]string{}
		v.ownedShards[i] = true
	}
	v.count = 0
	for name, rows := range groups {
		if len(rows) == 0 {
			continue
		}
		v.groups[name] = &group{rows: rows}
		v.ownedGroups[name] = true
		for _, id := range rows {
			v.locator[shardOf(id)][id] = name
		}
		v.count += len(rows)
	}
}
