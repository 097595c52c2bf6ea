package viewdb

import (
	"strings"

	"github.com/autom8ter/viewdb/errors"
	"github.com/samber/lo"
)

// InputSet declares which parts of a row a grouping or sorting function reads
type InputSet int

const (
	// InputKey reads the collection and key only
	InputKey InputSet = iota + 1
	// InputObject reads the collection, key and object
	InputObject
	// InputMetadata reads the collection, key and metadata
	InputMetadata
	// InputRow reads the collection, key, object and metadata
	InputRow
)

// String returns the name of the input set
func (i InputSet) String() string {
	switch i {
	case InputKey:
		return "key"
	case InputObject:
		return "object"
	case InputMetadata:
		return "metadata"
	case InputRow:
		return "row"
	default:
		return "unknown"
	}
}

// MarshalText encodes the input set as its name
func (i InputSet) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText decodes the input set from its name
func (i *InputSet) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "key":
		*i = InputKey
	case "object":
		*i = InputObject
	case "metadata":
		*i = InputMetadata
	case "row":
		*i = InputRow
	default:
		return errors.New(errors.Configuration, "unknown input set: %s", string(text))
	}
	return nil
}

func (i InputSet) valid() bool {
	return i >= InputKey && i <= InputRow
}

// touch records which parts of a row a mutation changed
type touch uint8

const (
	touchObject touch = 1 << iota
	touchMetadata
	touchAll = touchObject | touchMetadata
)

// touchedBy reports whether a mutation touching t changes any input the function reads.
// Keys never change for an existing row.
func (i InputSet) touchedBy(t touch) bool {
	switch i {
	case InputObject:
		return t&touchObject != 0
	case InputMetadata:
		return t&touchMetadata != 0
	case InputRow:
		return t != 0
	default:
		return false
	}
}

func (i InputSet) needsObject() bool {
	return i == InputObject || i == InputRow
}

func (i InputSet) needsMetadata() bool {
	return i == InputMetadata || i == InputRow
}

// GroupingWithKeyFunc returns the group of the row or "" to exclude it
type GroupingWithKeyFunc func(collection, key string) string

// GroupingWithObjectFunc returns the group of the row or "" to exclude it
type GroupingWithObjectFunc func(collection, key string, object *Document) string

// GroupingWithMetadataFunc returns the group of the row or "" to exclude it
type GroupingWithMetadataFunc func(collection, key string, metadata *Document) string

// GroupingWithRowFunc returns the group of the row or "" to exclude it
type GroupingWithRowFunc func(collection, key string, object, metadata *Document) string

// Grouping classifies rows into named groups. Build one with GroupByKey, GroupByObject, GroupByMetadata or GroupByRow.
//
// The function must be deterministic given its declared inputs and must not read anything else. This is not
// checked: a function that violates it leaves views inconsistent with their rows. While a view is populated the
// function is called from several goroutines at once.
type Grouping struct {
	Inputs   InputSet
	key      GroupingWithKeyFunc
	object   GroupingWithObjectFunc
	metadata GroupingWithMetadataFunc
	row      GroupingWithRowFunc
	script   *scriptFunc
}

// GroupByKey builds a grouping that reads the row's collection and key
func GroupByKey(fn GroupingWithKeyFunc) *Grouping {
	return &Grouping{Inputs: InputKey, key: fn}
}

// GroupByObject builds a grouping that reads the row's object
func GroupByObject(fn GroupingWithObjectFunc) *Grouping {
	return &Grouping{Inputs: InputObject, object: fn}
}

// GroupByMetadata builds a grouping that reads the row's metadata
func GroupByMetadata(fn GroupingWithMetadataFunc) *Grouping {
	return &Grouping{Inputs: InputMetadata, metadata: fn}
}

// GroupByRow builds a grouping that reads the row's object and metadata
func GroupByRow(fn GroupingWithRowFunc) *Grouping {
	return &Grouping{Inputs: InputRow, row: fn}
}

func (g *Grouping) valid() bool {
	if g == nil || !g.Inputs.valid() {
		return false
	}
	if g.script != nil {
		return true
	}
	switch g.Inputs {
	case InputKey:
		return g.key != nil
	case InputObject:
		return g.object != nil
	case InputMetadata:
		return g.metadata != nil
	default:
		return g.row != nil
	}
}

func (g *Grouping) classify(row *Row) (string, error) {
	if g.script != nil {
		return g.script.group(g.Inputs, row)
	}
	switch g.Inputs {
	case InputKey:
		return g.key(row.Collection, row.Key), nil
	case InputObject:
		return g.object(row.Collection, row.Key, row.Object), nil
	case InputMetadata:
		return g.metadata(row.Collection, row.Key, row.Metadata), nil
	default:
		return g.row(row.Collection, row.Key, row.Object, row.Metadata), nil
	}
}

// SortingWithKeyFunc orders two rows of the same group: <0 if the first sorts before the second, 0 if equal,
// >0 otherwise
type SortingWithKeyFunc func(group, collection1, key1, collection2, key2 string) int

// SortingWithObjectFunc orders two rows of the same group by their objects
type SortingWithObjectFunc func(group, collection1, key1 string, object1 *Document, collection2, key2 string, object2 *Document) int

// SortingWithMetadataFunc orders two rows of the same group by their metadata
type SortingWithMetadataFunc func(group, collection1, key1 string, metadata1 *Document, collection2, key2 string, metadata2 *Document) int

// SortingWithRowFunc orders two rows of the same group by their objects and metadata
type SortingWithRowFunc func(group, collection1, key1 string, object1, metadata1 *Document, collection2, key2 string, object2, metadata2 *Document) int

// Sorting orders rows within a group. Build one with SortByKey, SortByObject, SortByMetadata or SortByRow.
//
// The function must be a strict weak ordering over its declared inputs. This is not checked at runtime.
type Sorting struct {
	Inputs   InputSet
	key      SortingWithKeyFunc
	object   SortingWithObjectFunc
	metadata SortingWithMetadataFunc
	row      SortingWithRowFunc
	script   *scriptFunc
}

// SortByKey builds a sorting that reads each row's collection and key
func SortByKey(fn SortingWithKeyFunc) *Sorting {
	return &Sorting{Inputs: InputKey, key: fn}
}

// SortByObject builds a sorting that reads each row's object
func SortByObject(fn SortingWithObjectFunc) *Sorting {
	return &Sorting{Inputs: InputObject, object: fn}
}

// SortByMetadata builds a sorting that reads each row's metadata
func SortByMetadata(fn SortingWithMetadataFunc) *Sorting {
	return &Sorting{Inputs: InputMetadata, metadata: fn}
}

// SortByRow builds a sorting that reads each row's object and metadata
func SortByRow(fn SortingWithRowFunc) *Sorting {
	return &Sorting{Inputs: InputRow, row: fn}
}

func (s *Sorting) valid() bool {
	if s == nil || !s.Inputs.valid() {
		return false
	}
	if s.script != nil {
		return true
	}
	switch s.Inputs {
	case InputKey:
		return s.key != nil
	case InputObject:
		return s.object != nil
	case InputMetadata:
		return s.metadata != nil
	default:
		return s.row != nil
	}
}

func (s *Sorting) compare(group string, r1, r2 *Row) (int, error) {
	if s.script != nil {
		return s.script.sort(s.Inputs, group, r1, r2)
	}
	switch s.Inputs {
	case InputKey:
		return s.key(group, r1.Collection, r1.Key, r2.Collection, r2.Key), nil
	case InputObject:
		return s.object(group, r1.Collection, r1.Key, r1.Object, r2.Collection, r2.Key, r2.Object), nil
	case InputMetadata:
		return s.metadata(group, r1.Collection, r1.Key, r1.Metadata, r2.Collection, r2.Key, r2.Metadata), nil
	default:
		return s.row(group, r1.Collection, r1.Key, r1.Object, r1.Metadata, r2.Collection, r2.Key, r2.Object, r2.Metadata), nil
	}
}

// View is a persistent, sorted, grouped index over the rows of a database
type View struct {
	Grouping    *Grouping
	Sorting     *Sorting
	collections map[string]struct{}
}

// ViewOpt is an option for configuring a view
type ViewOpt func(v *View)

// WithCollections restricts the view to rows of the given collections. Rows of other collections are excluded
// without calling the grouping function.
func WithCollections(collections ...string) ViewOpt {
	return func(v *View) {
		v.collections = map[string]struct{}{}
		for _, c := range collections {
			v.collections[c] = struct{}{}
		}
	}
}

// NewView creates a view from a grouping and a sorting
func NewView(grouping *Grouping, sorting *Sorting, opts ...ViewOpt) *View {
	v := &View{
		Grouping: grouping,
		Sorting:  sorting,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Collections returns the collections the view is restricted to (empty means all collections)
func (v *View) Collections() []string {
	return lo.Keys(v.collections)
}

func (v *View) allows(collection string) bool {
	if len(v.collections) == 0 {
		return true
	}
	_, ok := v.collections[collection]
	return ok
}

// inputs returns the union of the inputs read by the grouping and the sorting
func (v *View) inputs() InputSet {
	object := v.Grouping.Inputs.needsObject() || v.Sorting.Inputs.needsObject()
	metadata := v.Grouping.Inputs.needsMetadata() || v.Sorting.Inputs.needsMetadata()
	switch {
	case object && metadata:
		return InputRow
	case object:
		return InputObject
	case metadata:
		return InputMetadata
	default:
		return InputKey
	}
}

func (v *View) validate(name string) error {
	if name == "" {
		return errors.New(errors.Configuration, "empty view name")
	}
	if v == nil {
		return errors.New(errors.Configuration, "view %s: nil view", name)
	}
	if !v.Grouping.valid() {
		return errors.New(errors.Configuration, "view %s: missing or invalid grouping", name)
	}
	if !v.Sorting.valid() {
		return errors.New(errors.Configuration, "view %s: missing or invalid sorting", name)
	}
	return nil
}
