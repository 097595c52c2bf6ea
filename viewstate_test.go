package viewdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewState(t *testing.T) {
	id := func(i int) RowID {
		return RowID{Collection: "task", Key: fmt.Sprint(i)}
	}
	base := newViewState().fork()
	for i := 0; i < 100; i++ {
		base.insert(fmt.Sprint(i%3), i/3, id(i))
	}
	base = base.freeze()
	t.Run("locate", func(t *testing.T) {
		assert.Equal(t, 100, base.count)
		assert.Equal(t, []string{"0", "1", "2"}, base.groupNames())
		group, ok := base.locate(id(4))
		assert.True(t, ok)
		assert.Equal(t, "1", group)
		assert.Equal(t, 1, base.indexOf("1", id(4)))
		assert.Equal(t, -1, base.indexOf("0", id(4)))
	})
	t.Run("fork leaves the base untouched", func(t *testing.T) {
		next := base.fork()
		next.remove("0", 0)
		next.insert("3", 0, id(0))
		next.move("1", 0, 5)
		assert.Equal(t, id(0), base.rows("0")[0])
		assert.Equal(t, id(1), base.rows("1")[0])
		_, ok := base.locate(id(0))
		assert.True(t, ok)
		group, _ := base.locate(id(0))
		assert.Equal(t, "0", group)
		group, _ = next.locate(id(0))
		assert.Equal(t, "3", group)
		assert.Equal(t, id(1), next.rows("1")[5])
		assert.Nil(t, base.rows("3"))
		assert.Equal(t, 100, next.count)
	})
	t.Run("empty groups are dropped", func(t *testing.T) {
		next := base.fork()
		for next.rows("2") != nil {
			next.remove("2", 0)
		}
		assert.Equal(t, []string{"0", "1"}, next.groupNames())
		assert.Equal(t, []string{"0", "1", "2"}, base.groupNames())
	})
	t.Run("reset", func(t *testing.T) {
		next := base.fork()
		next.reset(map[string][]RowID{"a": {id(1), id(2)}, "b": nil})
		assert.Equal(t, []string{"a"}, next.groupNames())
		assert.Equal(t, 2, next.count)
		_, ok := next.locate(id(3))
		assert.False(t, ok)
		_, ok = base.locate(id(3))
		assert.True(t, ok)
	})
}
