package safe_test

import (
	"fmt"
	"testing"

	"github.com/autom8ter/viewdb/internal/safe"
	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
)

func Test(t *testing.T) {
	m := safe.Map[map[string]any]{}
	assert.False(t, m.Exists("1"))
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprint(i), map[string]any{
			"value": i,
		})
	}
	assert.Equal(t, 10, m.Len())
	for i := 0; i < 10; i++ {
		assert.True(t, m.Exists(fmt.Sprint(i)))
		entry := m.Get(fmt.Sprint(i))
		assert.Equal(t, entry["value"], i)
	}
	var last = -1
	m.Range(func(key string, entry map[string]any) bool {
		assert.Equal(t, entry["value"], cast.ToInt(key))
		assert.Greater(t, cast.ToInt(key), last)
		last = cast.ToInt(key)
		return true
	})
	assert.Len(t, m.Values(), 10)

	for i := 0; i < 10; i++ {
		m.Del(fmt.Sprint(i))
	}
	for i := 0; i < 10; i++ {
		assert.False(t, m.Exists(fmt.Sprint(i)))
	}
	assert.True(t, m.SetNX("setNX", map[string]any{"message": "hello world"}))
	assert.False(t, m.SetNX("setNX", map[string]any{"message": "goodbye"}))
	assert.Equal(t, "hello world", m.Get("setNX")["message"])
}
