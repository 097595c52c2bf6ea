package prefix

import (
	"bytes"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestPrefix(t *testing.T) {
	t.Run("row key", func(t *testing.T) {
		id := gofakeit.UUID()
		key := Row(Object, "inbox", id)
		assert.True(t, bytes.HasPrefix(key, Collection(Object, "inbox")))
		assert.True(t, bytes.HasPrefix(key, All(Object)))
		assert.False(t, bytes.HasPrefix(key, All(Metadata)))
	})
	t.Run("split", func(t *testing.T) {
		id := gofakeit.UUID()
		collection, key, ok := Split(Row(Metadata, "inbox", id))
		assert.True(t, ok)
		assert.Equal(t, "inbox", collection)
		assert.Equal(t, id, key)
		_, _, ok = Split([]byte("garbage"))
		assert.False(t, ok)
	})
	t.Run("collection prefixes do not overlap", func(t *testing.T) {
		assert.False(t, bytes.HasPrefix(Row(Object, "inbox2", "a"), Collection(Object, "inbox")))
	})
}
