package kvutil_test

import (
	"bytes"
	"testing"

	"github.com/autom8ter/viewdb/kv/kvutil"
	"github.com/stretchr/testify/assert"
)

func TestKVUtil(t *testing.T) {
	t.Run("next prefix", func(t *testing.T) {
		const input = "hello"
		next := kvutil.NextPrefix([]byte(input))
		assert.Equal(t, 1, bytes.Compare(next, []byte(input)))
		assert.Equal(t, "hellp", string(next))
	})
	t.Run("next prefix overflow", func(t *testing.T) {
		next := kvutil.NextPrefix([]byte{0xff, 0xff})
		assert.Empty(t, next)
	})
	t.Run("reverse seek key", func(t *testing.T) {
		prefix := []byte("o\x00inbox\x00")
		seek := kvutil.ReverseSeekKey(prefix)
		assert.True(t, bytes.HasPrefix(seek, prefix))
		assert.Equal(t, 1, bytes.Compare(seek, []byte("o\x00inbox\x00zzz")))
		assert.Equal(t, "o\x00inbox\x00", string(prefix))
	})
}
