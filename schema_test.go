package viewdb

import (
	"testing"

	"github.com/autom8ter/viewdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSchema = `{
  "type": "object",
  "required": ["name", "contact"],
  "properties": {
    "name": {"type": "string"},
    "contact": {
      "type": "object",
      "properties": {
        "email": {"type": "string"}
      }
    },
    "age": {"type": "integer", "minimum": 0}
  }
}`

func TestCollectionSchema(t *testing.T) {
	schema, err := newCollectionSchema("user", userSchema)
	require.NoError(t, err)
	t.Run("valid", func(t *testing.T) {
		doc, err := NewDocumentFrom(map[string]any{"name": "john", "contact": map[string]any{"email": "john@example.com"}, "age": 40})
		require.NoError(t, err)
		assert.NoError(t, schema.validate(doc))
	})
	t.Run("missing fields", func(t *testing.T) {
		err := schema.validate(NewDocument())
		assert.True(t, errors.HasCode(err, errors.Validation))
		assert.Contains(t, err.Error(), "name")
	})
	t.Run("wrong type", func(t *testing.T) {
		doc, err := NewDocumentFrom(map[string]any{"name": "john", "contact": map[string]any{}, "age": -1})
		require.NoError(t, err)
		assert.True(t, errors.HasCode(schema.validate(doc), errors.Validation))
	})
	t.Run("invalid schema", func(t *testing.T) {
		_, err := newCollectionSchema("user", `{"type": 5}`)
		assert.True(t, errors.HasCode(err, errors.Configuration))
	})
}
