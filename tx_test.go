package viewdb_test

import (
	"context"
	"testing"

	"github.com/autom8ter/viewdb"
	"github.com/autom8ter/viewdb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTx(t *testing.T) {
	t.Run("set then get", func(t *testing.T) {
		assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *viewdb.Database) {
			conn := connect(t, db)
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				doc := testutil.NewUserDoc()
				md := testutil.NewMetadata(1)
				assert.NoError(t, tx.Set(ctx, testutil.UserCollection, "u1", doc, md))
				row, err := tx.Get(ctx, testutil.UserCollection, "u1")
				assert.NoError(t, err)
				require.NotNil(t, row)
				assert.Equal(t, doc.Get("contact.email"), row.Object.GetString("contact.email"))
				assert.True(t, md.Equal(row.Metadata))
				return nil
			}))
		}))
	})
	t.Run("create then update then get", func(t *testing.T) {
		assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *viewdb.Database) {
			conn := connect(t, db)
			var key string
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				var err error
				key, err = tx.Create(ctx, testutil.UserCollection, testutil.NewUserDoc(), nil)
				assert.NoError(t, err)
				return tx.Update(ctx, testutil.UserCollection, key, map[string]any{
					"age":           10,
					"contact.phone": "555-0100",
				})
			}))
			assert.Nil(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
				row, err := tx.Get(ctx, testutil.UserCollection, key)
				assert.NoError(t, err)
				require.NotNil(t, row)
				assert.Equal(t, int64(10), row.Object.GetInt("age"))
				assert.Equal(t, "555-0100", row.Object.GetString("contact.phone"))
				assert.NotEmpty(t, row.Object.GetString("contact.email"))
				assert.Nil(t, row.Metadata)
				return nil
			}))
		}))
	})
	t.Run("create then delete then get", func(t *testing.T) {
		assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *viewdb.Database) {
			conn := connect(t, db)
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				key, err := tx.Create(ctx, testutil.UserCollection, testutil.NewUserDoc(), nil)
				assert.NoError(t, err)
				assert.NoError(t, tx.Delete(ctx, testutil.UserCollection, key))
				row, err := tx.Get(ctx, testutil.UserCollection, key)
				assert.NoError(t, err)
				assert.Nil(t, row)
				exists, err := tx.Exists(ctx, testutil.UserCollection, key)
				assert.NoError(t, err)
				assert.False(t, exists)
				return nil
			}))
		}))
	})
	t.Run("missing rows are skipped", func(t *testing.T) {
		assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *viewdb.Database) {
			conn := connect(t, db)
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				assert.NoError(t, tx.Update(ctx, testutil.UserCollection, "missing", map[string]any{"age": 1}))
				assert.NoError(t, tx.ReplaceObject(ctx, testutil.UserCollection, "missing", testutil.NewUserDoc()))
				assert.NoError(t, tx.ReplaceMetadata(ctx, testutil.UserCollection, "missing", testutil.NewMetadata(1)))
				assert.NoError(t, tx.Delete(ctx, testutil.UserCollection, "missing"))
				exists, err := tx.Exists(ctx, testutil.UserCollection, "missing")
				assert.NoError(t, err)
				assert.False(t, exists)
				return nil
			}))
		}))
	})
	t.Run("clear metadata", func(t *testing.T) {
		assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *viewdb.Database) {
			conn := connect(t, db)
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				return tx.Set(ctx, testutil.UserCollection, "u1", testutil.NewUserDoc(), testutil.NewMetadata(1))
			}))
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				return tx.ReplaceMetadata(ctx, testutil.UserCollection, "u1", nil)
			}))
			assert.Nil(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
				row, err := tx.Get(ctx, testutil.UserCollection, "u1")
				assert.NoError(t, err)
				require.NotNil(t, row)
				assert.Nil(t, row.Metadata)
				return nil
			}))
		}))
	})
	t.Run("set 10 then keys", func(t *testing.T) {
		assert.Nil(t, testutil.TestDB(func(ctx context.Context, db *viewdb.Database) {
			conn := connect(t, db)
			created := map[string]struct{}{}
			assert.Nil(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				for i := 0; i < 10; i++ {
					key, err := tx.Create(ctx, testutil.UserCollection, testutil.NewUserDoc(), nil)
					if err != nil {
						return err
					}
					created[key] = struct{}{}
				}
				_, err := tx.Create(ctx, testutil.TaskCollection, testutil.NewRandomTaskDoc(), nil)
				return err
			}))
			assert.Nil(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
				seen := map[string]struct{}{}
				assert.NoError(t, tx.Keys(ctx, testutil.UserCollection, func(key string) (bool, error) {
					seen[key] = struct{}{}
					return true, nil
				}))
				assert.Equal(t, created, seen)
				collections, err := tx.Collections(ctx)
				assert.NoError(t, err)
				assert.Equal(t, []string{testutil.TaskCollection, testutil.UserCollection}, collections)
				assert.Empty(t, tx.Views())
				return nil
			}))
		}))
	})
}
