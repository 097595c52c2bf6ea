package viewdb_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/autom8ter/viewdb"
	"github.com/autom8ter/viewdb/errors"
	"github.com/autom8ter/viewdb/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJavascriptViews(t *testing.T) {
	ctx := context.Background()
	cfg, err := viewdb.ParseConfig(testutil.ConfigYAML)
	require.NoError(t, err)
	db, err := viewdb.Open(ctx, cfg, viewdb.WithLogger(viewdb.NewNopLogger()))
	require.NoError(t, err)
	defer db.Close(ctx)
	assert.Equal(t, []string{"by_status"}, db.Views())
	_, ok := db.Schema(testutil.TaskCollection)
	assert.True(t, ok)

	conn, err := db.Connect()
	require.NoError(t, err)
	t.Run("configured view", func(t *testing.T) {
		assert.NoError(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
			for i, p := range []int{5, 1, 3} {
				if err := tx.Set(ctx, testutil.TaskCollection, fmt.Sprint(i), testutil.NewTaskDoc("open", p), nil); err != nil {
					return err
				}
			}
			if err := tx.Set(ctx, testutil.TaskCollection, "archived", testutil.NewTaskDoc("archived", 0), nil); err != nil {
				return err
			}
			return tx.Set(ctx, testutil.UserCollection, "u1", testutil.NewUserDoc(), nil)
		}))
		assert.NoError(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
			v, err := tx.View("by_status")
			require.NoError(t, err)
			assert.Equal(t, map[string][]viewdb.RowID{
				"open": {taskID("1"), taskID("2"), taskID("0")},
			}, v.Export())
			return nil
		}))
	})
	t.Run("metadata view", func(t *testing.T) {
		view, err := db.NewJavascriptView(
			viewdb.ScriptConfig{
				Inputs: viewdb.InputRow,
				Source: `function byRank(collection, key, object, metadata) {
					if (metadata === null) {
						return ""
					}
					return object.status
				}`,
			},
			viewdb.ScriptConfig{
				Inputs: viewdb.InputMetadata,
				Source: `function rank(group, c1, k1, m1, c2, k2, m2) {
					return m2.rank - m1.rank
				}`,
			},
			viewdb.WithCollections(testutil.TaskCollection),
		)
		require.NoError(t, err)
		require.NoError(t, db.Register(ctx, "by_rank", view))
		assert.NoError(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
			for i := 0; i < 3; i++ {
				if err := tx.ReplaceMetadata(ctx, testutil.TaskCollection, fmt.Sprint(i), testutil.NewMetadata(i)); err != nil {
					return err
				}
			}
			return nil
		}))
		assert.NoError(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
			v, err := tx.View("by_rank")
			require.NoError(t, err)
			assert.Equal(t, []viewdb.RowID{taskID("2"), taskID("1"), taskID("0")}, v.Range("open", 0, 0, viewdb.Ascending))
			return nil
		}))
	})
	t.Run("fractional sort results", func(t *testing.T) {
		view, err := db.NewJavascriptView(
			viewdb.ScriptConfig{Inputs: viewdb.InputKey, Source: `function all(collection, key) { return "all" }`},
			viewdb.ScriptConfig{Inputs: viewdb.InputObject, Source: `function byScore(group, c1, k1, o1, c2, k2, o2) {
				return o1.score - o2.score
			}`},
			viewdb.WithCollections("score"),
		)
		require.NoError(t, err)
		require.NoError(t, db.Register(ctx, "by_score", view))
		for _, s := range []struct {
			key   string
			score float64
		}{{"a", 1.5}, {"b", 1.2}, {"c", 1.9}, {"d", 1.25}} {
			doc, err := viewdb.NewDocumentFrom(map[string]any{"score": s.score})
			require.NoError(t, err)
			assert.NoError(t, conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
				return tx.Set(ctx, "score", s.key, doc, nil)
			}))
		}
		id := func(key string) viewdb.RowID {
			return viewdb.RowID{Collection: "score", Key: key}
		}
		assert.NoError(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
			v, err := tx.View("by_score")
			require.NoError(t, err)
			assert.Equal(t, []viewdb.RowID{id("b"), id("d"), id("a"), id("c")}, v.Range("all", 0, 0, viewdb.Ascending))
			return nil
		}))

		err = conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
			return tx.Set(ctx, "score", "e", viewdb.NewDocument(), nil)
		})
		assert.True(t, errors.HasCode(err, errors.Internal))
		assert.NoError(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
			v, err := tx.View("by_score")
			require.NoError(t, err)
			assert.Equal(t, 4, v.Count("all"))
			return nil
		}))
		assert.NoError(t, db.Unregister(ctx, "by_score"))
	})
	t.Run("invalid scripts", func(t *testing.T) {
		_, err := db.NewJavascriptView(
			viewdb.ScriptConfig{Inputs: viewdb.InputKey, Source: `function broken(collection, key) {`},
			viewdb.ScriptConfig{Inputs: viewdb.InputKey, Source: `function sort() { return 0 }`},
		)
		assert.True(t, errors.HasCode(err, errors.Configuration))
		_, err = db.NewJavascriptView(
			viewdb.ScriptConfig{Inputs: viewdb.InputKey, Source: `1 + 1`},
			viewdb.ScriptConfig{Inputs: viewdb.InputKey, Source: `function sort() { return 0 }`},
		)
		assert.True(t, errors.HasCode(err, errors.Configuration))
	})
	t.Run("script errors roll back", func(t *testing.T) {
		view, err := db.NewJavascriptView(
			viewdb.ScriptConfig{Inputs: viewdb.InputObject, Source: `function explode(collection, key, object) {
				if (object.status === "done") {
					throw new Error("done tasks are not allowed")
				}
				return object.status
			}`},
			viewdb.ScriptConfig{Inputs: viewdb.InputKey, Source: `function byKey(group, c1, k1, c2, k2) { return k1 < k2 ? -1 : k1 > k2 ? 1 : 0 }`},
			viewdb.WithCollections(testutil.TaskCollection),
		)
		require.NoError(t, err)
		require.NoError(t, db.Register(ctx, "explode", view))
		err = conn.ReadWrite(ctx, func(ctx context.Context, tx viewdb.WriteTx) error {
			return tx.Set(ctx, testutil.TaskCollection, "d", testutil.NewTaskDoc("done", 1), nil)
		})
		assert.True(t, errors.HasCode(err, errors.Internal))
		assert.NoError(t, conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
			exists, err := tx.Exists(ctx, testutil.TaskCollection, "d")
			assert.NoError(t, err)
			assert.False(t, exists)
			return nil
		}))
		assert.NoError(t, db.Unregister(ctx, "explode"))
	})
}
