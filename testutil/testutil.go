package testutil

import (
	"cmp"
	"context"
	"time"

	_ "embed"

	"github.com/autom8ter/viewdb"
	"github.com/brianvoe/gofakeit/v6"
)

const (
	// TaskCollection holds task rows
	TaskCollection = "task"
	// UserCollection holds user rows
	UserCollection = "user"
)

var (
	//go:embed testdata/task.json
	TaskSchema string
	//go:embed testdata/config.yaml
	ConfigYAML []byte
)

// NewTaskDoc returns a task object with the given status and priority
func NewTaskDoc(status string, priority int) *viewdb.Document {
	doc, err := viewdb.NewDocumentFrom(map[string]any{
		"title":    gofakeit.LoremIpsumSentence(5),
		"status":   status,
		"priority": priority,
		"user":     gofakeit.UUID(),
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// NewRandomTaskDoc returns a task object with a random open/done status and priority
func NewRandomTaskDoc() *viewdb.Document {
	return NewTaskDoc(gofakeit.RandomString([]string{"open", "done"}), gofakeit.IntRange(0, 10))
}

// NewUserDoc returns a user object
func NewUserDoc() *viewdb.Document {
	doc, err := viewdb.NewDocumentFrom(map[string]any{
		"name": gofakeit.Name(),
		"contact": map[string]any{
			"email": gofakeit.Email(),
		},
		"language": gofakeit.Language(),
		"age":      gofakeit.IntRange(0, 100),
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// NewMetadata returns row metadata with the given rank
func NewMetadata(rank int) *viewdb.Document {
	doc, err := viewdb.NewDocumentFrom(map[string]any{
		"rank":    rank,
		"updated": gofakeit.Date().Unix(),
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// TasksByStatus groups tasks by status, excluding archived tasks, and sorts them by priority
func TasksByStatus(opts ...viewdb.ViewOpt) *viewdb.View {
	return viewdb.NewView(
		viewdb.GroupByObject(func(collection, key string, object *viewdb.Document) string {
			status := object.GetString("status")
			if status == "archived" {
				return ""
			}
			return status
		}),
		viewdb.SortByObject(func(group, c1, k1 string, o1 *viewdb.Document, c2, k2 string, o2 *viewdb.Document) int {
			return viewdb.CompareField("priority", o1, o2)
		}),
		opts...,
	)
}

// RowsByCollection groups rows by collection and sorts them by key
func RowsByCollection(opts ...viewdb.ViewOpt) *viewdb.View {
	return viewdb.NewView(
		viewdb.GroupByKey(func(collection, key string) string {
			return collection
		}),
		viewdb.SortByKey(func(group, c1, k1, c2, k2 string) int {
			return cmp.Compare(k1, k2)
		}),
		opts...,
	)
}

// TestConfig returns the config of an in-memory database
func TestConfig() viewdb.Config {
	return viewdb.Config{
		KV: viewdb.KVConfig{
			Provider: "badger",
			Params: map[string]any{
				"storage_path": "",
			},
		},
		LogLevel: "error",
	}
}

// TestDB opens an in-memory database, runs fn and closes the database
func TestDB(fn func(ctx context.Context, db *viewdb.Database), opts ...viewdb.DBOpt) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	opts = append([]viewdb.DBOpt{viewdb.WithLogger(viewdb.NewNopLogger())}, opts...)
	db, err := viewdb.Open(ctx, TestConfig(), opts...)
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	fn(ctx, db)
	return nil
}
