package viewdb

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestOpts(t *testing.T) {
	t.Run("with logger", func(t *testing.T) {
		d := &Database{}
		logger := NewNopLogger()
		WithLogger(logger)(d)
		assert.Equal(t, logger, d.logger)
	})
	t.Run("with view", func(t *testing.T) {
		d := &Database{}
		view := NewView(GroupByKey(func(collection, key string) string {
			return collection
		}), SortByKey(func(group, c1, k1, c2, k2 string) int {
			return 0
		}))
		WithView("a", view)(d)
		WithView("b", view)(d)
		assert.Equal(t, []namedView{{name: "a", view: view}, {name: "b", view: view}}, d.initViews)
	})
	t.Run("with metrics registry", func(t *testing.T) {
		d := &Database{}
		registry := prometheus.NewRegistry()
		WithMetricsRegistry(registry)(d)
		assert.Equal(t, registry, d.registry)
	})
}
