package viewdb

import "github.com/prometheus/client_golang/prometheus"

// DBOpt is an option for configuring a database
type DBOpt func(d *Database)

// WithLogger overrides the default zap logger
func WithLogger(logger Logger) DBOpt {
	return func(d *Database) {
		d.logger = logger
	}
}

// WithView registers the view when the database opens
func WithView(name string, view *View) DBOpt {
	return func(d *Database) {
		d.initViews = append(d.initViews, namedView{name: name, view: view})
	}
}

// WithMetricsRegistry registers the database's metrics on the given registry instead of a private one
func WithMetricsRegistry(registry *prometheus.Registry) DBOpt {
	return func(d *Database) {
		d.registry = registry
	}
}
