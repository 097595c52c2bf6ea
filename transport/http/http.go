package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/autom8ter/viewdb"
	"github.com/autom8ter/viewdb/util"
	"github.com/getkin/kin-openapi/routers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Config configures the http server
type Config struct {
	Port int `json:"port" validate:"required"`
	// Title, Version and Description fill in the served openapi document
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Server serves a database's rows and views over http
//
// GET    /api/openapi.yaml
// GET    /api/sdk?pkg={} (generated go client)
// GET    /api/views
// GET    /api/views/{view}/groups
// GET    /api/views/{view}/groups/{group}?order={asc|desc}&offset={}&limit={}&expand={true|false}
// GET    /api/views/{view}/locate/{collection}/{key}
// GET    /api/rows/{collection}/{key}
// PUT    /api/rows/{collection}/{key} ({"object": {}, "metadata": {}} in request body)
// DELETE /api/rows/{collection}/{key}
// GET    /api/changes (websocket stream of changesets)
// GET    /metrics
type Server struct {
	params   Config
	db       *viewdb.Database
	router   *mux.Router
	upgrader websocket.Upgrader
	rawSpec  []byte
	spec     routers.Router
}

// New creates a new http server
func New(db *viewdb.Database, params Config, mwares ...mux.MiddlewareFunc) (*Server, error) {
	if err := util.ValidateStruct(params); err != nil {
		return nil, err
	}
	s := &Server{
		params:   params,
		db:       db,
		router:   mux.NewRouter(),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
	var err error
	s.rawSpec, err = renderSpec(params)
	if err != nil {
		return nil, err
	}
	s.spec, err = newSpecRouter(s.rawSpec)
	if err != nil {
		return nil, err
	}
	s.registerRoutes(append([]mux.MiddlewareFunc{s.logRequests, s.validateRequests}, mwares...))
	return s, nil
}

func (s *Server) registerRoutes(mwares []mux.MiddlewareFunc) {
	s.router.Use(mwares...)
	s.router.HandleFunc("/api/openapi.yaml", s.specHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sdk", s.sdkHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/views", s.listViewsHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/views/{view}/groups", s.listGroupsHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/views/{view}/groups/{group}", s.getGroupHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/views/{view}/locate/{collection}/{key}", s.locateHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/rows/{collection}/{key}", s.getRowHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/api/rows/{collection}/{key}", s.putRowHandler()).Methods(http.MethodPut)
	s.router.HandleFunc("/api/rows/{collection}/{key}", s.deleteRowHandler()).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/changes", s.changesHandler())
	s.router.Handle("/metrics", promhttp.HandlerFor(s.db.MetricsRegistry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve serves http on the configured port until the context is cancelled
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%v", s.params.Port),
		Handler: s.router,
	}
	egp, ctx := errgroup.WithContext(ctx)
	egp.Go(func() error {
		s.db.Logger().Info(ctx, "starting http server", map[string]any{
			"port": s.params.Port,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	egp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return egp.Wait()
}

func (s *Server) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler.ServeHTTP(w, r)
		s.db.Logger().Debug(r.Context(), "request served", map[string]any{
			"request.method": r.Method,
			"request.path":   r.URL.Path,
			"request.vars":   mux.Vars(r),
			"duration":       float64(time.Since(start).Microseconds()) / float64(1000),
		})
	})
}
