package http

import (
	"bytes"
	"context"
	_ "embed"
	"net/http"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/autom8ter/viewdb/errors"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml.tmpl
var openapiTemplate string

// renderSpec renders the openapi document describing the server's routes
func renderSpec(params Config) ([]byte, error) {
	t, err := template.New("openapi").Funcs(sprig.TxtFuncMap()).Parse(openapiTemplate)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to parse openapi template")
	}
	buf := bytes.NewBuffer(nil)
	if err := t.Execute(buf, params); err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to render openapi template")
	}
	return buf.Bytes(), nil
}

// newSpecRouter loads and validates the document and returns a router matching requests to its operations
func newSpecRouter(spec []byte) (routers.Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to load openapi spec")
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, errors.Wrap(err, errors.Internal, "invalid openapi spec")
	}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "failed to route openapi spec")
	}
	return router, nil
}

// validateRequests rejects requests that do not match an operation of the openapi document
func (s *Server) validateRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := s.spec.FindRoute(r)
		if err != nil {
			httpError(w, errors.Wrap(err, errors.NotFound, "route not found"))
			return
		}
		if err := openapi3filter.ValidateRequest(r.Context(), &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: func(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
					return nil
				},
			},
		}); err != nil {
			httpError(w, errors.Wrap(err, errors.Validation, "invalid request"))
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) specHandler() http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(s.rawSpec)
	})
}
