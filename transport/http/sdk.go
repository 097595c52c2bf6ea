package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/autom8ter/viewdb/errors"
	"github.com/deepmap/oapi-codegen/pkg/codegen"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/huandu/xstrings"
)

// GenerateSDK writes the source of a go client for the api described by the server's openapi document. An empty
// package name is derived from the configured title.
func GenerateSDK(params Config, packageName string, w io.Writer) error {
	if packageName == "" {
		title := strings.TrimSpace(params.Title)
		if title == "" {
			title = "viewdb"
		}
		packageName = xstrings.ToSnakeCase(fmt.Sprintf("%s_client", title))
	}
	spec, err := renderSpec(params)
	if err != nil {
		return err
	}
	doc, err := openapi3.NewLoader().LoadFromData(spec)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to load openapi spec")
	}
	code, err := codegen.Generate(doc, codegen.Configuration{
		PackageName: packageName,
		Generate: codegen.GenerateOptions{
			Client:       true,
			Models:       true,
			EmbeddedSpec: true,
		},
	})
	if err != nil {
		return errors.Wrap(err, errors.Internal, "failed to generate sdk")
	}
	if _, err := io.WriteString(w, code); err != nil {
		return errors.Wrap(err, errors.Internal, "failed to write sdk")
	}
	return nil
}

func (s *Server) sdkHandler() http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		if err := GenerateSDK(s.params, r.URL.Query().Get("pkg"), w); err != nil {
			httpError(w, err)
			return
		}
	})
}
