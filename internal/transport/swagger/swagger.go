package swagger

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SpecURL is where the OpenAPI document is served and where Swagger UI looks for it.
const SpecURL = "/openapi.yml"

func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL(SpecURL),
	)
}

// Spec is an OpenAPI document that was loaded and validated at startup, so a
// broken api/openapi.yml fails the boot instead of the Swagger UI.
type Spec struct {
	raw []byte
	doc *openapi3.T
}

func Load(ctx context.Context, path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read openapi spec: %w", err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parse openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi spec: %w", err)
	}

	return &Spec{raw: raw, doc: doc}, nil
}

func (s *Spec) Title() string {
	if s.doc.Info == nil {
		return ""
	}
	return s.doc.Info.Title
}

func (s *Spec) Version() string {
	if s.doc.Info == nil {
		return ""
	}
	return s.doc.Info.Version
}

// HasOperation reports whether the document describes method on path, with
// path relative to the server base such as "/payment/confirm".
func (s *Spec) HasOperation(method, path string) bool {
	if s.doc.Paths == nil {
		return false
	}
	item := s.doc.Paths.Value(path)
	if item == nil {
		return false
	}
	return item.GetOperation(method) != nil
}

func (s *Spec) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.raw)
}
