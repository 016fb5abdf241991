package http

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openapiSpec []byte

func loadOpenAPI(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// validateRequest checks requests for documented operations against the
// OpenAPI document. Undocumented routes pass through untouched.
func (s *Server) validateRequest(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		item := s.doc.Paths[c.Path()]
		if item == nil {
			return next(c)
		}
		req := c.Request()
		op := item.GetOperation(req.Method)
		if op == nil {
			return next(c)
		}

		input := &openapi3filter.RequestValidationInput{
			Request: req,
			Route: &routers.Route{
				Spec:      s.doc,
				Path:      c.Path(),
				PathItem:  item,
				Method:    req.Method,
				Operation: op,
			},
			Options: &openapi3filter.Options{MultiError: false},
		}
		if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Detail: validationDetail(err)})
		}
		return next(c)
	}
}

func (s *Server) openapi(c echo.Context) error {
	return c.Blob(http.StatusOK, "application/yaml", openapiSpec)
}

func validationDetail(err error) string {
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			return fmt.Sprintf("%s: %s", strings.Join(ptr, "."), schemaErr.Reason)
		}
		return schemaErr.Reason
	}
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Reason != "" {
		return reqErr.Reason
	}
	return err.Error()
}
