package httpapi

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/appify/internal/log"
)

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc, err := OpenAPI()
	require.NoError(t, err)
	assert.Equal(t, "appify API", doc.Info.Title)
}

// Every routed endpoint is described, with the right method.
func TestOpenAPICoversRoutes(t *testing.T) {
	doc, err := OpenAPI()
	require.NoError(t, err)

	router := NewRouter(Deps{
		Proxy:    &fakeProxy{},
		Hub:      http.NotFoundHandler(),
		Gatherer: nil,
		Logger:   log.Discard(),
	}, DefaultConfig()).(chi.Routes)

	err = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(strings.ReplaceAll(route, "/*/", "/"), "/")
		item := doc.Paths.Find(route)
		if !assert.NotNil(t, item, "route %s %s is not described", method, route) {
			return nil
		}
		assert.NotNil(t, item.GetOperation(method), "method %s missing for %s", method, route)
		return nil
	})
	require.NoError(t, err)
}

func TestOpenAPIEndpoint(t *testing.T) {
	api := newTestAPI(t, &fakeProxy{})

	rec := api.do(http.MethodGet, "/api/openapi.json", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "3.0.3", body["openapi"])
	assert.Contains(t, body["paths"], "/api/runs/{runId}/abort")
}
