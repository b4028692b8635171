package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	reg, m := NewRegistry()
	require.NotNil(t, reg)
	require.NotNil(t, m)

	m.UpstreamCalls.WithLabelValues("list_actors", "true").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["appify_upstream_calls_total"])
	assert.True(t, names["go_goroutines"])
}

func TestHandler(t *testing.T) {
	reg, m := NewRegistry()
	m.RunsAborted.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "appify_runs_aborted_total")
}

func TestMultipleRegistries(t *testing.T) {
	reg1, m1 := NewRegistry()
	_, m2 := NewRegistry()

	m1.RelayActiveLoops.Set(4)

	assert.NotSame(t, m1, m2)
	families, err := reg1.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
