package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/appify/internal/config"
	"github.com/felixgeelhaar/appify/internal/health"
)

func apiHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"path":"`+r.URL.Path+`"}`)
	})
}

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(health.NewProbeManager("1.0.0"), nil, Config{Address: ":3001"})

	if s.shutdownTimeout != 30*time.Second {
		t.Errorf("default shutdown timeout: expected 30s, got %v", s.shutdownTimeout)
	}
	if s.httpServer.ReadTimeout != 10*time.Second {
		t.Errorf("default read timeout: expected 10s, got %v", s.httpServer.ReadTimeout)
	}
	if s.httpServer.WriteTimeout != 60*time.Second {
		t.Errorf("default write timeout: expected 60s, got %v", s.httpServer.WriteTimeout)
	}
	if s.Addr() != ":3001" {
		t.Errorf("addr: expected :3001, got %s", s.Addr())
	}
}

func TestFromServerConfig(t *testing.T) {
	cfg := FromServerConfig(config.ServerConfig{
		Address:         "127.0.0.1",
		Port:            4000,
		ShutdownTimeout: 5 * time.Second,
	})

	if cfg.Address != "127.0.0.1:4000" {
		t.Errorf("address: expected 127.0.0.1:4000, got %s", cfg.Address)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout: expected 5s, got %v", cfg.ShutdownTimeout)
	}
}

func TestProbeEndpoints(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		initialized    bool
		inShutdown     bool
		expectedStatus int
		expectedHealth health.Status
	}{
		{"liveness", "/health/live", false, false, http.StatusOK, health.StatusHealthy},
		{"liveness during shutdown", "/health/live", true, true, http.StatusOK, health.StatusDegraded},
		{"readiness", "/health/ready", true, false, http.StatusOK, health.StatusHealthy},
		{"readiness during shutdown", "/health/ready", true, true, http.StatusServiceUnavailable, health.StatusUnhealthy},
		{"healthz maps to readiness", "/healthz", true, true, http.StatusServiceUnavailable, health.StatusUnhealthy},
		{"startup before serving", "/health/startup", false, false, http.StatusServiceUnavailable, health.StatusUnhealthy},
		{"startup after serving", "/health/startup", true, false, http.StatusOK, health.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := health.NewProbeManager("1.0.0")
			if tt.initialized {
				pm.MarkInitialized()
			}
			if tt.inShutdown {
				pm.MarkShutdown()
			}
			s := NewServer(pm, apiHandler(), Config{})

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("status code: expected %d, got %d", tt.expectedStatus, w.Code)
			}

			var result health.ProbeResult
			if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if result.Status != tt.expectedHealth {
				t.Errorf("health status: expected %s, got %s", tt.expectedHealth, result.Status)
			}
			if result.Version != "1.0.0" {
				t.Errorf("version: expected 1.0.0, got %s", result.Version)
			}
		})
	}
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	pm.AddChecker(health.CheckerFunc{CheckName: "upstream-api", Fn: func(context.Context) *health.Result {
		return health.Unhealthy("down")
	}})
	s := NewServer(pm, nil, Config{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var result health.ProbeResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.Checks["upstream-api"] == nil {
		t.Error("expected upstream-api check in response")
	}
}

func TestRequestsFallThroughToHandler(t *testing.T) {
	s := NewServer(health.NewProbeManager("1.0.0"), apiHandler(), Config{})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/actors", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"path":"/api/actors"}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestServerLifecycle(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	s := NewServer(pm, apiHandler(), Config{ShutdownTimeout: 2 * time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	url := "http://" + ln.Addr().String() + "/health/startup"
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not become ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var hooks []string
	s.OnShutdown(func() { hooks = append(hooks, "relay") })
	s.OnShutdown(func() { hooks = append(hooks, "telemetry") })

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != http.ErrServerClosed {
		t.Errorf("expected ErrServerClosed, got %v", err)
	}
	if !s.IsShuttingDown() || !pm.IsShuttingDown() {
		t.Error("expected shutdown to be recorded")
	}
	if len(hooks) != 2 || hooks[0] != "relay" || hooks[1] != "telemetry" {
		t.Errorf("unexpected hook order %v", hooks)
	}

	// A second call is a no-op.
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := NewServer(health.NewProbeManager("1.0.0"), nil, Config{Address: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestConcurrentProbeRequests(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	pm.MarkInitialized()
	s := NewServer(pm, apiHandler(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if w.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", w.Code)
			}
		}()
	}
	wg.Wait()
}
