// Package httpapi exposes the proxy and the run relay over HTTP.
//
// Routes mirror the browser-facing API of the actor wizard: a credential is
// read from the x-api-key header or the apiKey body field and forwarded to
// the remote service; nothing is stored server-side.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/appify/internal/config"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/internal/proxy"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// Proxy is the set of upstream operations the API serves.
// *proxy.Service implements it.
type Proxy interface {
	ValidateCredential(ctx context.Context, credential string) (*types.User, error)
	ListActors(ctx context.Context, credential string, filter proxy.ListActorsFilter) (*types.Page[types.ActorSummary], error)
	GetActorDetail(ctx context.Context, credential, actorID string) (*types.ActorDetail, error)
	StartRun(ctx context.Context, credential, actorID string, input map[string]any, opts types.RunOptions) (*types.Run, error)
	GetRun(ctx context.Context, credential, runID string) (*types.Run, error)
	ListRuns(ctx context.Context, credential string, filter proxy.ListRunsFilter) (*types.Page[types.Run], error)
	AbortRun(ctx context.Context, credential, runID string) (*types.AbortResult, error)
	GetRunResults(ctx context.Context, credential, runID string, q proxy.ResultsQuery) (*types.DatasetPage, error)
	GetRunLog(ctx context.Context, credential, runID string) (string, error)
}

// Watcher starts status polling for a freshly created run.
// *relay.Relay implements it.
type Watcher interface {
	WatchStarted(run *types.Run, credential string) (bool, error)
}

// Deps are the collaborators behind the routes. Only Proxy is required.
type Deps struct {
	Proxy    Proxy
	Relay    Watcher
	Hub      http.Handler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// Config controls the middleware stack.
type Config struct {
	FrontendURL string
	BodyLimit   int64
	RateLimit   config.RateLimitConfig
}

// DefaultConfig matches the defaults of internal/config.
func DefaultConfig() Config {
	return Config{
		FrontendURL: "http://localhost:3000",
		BodyLimit:   10 << 20,
		RateLimit: config.RateLimitConfig{
			Enabled:  true,
			Requests: 100,
			Window:   15 * time.Minute,
		},
	}
}

// FromConfig builds the API config from the loaded application config.
func FromConfig(c *config.Config) Config {
	return Config{
		FrontendURL: c.Server.FrontendURL,
		BodyLimit:   c.Server.BodyLimit,
		RateLimit:   c.RateLimit,
	}
}

type handlers struct {
	proxy   Proxy
	relay   Watcher
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(deps Deps, cfg Config) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	logger = logger.With("component", "httpapi")

	h := &handlers{
		proxy:   deps.Proxy,
		relay:   deps.Relay,
		metrics: deps.Metrics,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer(logger))
	r.Use(instrument(logger, deps.Metrics))
	r.Use(securityHeaders)
	r.Use(corsHandler(cfg.FrontendURL))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	// One limiter is shared by every limited route so a client's budget
	// spans the whole API.
	limiter := rateLimit(cfg.RateLimit, deps.Metrics)

	r.With(limiter).Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter)
		r.Use(bodyLimit(cfg.BodyLimit))

		r.Get("/openapi.json", handleOpenAPI)
		r.Post("/validate-key", h.handleValidateKey)

		r.Group(func(r chi.Router) {
			r.Use(requireCredential)

			r.Get("/actors", h.handleListActors)
			r.Get("/actors/{actorId}", h.handleGetActor)
			r.Post("/actors/{actorId}/run", h.handleStartRun(false))
			r.Post("/actors/{actorId}/run-with-updates", h.handleStartRun(true))

			r.Get("/runs", h.handleListRuns)
			r.Get("/runs/{runId}", h.handleGetRun)
			r.Get("/runs/{runId}/results", h.handleRunResults)
			r.Get("/runs/{runId}/log", h.handleRunLog)
			r.Post("/runs/{runId}/abort", h.handleAbortRun)
		})
	})

	if deps.Gatherer != nil {
		r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)
	}
	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeHTTP)
	}
	return r
}
