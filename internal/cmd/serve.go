package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/appify/internal/health"
	"github.com/felixgeelhaar/appify/internal/httpapi"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/internal/proxy"
	"github.com/felixgeelhaar/appify/internal/relay"
	"github.com/felixgeelhaar/appify/internal/server"
	"github.com/felixgeelhaar/appify/internal/telemetry"
	"github.com/felixgeelhaar/appify/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the appify HTTP API: the Apify proxy under /api, the run update
WebSocket at /ws and Prometheus metrics at /metrics.

The server also provides Kubernetes-style health probe endpoints:
  /health/live    - Liveness probe (process alive and responsive)
  /health/ready   - Readiness probe (Apify reachable, relay running)
  /health/startup - Startup probe (finished initialization)
  /healthz        - Backward-compatible readiness endpoint

The server shuts down gracefully on SIGTERM or SIGINT, draining open
connections and stopping run polling.

Example:
  # Start server on the default port 3001
  appify serve

  # Start server on a custom port for a frontend on another origin
  appify serve --port 8080 --frontend-url https://app.example.com`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveOpts struct {
	port            int
	address         string
	frontendURL     string
	shutdownTimeout time.Duration
	noRateLimit     bool
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&serveOpts.port, "port", 0, "port to listen on (default 3001, or $PORT)")
	f.StringVar(&serveOpts.address, "address", "", "address to bind to (default 0.0.0.0)")
	f.StringVar(&serveOpts.frontendURL, "frontend-url", "", "browser origin allowed by CORS and the WebSocket (default http://localhost:3000)")
	f.DurationVar(&serveOpts.shutdownTimeout, "shutdown-timeout", 0, "maximum time to wait for connections to drain during shutdown")
	f.BoolVar(&serveOpts.noRateLimit, "no-rate-limit", false, "disable the per-client rate limit")

	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command) error {
	cfg := app.cfg
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = serveOpts.port
	}
	if flags.Changed("address") {
		cfg.Server.Address = serveOpts.address
	}
	if flags.Changed("frontend-url") {
		cfg.Server.FrontendURL = serveOpts.frontendURL
	}
	if flags.Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout = serveOpts.shutdownTimeout
	}
	if serveOpts.noRateLimit {
		cfg.RateLimit.Enabled = false
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := applyServeFlags(cmd); err != nil {
		return err
	}
	cfg := app.cfg
	logger := app.logger
	info := version.GetInfo()

	tcfg := telemetry.ExportConfig(cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure, cfg.Telemetry.SampleRatio)
	tcfg.ServiceVersion = info.Version
	shutdownTracing, err := telemetry.InitProvider(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	registry, m := metrics.NewRegistry()

	svc := proxy.New(proxyConfig(cfg), proxy.WithLogger(logger), proxy.WithMetrics(m))
	rl := relay.New(svc, relay.Config{
		Interval:     cfg.Relay.Interval,
		InitialDelay: cfg.Relay.InitialDelay,
	}, relay.WithLogger(logger), relay.WithMetrics(m))

	hubCfg := relay.DefaultHubConfig()
	if cfg.Server.FrontendURL != "" {
		hubCfg.AllowedOrigins = []string{cfg.Server.FrontendURL}
	}
	hub := relay.NewHub(rl, hubCfg)

	router := httpapi.NewRouter(httpapi.Deps{
		Proxy:    svc,
		Relay:    rl,
		Hub:      hub,
		Metrics:  m,
		Gatherer: registry,
		Logger:   logger,
	}, httpapi.FromConfig(cfg))

	pm := health.NewProbeManager(info.Version)
	pm.AddChecker(health.NewUpstreamChecker(svc), health.NewRelayChecker(rl))

	srv := server.NewServer(pm, router, server.FromServerConfig(cfg.Server))
	srv.OnShutdown(hub.Close)
	srv.OnShutdown(func() { _ = rl.Close() })
	srv.OnShutdown(func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	})

	addr := cfg.Server.ListenAddr()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "appify %s\n", info.Short())
	fmt.Fprintf(out, "Listening on: http://%s\n", addr)
	fmt.Fprintf(out, "Proxying:     %s\n", svc.BaseURL())
	fmt.Fprintf(out, "Frontend:     %s\n\n", cfg.Server.FrontendURL)
	fmt.Fprintf(out, "Press Ctrl+C to stop the server\n\n")

	logger.Info("starting server",
		"addr", addr,
		"upstream", svc.BaseURL(),
		"rate_limit", cfg.RateLimit.Enabled,
		"tracing", tcfg.Enabled,
	)
	return srv.Run(ctx)
}
