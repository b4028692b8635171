// Package proxy forwards authenticated calls to the remote actor service
// (the Apify v2 API) and reshapes its responses into the appify wire types.
//
// Every operation takes the caller's credential explicitly. Nothing is cached
// and no call is retried; failures are classified into coded errors from
// internal/errors.
package proxy

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/internal/telemetry"
)

// DefaultBaseURL is the public Apify v2 API.
const DefaultBaseURL = "https://api.apify.com/v2"

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// Config configures the upstream connection.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DefaultConfig returns the configuration for the public API.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   30 * time.Second,
		UserAgent: "appify",
	}
}

// Option customises a Service.
type Option func(*Service)

// WithHTTPClient replaces the HTTP client. The client's timeout wins over
// Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records upstream calls into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// Service talks to the remote actor service.
type Service struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// New creates a Service.
func New(cfg Config, opts ...Option) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	s := &Service{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    log.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns the upstream base URL.
func (s *Service) BaseURL() string {
	return s.baseURL
}

// Fingerprint returns a short, stable, non-reversible identifier for a
// credential, safe to log.
func Fingerprint(credential string) string {
	if credential == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])[:12]
}

// call describes one upstream round trip.
type call struct {
	operation  string
	method     string
	path       string
	query      url.Values
	body       any
	credential string
}

// response is a successful upstream response.
type response struct {
	status      int
	contentType string
	body        []byte
}

// do performs one upstream call and classifies any failure.
func (s *Service) do(ctx context.Context, c call) (*response, error) {
	ctx, span := telemetry.StartUpstreamSpan(ctx, c.operation, c.method, c.path)
	defer span.End()

	start := time.Now()
	resp, err := s.roundTrip(ctx, c)
	elapsed := time.Since(start)

	s.metrics.ObserveUpstream(c.operation, elapsed, string(errors.CodeOf(err)))

	logger := s.logger.With(
		"operation", c.operation,
		"path", c.path,
		"key_fp", Fingerprint(c.credential),
		"duration_ms", elapsed.Milliseconds(),
	)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.WithError(err).DebugContext(ctx, "upstream call failed")
		return nil, err
	}

	telemetry.RecordSuccess(span, attribute.Int("http.status_code", resp.status))
	logger.DebugContext(ctx, "upstream call", "status", resp.status)
	return resp, nil
}

func (s *Service) roundTrip(ctx context.Context, c call) (*response, error) {
	u := s.baseURL + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}

	var reqBody io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		if err != nil {
			return nil, errors.NewBadRequestError(fmt.Sprintf("failed to marshal request body: %v", err))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errors.NewUpstreamUnavailableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classify(resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError(err)
	}

	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

// errorBody covers both the nested Apify error shape
// {"error":{"type","message"}} and a flat {"error","message"} shape.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// classify maps a non-2xx upstream response onto a coded error.
func classify(status int, body []byte) error {
	message := upstreamMessage(body)
	cause := fmt.Errorf("upstream responded %d", status)
	if message != "" {
		cause = fmt.Errorf("upstream responded %d: %s", status, message)
	}

	switch status {
	case http.StatusUnauthorized:
		return errors.NewInvalidCredentialError(cause)
	case http.StatusNotFound:
		return errors.NewNotFoundError(cause)
	default:
		return errors.NewUpstreamError(status, message)
	}
}

func upstreamMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return strings.TrimSpace(string(body))
	}

	if len(eb.Error) > 0 {
		var nested struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(eb.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(eb.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}
	return eb.Message
}

// unwrapData returns the value under a top-level "data" key when body is an
// object whose only key is "data", and body unchanged otherwise.
func unwrapData(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if data, ok := envelope["data"]; ok && len(envelope) == 1 {
		return data
	}
	return trimmed
}

// decode unmarshals an upstream body, tolerating the data envelope.
func decode(body []byte, target any) error {
	if err := json.Unmarshal(unwrapData(body), target); err != nil {
		return errors.NewUpstreamDecodeError(err)
	}
	return nil
}

// requireCredential fails fast before any network traffic.
func requireCredential(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return errors.NewMissingCredentialError()
	}
	return nil
}

// Ping checks that the remote service answers HTTP at all. Any HTTP status
// counts as reachable.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.do(ctx, call{
		operation: "ping",
		method:    http.MethodGet,
		path:      "/store",
		query:     url.Values{"limit": {"1"}},
	})
	if err == nil {
		return nil
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodeUpstreamUnavailable, "":
		return err
	default:
		return nil
	}
}
