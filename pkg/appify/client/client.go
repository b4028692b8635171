// Package client is a Go client for the appify HTTP API.
//
// Usage:
//
//	c := client.New("http://localhost:3001", apiKey)
//	actors, err := c.ListActors(ctx, "", types.ListActorsFilter{Search: "maps"})
//
// Every operation takes a credential; an empty credential falls back to the
// key the client was created with. Idempotent reads are retried on 5xx
// responses, 429 and network failures; run starts and aborts never are.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/version"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"
	userAgentName   = "appify-client"
)

// Config holds client configuration.
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    30 * time.Second,
	}
}

// Client talks to an appify server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// New creates a client with the default configuration.
func New(baseURL, apiKey string) *Client {
	return NewWithConfig(baseURL, apiKey, nil)
}

// NewWithConfig creates a client with custom configuration. A nil cfg uses
// DefaultConfig.
func NewWithConfig(baseURL, apiKey string, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	// Kind is the short error field of the body, Message the detail.
	Kind      string
	Message   string
	RequestID string
	Fields    map[string]string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("appify API error (status %d, request_id %s): %s", e.StatusCode, e.RequestID, e.Message)
	}
	return fmt.Sprintf("appify API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap exposes the coded error matching the response, so callers can use
// errors.HasCode on client errors the same way as on server-side ones.
func (e *APIError) Unwrap() error {
	switch {
	case e.Message == "API key is required":
		return errors.NewMissingCredentialError()
	case e.StatusCode == http.StatusUnauthorized:
		return errors.NewInvalidCredentialError(nil)
	case e.StatusCode == http.StatusNotFound:
		return errors.NewNotFoundError(nil)
	case e.StatusCode == http.StatusServiceUnavailable:
		return errors.NewUpstreamUnavailableError(nil)
	case e.StatusCode == http.StatusRequestEntityTooLarge:
		return errors.New(errors.ErrCodeTooLarge, e.Message)
	case e.StatusCode == http.StatusUnprocessableEntity && len(e.Fields) > 0:
		return errors.NewValidationError(e.Fields)
	case e.Kind == upstreamFailure:
		return errors.NewUpstreamError(e.StatusCode, e.Message)
	case e.StatusCode == http.StatusBadRequest:
		return errors.NewBadRequestError(e.Message)
	default:
		return errors.NewUpstreamError(e.StatusCode, e.Message)
	}
}

// upstreamFailure marks errors the remote actor service returned.
const upstreamFailure = "Apify request failed"

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
	}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		e.Kind = eb.Error
		e.Message = eb.Message
		e.Fields = eb.Fields
		if e.Message == "" {
			e.Message = eb.Error
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// request describes one API call.
type request struct {
	method     string
	path       string
	query      url.Values
	body       any
	credential string
	accept     string
}

// response is a successful API response.
type response struct {
	header http.Header
	body   []byte
}

func (c *Client) credential(credential string) string {
	if credential != "" {
		return credential
	}
	return c.apiKey
}

// do performs req. GET requests refused by the server's own rate limit with
// a Retry-After are retried after the advertised wait. Every other failure,
// including upstream errors the server forwards, is returned as is so no
// Apify call is ever repeated.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	if req.method != http.MethodGet || c.maxRetries <= 0 {
		return c.doOnce(ctx, req)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.RandomizationFactor = 0

	attempts := 0
	resp, err := backoff.Retry(ctx, func() (*response, error) {
		attempts++
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		return nil, retryable(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(c.maxRetries+1)))

	if err != nil && attempts > c.maxRetries && isRateLimited(err) {
		return nil, fmt.Errorf("max retries exceeded: %w", err)
	}
	return resp, err
}

// retryable marks err permanent unless the server asked to come back later.
func retryable(err error) error {
	if !isRateLimited(err) {
		return backoff.Permanent(err)
	}
	return err
}

// isRateLimited reports a 429 that carried a Retry-After.
func isRateLimited(err error) bool {
	var wait *backoff.RetryAfterError
	return stderrors.As(err, &wait)
}

func (c *Client) doOnce(ctx context.Context, req request) (*response, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("User-Agent", version.UserAgent(userAgentName))
	if key := c.credential(req.credential); key != "" {
		httpReq.Header.Set(apiKeyHeader, key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp, data)
		if resp.StatusCode == http.StatusTooManyRequests {
			// the server's rate limit window decides the wait
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return nil, stderrors.Join(apiErr, backoff.RetryAfter(secs))
			}
		}
		return nil, apiErr
	}
	return &response{header: resp.Header, body: data}, nil
}

func (c *Client) getJSON(ctx context.Context, req request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	return decode(resp.body, out)
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// HealthResponse is the body of the liveness endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Health checks that the server is reachable and reports OK.
func (c *Client) Health(ctx context.Context) error {
	var h HealthResponse
	if err := c.getJSON(ctx, request{method: http.MethodGet, path: "/health"}, &h); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if h.Status != "OK" {
		return fmt.Errorf("server reported unhealthy status: %s", h.Status)
	}
	return nil
}
