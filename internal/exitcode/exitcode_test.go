package exitcode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	apperrors "github.com/felixgeelhaar/appify/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"ValidationError", ValidationError, 3},
		{"NotFound", NotFound, 4},
		{"AuthError", AuthError, 5},
		{"NetworkError", NetworkError, 6},
		{"UpstreamError", UpstreamError, 7},
		{"RunFailed", RunFailed, 8},
		{"Interrupted", Interrupted, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "missing credential",
			err:      apperrors.NewMissingCredentialError(),
			expected: AuthError,
		},
		{
			name:     "wrapped invalid credential",
			err:      fmt.Errorf("list actors: %w", apperrors.NewInvalidCredentialError(nil)),
			expected: AuthError,
		},
		{
			name:     "not found",
			err:      apperrors.NewNotFoundError(nil),
			expected: NotFound,
		},
		{
			name:     "upstream unavailable",
			err:      apperrors.NewUpstreamUnavailableError(errors.New("dial tcp")),
			expected: NetworkError,
		},
		{
			name:     "upstream rejection",
			err:      apperrors.NewUpstreamError(400, "Input is not valid"),
			expected: UpstreamError,
		},
		{
			name:     "upstream decode",
			err:      apperrors.NewUpstreamDecodeError(errors.New("unexpected EOF")),
			expected: UpstreamError,
		},
		{
			name:     "validation",
			err:      apperrors.NewValidationError(map[string]string{"q": "Query is required"}),
			expected: ValidationError,
		},
		{
			name:     "bad request",
			err:      apperrors.NewBadRequestError("invalid JSON body"),
			expected: UsageError,
		},
		{
			name:     "config invalid",
			err:      apperrors.NewConfigInvalidError("server.port must be positive", nil),
			expected: UsageError,
		},
		{
			name:     "run failed",
			err:      fmt.Errorf("run run-1 finished with status FAILED: %w", ErrRunFailed),
			expected: RunFailed,
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("request failed: %w", context.DeadlineExceeded),
			expected: NetworkError,
		},
		{
			name:     "net error",
			err:      fmt.Errorf("request failed: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}),
			expected: NetworkError,
		},
		{
			name:     "connection refused text",
			err:      errors.New("dial tcp 127.0.0.1:3001: connection refused"),
			expected: NetworkError,
		},
		{
			name:     "unknown host",
			err:      errors.New("lookup api.example: no such host"),
			expected: NetworkError,
		},
		{
			name:     "timeout error",
			err:      errors.New("request timeout"),
			expected: NetworkError,
		},
		{
			name:     "unknown command",
			err:      errors.New(`unknown command "foo" for "appify"`),
			expected: UsageError,
		},
		{
			name:     "unknown flag",
			err:      errors.New("unknown flag: --bar"),
			expected: UsageError,
		},
		{
			name:     "required flag",
			err:      errors.New(`required flag(s) "input" not set`),
			expected: UsageError,
		},
		{
			name:     "wrong arg count",
			err:      errors.New("accepts 1 arg(s), received 0"),
			expected: UsageError,
		},
		{
			name:     "unknown output format",
			err:      errors.New("unknown format: xml (supported: text, json, yaml)"),
			expected: UsageError,
		},
		{
			name:     "generic error",
			err:      errors.New("something went wrong"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := DetermineExitCode(tt.err)
			if code != tt.expected {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tt.err, code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode_CaseInsensitive(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "uppercase TIMEOUT",
			err:      errors.New("TIMEOUT waiting for server"),
			expected: NetworkError,
		},
		{
			name:     "mixed case Connection Refused",
			err:      errors.New("Connection Refused"),
			expected: NetworkError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := DetermineExitCode(tt.err)
			if code != tt.expected {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tt.err, code, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{Success, "Success"},
		{GeneralError, "General error"},
		{UsageError, "Usage error (invalid flags or arguments)"},
		{ValidationError, "Input validation failed"},
		{NotFound, "Actor or run not found"},
		{AuthError, "Authentication error"},
		{NetworkError, "Network error"},
		{UpstreamError, "Upstream request failed"},
		{RunFailed, "Run did not succeed"},
		{Interrupted, "Interrupted"},
		{99, "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			result := GetExitCodeDescription(tt.code)
			if result != tt.expected {
				t.Errorf("GetExitCodeDescription(%d) = %s, want %s", tt.code, result, tt.expected)
			}
		})
	}
}
