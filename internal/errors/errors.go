package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Credential errors (AUTH-001 to AUTH-099)
	ErrCodeMissingCredential ErrorCode = "AUTH-001"
	ErrCodeInvalidCredential ErrorCode = "AUTH-002"

	// Upstream errors (UPSTREAM-001 to UPSTREAM-099)
	ErrCodeNotFound            ErrorCode = "UPSTREAM-001"
	ErrCodeUpstreamUnavailable ErrorCode = "UPSTREAM-002"
	ErrCodeUpstreamError       ErrorCode = "UPSTREAM-003"
	ErrCodeUpstreamDecode      ErrorCode = "UPSTREAM-004"

	// Input errors (INPUT-001 to INPUT-099)
	ErrCodeValidation ErrorCode = "INPUT-001"
	ErrCodeBadRequest ErrorCode = "INPUT-002"
	ErrCodeTooLarge   ErrorCode = "INPUT-003"

	// Relay errors (RELAY-001 to RELAY-099)
	ErrCodeRelayClosed ErrorCode = "RELAY-001"

	// Wizard errors (WIZARD-001 to WIZARD-099)
	ErrCodeWizardStep ErrorCode = "WIZARD-001"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
)

// AppError represents an enhanced error with code, suggestions, and documentation
type AppError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error

	// Status is the upstream HTTP status for upstream errors, zero otherwise.
	Status int

	// Fields holds per-field messages for validation errors.
	Fields map[string]string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *AppError) WithSuggestion(suggestion string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *AppError) WithDocs(url string) *AppError {
	e.DocsURL = url
	return e
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps an error onto the status the HTTP API responds with.
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch appErr.Code {
	case ErrCodeMissingCredential, ErrCodeInvalidCredential:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeUpstreamError:
		if appErr.Status >= 400 && appErr.Status <= 599 {
			return appErr.Status
		}
		return http.StatusBadGateway
	case ErrCodeUpstreamDecode:
		return http.StatusBadGateway
	case ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// NewMissingCredentialError creates the error returned when no API key was supplied.
// It is raised before any upstream call.
func NewMissingCredentialError() *AppError {
	return New(ErrCodeMissingCredential, "API key is required").
		WithSuggestion("Send the key in the x-api-key header or as apiKey in the JSON body").
		WithSuggestion("Set APPIFY_API_KEY or pass --api-key on the command line")
}

// NewInvalidCredentialError creates the error for a key the remote service rejected
func NewInvalidCredentialError(cause error) *AppError {
	return Wrap(ErrCodeInvalidCredential, "Invalid API key", cause).
		WithSuggestion("Copy the API token again from the Apify console (Settings → Integrations)").
		WithDocs("https://docs.apify.com/platform/integrations/api")
}

// NewNotFoundError creates a resource not found error
func NewNotFoundError(cause error) *AppError {
	return Wrap(ErrCodeNotFound, "Resource not found", cause).
		WithSuggestion("Check the actor or run ID")
}

// NewUpstreamUnavailableError creates the error for an unreachable remote service
func NewUpstreamUnavailableError(cause error) *AppError {
	return Wrap(ErrCodeUpstreamUnavailable, "Apify service unavailable", cause).
		WithSuggestion("Check network connectivity to the Apify API").
		WithSuggestion("Verify upstream.base_url in the configuration")
}

// NewUpstreamError creates an error for any other non-2xx upstream response.
// The upstream message is kept as the error message.
func NewUpstreamError(status int, message string) *AppError {
	if message == "" {
		message = http.StatusText(status)
	}
	e := New(ErrCodeUpstreamError, message)
	e.Status = status
	return e
}

// NewUpstreamDecodeError creates an error for an unreadable upstream body
func NewUpstreamDecodeError(cause error) *AppError {
	return Wrap(ErrCodeUpstreamDecode, "unexpected response from Apify", cause)
}

// NewValidationError creates a local input validation error.
// Validation errors are never forwarded upstream.
func NewValidationError(fields map[string]string) *AppError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	e := New(ErrCodeValidation, fmt.Sprintf("invalid input: %s", strings.Join(names, ", ")))
	e.Fields = fields
	return e
}

// NewBadRequestError creates an error for a malformed request
func NewBadRequestError(message string) *AppError {
	return New(ErrCodeBadRequest, message)
}

// NewTooLargeError creates an error for a request body over limit bytes
func NewTooLargeError(limit int64) *AppError {
	return New(ErrCodeTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit)).
		WithSuggestion("Raise server.body_limit if larger inputs are expected")
}

// NewRelayClosedError creates the error returned after the relay shut down
func NewRelayClosedError() *AppError {
	return New(ErrCodeRelayClosed, "run update relay is closed")
}

// NewWizardStepError creates an error for an operation attempted on the wrong step
func NewWizardStepError(operation string, step int) *AppError {
	return New(ErrCodeWizardStep, fmt.Sprintf("%s is not allowed on step %d", operation, step))
}

// NewConfigInvalidError creates a configuration error
func NewConfigInvalidError(details string, cause error) *AppError {
	return Wrap(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", details), cause).
		WithSuggestion("Run 'appify config view' to inspect the effective configuration")
}
