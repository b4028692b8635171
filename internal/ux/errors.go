package ux

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"

	"github.com/felixgeelhaar/appify/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\n💡 Suggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError analyzes an error and adds contextual suggestions.
// Coded application errors already carry their own suggestions and are
// returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.As(err); ok && len(appErr.Suggestions) > 0 {
		return err
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeMissingCredential:
		return NewErrorWithSuggestion(err,
			"Set APPIFY_API_KEY, pass --api-key, or add api_key to the config file")
	case errors.ErrCodeInvalidCredential:
		return NewErrorWithSuggestion(err,
			"Check the key with 'appify wizard' or copy a fresh token from the Apify console")
	case errors.ErrCodeNotFound:
		return NewErrorWithSuggestion(err,
			"List what exists with 'appify actors list' or 'appify runs list'")
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithSuggestion(err,
			"The request timed out. Retry, or raise upstream.timeout in the configuration")
	}

	var netErr *net.OpError
	if stderrors.As(err, &netErr) && netErr.Op == "dial" {
		return NewErrorWithSuggestion(err,
			"Start the server with 'appify serve' or point --server at a running instance")
	}

	errMsg := err.Error()

	// Network errors
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no route to host") {
		return NewErrorWithSuggestion(err,
			"Start the server with 'appify serve' or point --server at a running instance")
	}
	if strings.Contains(errMsg, "no such host") {
		return NewErrorWithSuggestion(err,
			"Check the host in --server or upstream.base_url")
	}

	// Config file errors
	if strings.Contains(errMsg, "no such file or directory") && strings.Contains(errMsg, "config") {
		return NewErrorWithSuggestion(err,
			"Run 'appify config path' to see where the configuration is read from")
	}

	// Output errors
	if strings.Contains(errMsg, "text output is not supported") {
		return NewErrorWithSuggestion(err, "Use --output json")
	}

	return err
}

// FormatError provides consistent error formatting with context
func FormatError(err error, context string) error {
	if err == nil {
		return nil
	}

	enhanced := EnhanceError(err)
	if context != "" {
		return fmt.Errorf("%s: %w", context, enhanced)
	}
	return enhanced
}
