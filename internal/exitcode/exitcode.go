package exitcode

import (
	"context"
	stderrors "errors"
	"net"
	"os"
	"strings"

	"github.com/felixgeelhaar/appify/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates run input that failed local validation
	ValidationError = 3

	// NotFound indicates an unknown actor or run
	NotFound = 4

	// AuthError indicates a missing or rejected API key
	AuthError = 5

	// NetworkError indicates the server or the upstream service was unreachable
	NetworkError = 6

	// UpstreamError indicates the upstream service rejected the request
	UpstreamError = 7

	// RunFailed indicates a watched run finished in a status other than SUCCEEDED
	RunFailed = 8

	// Interrupted indicates the user cancelled with Ctrl+C
	Interrupted = 130
)

// ErrRunFailed is returned by commands that wait for a run which then ends
// unsuccessfully.
var ErrRunFailed = stderrors.New("run did not succeed")

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	code := DetermineExitCode(err)
	Exit(code)
}

// DetermineExitCode analyzes an error and returns the appropriate exit code.
// Coded application errors are mapped by code; anything else falls back to
// inspecting the error chain and message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeMissingCredential, errors.ErrCodeInvalidCredential:
		return AuthError
	case errors.ErrCodeNotFound:
		return NotFound
	case errors.ErrCodeUpstreamUnavailable:
		return NetworkError
	case errors.ErrCodeUpstreamError, errors.ErrCodeUpstreamDecode:
		return UpstreamError
	case errors.ErrCodeValidation:
		return ValidationError
	case errors.ErrCodeBadRequest, errors.ErrCodeTooLarge, errors.ErrCodeConfigInvalid:
		return UsageError
	}

	if stderrors.Is(err, ErrRunFailed) {
		return RunFailed
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NetworkError
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return NetworkError
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	// Usage errors
	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}
	if strings.Contains(errMsg, "invalid argument") || strings.Contains(errMsg, "unknown format") {
		return UsageError
	}

	// Default to general error
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationError:
		return "Input validation failed"
	case NotFound:
		return "Actor or run not found"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case UpstreamError:
		return "Upstream request failed"
	case RunFailed:
		return "Run did not succeed"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
