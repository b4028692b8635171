package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/felixgeelhaar/appify/internal/errors"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto a status and body. Coded errors keep their
// message; anything else is an internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	writeJSON(w, status, errorBody(err))

	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).WithError(err).ErrorContext(r.Context(), "request failed", "status", status)
	}
}

func errorBody(err error) errorResponse {
	appErr, ok := errors.As(err)
	if !ok {
		return errorResponse{Error: "Internal server error", Message: err.Error()}
	}
	switch appErr.Code {
	case errors.ErrCodeUpstreamError:
		return errorResponse{Error: "Apify request failed", Message: appErr.Message}
	case errors.ErrCodeValidation:
		return errorResponse{Error: appErr.Message, Fields: appErr.Fields}
	default:
		return errorResponse{Error: appErr.Message}
	}
}

// decodeJSONBody decodes an optional JSON body. An empty body leaves dst
// untouched.
func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil, stderrors.Is(err, io.EOF):
		return nil
	default:
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return bodyReadError(err)
		}
		return errors.NewBadRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}
}

func bodyReadError(err error) error {
	var maxErr *http.MaxBytesError
	if stderrors.As(err, &maxErr) {
		return errors.NewTooLargeError(maxErr.Limit)
	}
	return errors.NewBadRequestError("could not read request body")
}
