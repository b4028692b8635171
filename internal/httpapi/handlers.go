package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/proxy"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "OK",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	})
}

type validateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// handleValidateKey answers every failure as {valid:false, error}: 400 for a
// missing key, 401 for a key the remote service rejects and the mapped status
// otherwise.
func (h *handlers) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	var req validateKeyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeValidateKeyError(w, r, err)
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		writeJSON(w, http.StatusBadRequest, types.ValidateKeyResponse{Valid: false, Error: "API key is required"})
		return
	}

	user, err := h.proxy.ValidateCredential(r.Context(), key)
	if errors.HasCode(err, errors.ErrCodeInvalidCredential) {
		writeJSON(w, http.StatusUnauthorized, types.ValidateKeyResponse{Valid: false, Error: "Invalid API key"})
		return
	}
	if err != nil {
		writeValidateKeyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ValidateKeyResponse{Valid: true, User: user})
}

func writeValidateKeyError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	writeJSON(w, status, types.ValidateKeyResponse{Valid: false, Error: errorBody(err).Error})

	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).WithError(err).ErrorContext(r.Context(), "key validation failed", "status", status)
	}
}

func (h *handlers) handleListActors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.proxy.ListActors(r.Context(), CredentialFrom(r.Context()), proxy.ListActorsFilter{
		Limit:    limit,
		Offset:   offset,
		Category: q.Get("category"),
		Search:   q.Get("search"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) handleGetActor(w http.ResponseWriter, r *http.Request) {
	detail, err := h.proxy.GetActorDetail(r.Context(), CredentialFrom(r.Context()), chi.URLParam(r, "actorId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleStartRun serves both run endpoints. With updates, polling starts
// for runs that are still active.
func (h *handlers) handleStartRun(withUpdates bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StartRunRequest
		if err := decodeJSONBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		credential := CredentialFrom(r.Context())

		run, err := h.proxy.StartRun(r.Context(), credential, chi.URLParam(r, "actorId"), req.Input, req.Options)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if h.metrics != nil {
			h.metrics.RunsStarted.WithLabelValues(strconv.FormatBool(withUpdates)).Inc()
		}

		if withUpdates && h.relay != nil {
			started, err := h.relay.WatchStarted(run, credential)
			if err != nil {
				loggerFrom(r.Context()).WithError(err).WarnContext(r.Context(), "run status polling not started", "run_id", run.ID)
			} else if started {
				loggerFrom(r.Context()).DebugContext(r.Context(), "run status polling scheduled", "run_id", run.ID)
			}
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func (h *handlers) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.proxy.GetRun(r.Context(), CredentialFrom(r.Context()), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.proxy.ListRuns(r.Context(), CredentialFrom(r.Context()), proxy.ListRunsFilter{
		Limit:  limit,
		Offset: offset,
		Status: q.Get("status"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) handleAbortRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.proxy.AbortRun(r.Context(), CredentialFrom(r.Context()), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRunResults returns JSON pages as {items,total,format} and any other
// format as the raw upstream body with its content type.
func (h *handlers) handleRunResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.proxy.GetRunResults(r.Context(), CredentialFrom(r.Context()), chi.URLParam(r, "runId"), proxy.ResultsQuery{
		Format: q.Get("format"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if page.IsRaw() {
		if page.ContentType != "" {
			w.Header().Set("Content-Type", page.ContentType)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page.Raw)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) handleRunLog(w http.ResponseWriter, r *http.Request) {
	text, err := h.proxy.GetRunLog(r.Context(), CredentialFrom(r.Context()), chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// pagination parses optional limit and offset parameters. Zero means the
// proxy default.
func pagination(limitParam, offsetParam string) (int, int, error) {
	limit, err := optionalInt("limit", limitParam)
	if err != nil {
		return 0, 0, err
	}
	offset, err := optionalInt("offset", offsetParam)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func optionalInt(name, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, errors.NewBadRequestError(name + " must be a non-negative integer")
	}
	return n, nil
}
