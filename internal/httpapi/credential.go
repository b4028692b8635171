package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/appify/internal/errors"
)

// APIKeyHeader carries the caller's credential.
const APIKeyHeader = "X-API-Key"

// CredentialFrom returns the credential stored by requireCredential.
func CredentialFrom(ctx context.Context) string {
	c, _ := ctx.Value(credentialKey).(string)
	return c
}

// requireCredential rejects requests carrying no credential before any
// handler runs, so no upstream call is made for them.
func requireCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if credential == "" {
			var err error
			credential, err = bodyCredential(r)
			if err != nil {
				writeError(w, r, err)
				return
			}
		}
		if credential == "" {
			writeError(w, r, errors.NewMissingCredentialError())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), credentialKey, credential)))
	})
}

// bodyCredential peeks at the apiKey field of a JSON body and restores the
// body for the handler. Bodies that are not JSON objects carry no credential.
func bodyCredential(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", bodyReadError(err)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var body struct {
		APIKey string `json:"apiKey"`
	}
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &body) != nil {
		return "", nil
	}
	return strings.TrimSpace(body.APIKey), nil
}
