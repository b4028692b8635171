package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

type validateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// ValidateCredential checks credential against the remote service and
// returns the account it belongs to.
func (c *Client) ValidateCredential(ctx context.Context, credential string) (*types.User, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/validate-key",
		body:   validateKeyRequest{APIKey: c.credential(credential)},
	})
	if err != nil {
		return nil, err
	}
	var out types.ValidateKeyResponse
	if err := decode(resp.body, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// ListActors returns a page of the actor store.
func (c *Client) ListActors(ctx context.Context, credential string, filter types.ListActorsFilter) (*types.Page[types.ActorSummary], error) {
	var page types.Page[types.ActorSummary]
	err := c.getJSON(ctx, request{
		method:     http.MethodGet,
		path:       "/api/actors",
		query:      filter.Values(),
		credential: credential,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// GetActorDetail returns one actor with its input schema.
func (c *Client) GetActorDetail(ctx context.Context, credential, actorID string) (*types.ActorDetail, error) {
	var detail types.ActorDetail
	err := c.getJSON(ctx, request{
		method:     http.MethodGet,
		path:       "/api/actors/" + url.PathEscape(actorID),
		credential: credential,
	}, &detail)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// StartRun starts actorID with input.
func (c *Client) StartRun(ctx context.Context, credential, actorID string, input map[string]any, opts types.RunOptions) (*types.Run, error) {
	return c.startRun(ctx, "/run", credential, actorID, input, opts)
}

// StartRunWithUpdates starts actorID and asks the server to push status
// updates for it on the real-time channel.
func (c *Client) StartRunWithUpdates(ctx context.Context, credential, actorID string, input map[string]any, opts types.RunOptions) (*types.Run, error) {
	return c.startRun(ctx, "/run-with-updates", credential, actorID, input, opts)
}

func (c *Client) startRun(ctx context.Context, suffix, credential, actorID string, input map[string]any, opts types.RunOptions) (*types.Run, error) {
	if input == nil {
		input = map[string]any{}
	}
	resp, err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/api/actors/" + url.PathEscape(actorID) + suffix,
		body:       types.StartRunRequest{Input: input, Options: opts},
		credential: credential,
	})
	if err != nil {
		return nil, err
	}
	var run types.Run
	if err := decode(resp.body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun returns the current state of a run.
func (c *Client) GetRun(ctx context.Context, credential, runID string) (*types.Run, error) {
	var run types.Run
	err := c.getJSON(ctx, request{
		method:     http.MethodGet,
		path:       "/api/runs/" + url.PathEscape(runID),
		credential: credential,
	}, &run)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns a page of the caller's runs.
func (c *Client) ListRuns(ctx context.Context, credential string, filter types.ListRunsFilter) (*types.Page[types.Run], error) {
	var page types.Page[types.Run]
	err := c.getJSON(ctx, request{
		method:     http.MethodGet,
		path:       "/api/runs",
		query:      filter.Values(),
		credential: credential,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// AbortRun asks the remote service to stop a run.
func (c *Client) AbortRun(ctx context.Context, credential, runID string) (*types.AbortResult, error) {
	resp, err := c.do(ctx, request{
		method:     http.MethodPost,
		path:       "/api/runs/" + url.PathEscape(runID) + "/abort",
		credential: credential,
	})
	if err != nil {
		return nil, err
	}
	var out types.AbortResult
	if err := decode(resp.body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRunResults returns a page of a run's dataset. JSON pages are decoded
// into Items; other formats come back verbatim in Raw.
func (c *Client) GetRunResults(ctx context.Context, credential, runID string, q types.ResultsQuery) (*types.DatasetPage, error) {
	q = q.Normalized()
	resp, err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/api/runs/" + url.PathEscape(runID) + "/results",
		query:      q.Values(),
		credential: credential,
		accept:     "*/*",
	})
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(q.Format, types.DefaultResultFormat) {
		return &types.DatasetPage{
			Format:      q.Format,
			Raw:         resp.body,
			ContentType: resp.header.Get("Content-Type"),
		}, nil
	}

	var page types.DatasetPage
	if err := decode(resp.body, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []json.RawMessage{}
	}
	return &page, nil
}

// GetRunLog returns the run's log as plain text.
func (c *Client) GetRunLog(ctx context.Context, credential, runID string) (string, error) {
	resp, err := c.do(ctx, request{
		method:     http.MethodGet,
		path:       "/api/runs/" + url.PathEscape(runID) + "/log",
		credential: credential,
		accept:     "text/plain",
	})
	if err != nil {
		return "", err
	}
	return string(resp.body), nil
}
