package proxy

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

var errInvalidSchema = stderrors.New("input schema is not valid JSON")

// ListRunsFilter selects a page of the caller's run history.
type ListRunsFilter = types.ListRunsFilter

// ResultsQuery selects a page of a run's default dataset.
type ResultsQuery = types.ResultsQuery

func runOptionsQuery(opts types.RunOptions) url.Values {
	q := url.Values{}
	if opts.Timeout > 0 {
		q.Set("timeout", strconv.Itoa(opts.Timeout))
	}
	if opts.Memory > 0 {
		q.Set("memory", strconv.Itoa(opts.Memory))
	}
	if opts.Build != "" {
		q.Set("build", opts.Build)
	}
	return q
}

func runPath(runID string) string {
	return "/actor-runs/" + url.PathEscape(runID)
}

// StartRun starts actorID with input as the run input. Options are sent as
// query parameters when set.
func (s *Service) StartRun(ctx context.Context, credential, actorID string, input map[string]any, opts types.RunOptions) (*types.Run, error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}

	resp, err := s.do(ctx, call{
		operation:  "start_run",
		method:     http.MethodPost,
		path:       "/acts/" + url.PathEscape(actorID) + "/runs",
		query:      runOptionsQuery(opts),
		body:       input,
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	var run types.Run
	if err := decode(resp.body, &run); err != nil {
		return nil, err
	}
	summary := run.Summary()
	return &summary, nil
}

// GetRun returns the current state of a run.
func (s *Service) GetRun(ctx context.Context, credential, runID string) (*types.Run, error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, call{
		operation:  "get_run",
		method:     http.MethodGet,
		path:       runPath(runID),
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

// ListRuns returns a page of the caller's runs.
func (s *Service) ListRuns(ctx context.Context, credential string, filter ListRunsFilter) (*types.Page[types.Run], error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, call{
		operation:  "list_runs",
		method:     http.MethodGet,
		path:       "/actor-runs",
		query:      filter.Values(),
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	var page types.Page[types.Run]
	if err := decode(resp.body, &page); err != nil {
		return nil, err
	}
	items := make([]types.Run, 0, len(page.Items))
	for _, run := range page.Items {
		items = append(items, run.ListItem())
	}
	page.Items = items
	return &page, nil
}

// AbortRun asks the remote service to stop a run. The terminal status is
// observed by the next poll.
func (s *Service) AbortRun(ctx context.Context, credential, runID string) (*types.AbortResult, error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, call{
		operation:  "abort_run",
		method:     http.MethodPost,
		path:       runPath(runID) + "/abort",
		body:       map[string]any{},
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	var run types.Run
	if err := decode(resp.body, &run); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RunsAborted.Inc()
	}
	return &types.AbortResult{ID: run.ID, Status: run.Status, FinishedAt: run.FinishedAt}, nil
}

// GetRunResults fetches a page of the run's default dataset. A run without a
// dataset yields an empty page and no dataset call.
func (s *Service) GetRunResults(ctx context.Context, credential, runID string, q ResultsQuery) (*types.DatasetPage, error) {
	if err := requireCredential(credential); err != nil {
		return nil, err
	}
	q = q.Normalized()

	run, err := s.GetRun(ctx, credential, runID)
	if err != nil {
		return nil, err
	}
	if run.DefaultDatasetID == "" {
		return &types.DatasetPage{Items: []json.RawMessage{}, Total: 0}, nil
	}

	resp, err := s.do(ctx, call{
		operation:  "get_dataset_items",
		method:     http.MethodGet,
		path:       "/datasets/" + url.PathEscape(run.DefaultDatasetID) + "/items",
		query:      q.Values(),
		credential: credential,
	})
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(q.Format, types.DefaultResultFormat) {
		return &types.DatasetPage{
			Format:      q.Format,
			Raw:         resp.body,
			ContentType: resp.contentType,
		}, nil
	}

	items, err := datasetItems(resp.body)
	if err != nil {
		return nil, err
	}
	return &types.DatasetPage{Items: items, Total: len(items), Format: types.DefaultResultFormat}, nil
}

// datasetItems splits a JSON array body into records; any other JSON value
// becomes a single record.
func datasetItems(body []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return []json.RawMessage{}, nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, decode([]byte(trimmed), new(any))
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, decode([]byte(trimmed), new(any))
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		return items, nil
	}
	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// GetRunLog returns the run's log as plain text.
func (s *Service) GetRunLog(ctx context.Context, credential, runID string) (string, error) {
	if err := requireCredential(credential); err != nil {
		return "", err
	}

	resp, err := s.do(ctx, call{
		operation:  "get_run_log",
		method:     http.MethodGet,
		path:       runPath(runID) + "/log",
		credential: credential,
	})
	if err != nil {
		return "", err
	}
	return string(resp.body), nil
}
