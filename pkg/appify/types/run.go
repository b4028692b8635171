package types

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state reported by the remote actor service.
type RunStatus string

// Run statuses
const (
	RunStatusReady     RunStatus = "READY"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusAborting  RunStatus = "ABORTING"
	RunStatusAborted   RunStatus = "ABORTED"
	RunStatusTimedOut  RunStatus = "TIMED-OUT"
)

// IsActive reports whether the run may still change state.
// Only READY and RUNNING are active; every other status is terminal.
func (s RunStatus) IsActive() bool {
	return s == RunStatusReady || s == RunStatusRunning
}

// IsTerminal is the negation of IsActive.
func (s RunStatus) IsTerminal() bool {
	return !s.IsActive()
}

// RunOptions are optional run settings passed through to the remote service.
// Zero values are omitted.
type RunOptions struct {
	Timeout int    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Memory  int    `json:"memory,omitempty" yaml:"memory,omitempty"`
	Build   string `json:"build,omitempty" yaml:"build,omitempty"`
}

// IsZero reports whether no option is set.
func (o RunOptions) IsZero() bool {
	return o.Timeout == 0 && o.Memory == 0 && o.Build == ""
}

// Run is one invocation of an actor. It is only ever observed, never mutated
// locally.
type Run struct {
	ID                     string          `json:"id" yaml:"id"`
	ActID                  string          `json:"actId" yaml:"actId"`
	Status                 RunStatus       `json:"status" yaml:"status"`
	StartedAt              *time.Time      `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	FinishedAt             *time.Time      `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
	Stats                  json.RawMessage `json:"stats,omitempty" yaml:"-"`
	Options                json.RawMessage `json:"options,omitempty" yaml:"-"`
	ExitCode               *int            `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	DefaultDatasetID       string          `json:"defaultDatasetId,omitempty" yaml:"defaultDatasetId,omitempty"`
	DefaultKeyValueStoreID string          `json:"defaultKeyValueStoreId,omitempty" yaml:"defaultKeyValueStoreId,omitempty"`
	BuildID                string          `json:"buildId,omitempty" yaml:"buildId,omitempty"`
	BuildNumber            string          `json:"buildNumber,omitempty" yaml:"buildNumber,omitempty"`
	ContainerURL           string          `json:"containerUrl,omitempty" yaml:"containerUrl,omitempty"`
}

// Summary drops the fields that only the run detail endpoint exposes.
func (r Run) Summary() Run {
	out := r
	out.ExitCode = nil
	out.ContainerURL = ""
	out.BuildNumber = ""
	return out
}

// ListItem keeps the fields shown in run listings.
func (r Run) ListItem() Run {
	return Run{
		ID:          r.ID,
		ActID:       r.ActID,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Stats:       r.Stats,
		BuildNumber: r.BuildNumber,
		ExitCode:    r.ExitCode,
	}
}

// Update projects the run onto the fields pushed by the relay.
func (r Run) Update() RunUpdate {
	return RunUpdate{
		ID:         r.ID,
		Status:     r.Status,
		Stats:      r.Stats,
		FinishedAt: r.FinishedAt,
		ExitCode:   r.ExitCode,
	}
}

// AbortResult is returned by the abort endpoint.
type AbortResult struct {
	ID         string     `json:"id" yaml:"id"`
	Status     RunStatus  `json:"status" yaml:"status"`
	FinishedAt *time.Time `json:"finishedAt,omitempty" yaml:"finishedAt,omitempty"`
}

// RunUpdate is the payload of a run-update event.
type RunUpdate struct {
	ID         string          `json:"id"`
	Status     RunStatus       `json:"status"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	ExitCode   *int            `json:"exitCode,omitempty"`
}

// StartRunRequest is the body of the run endpoints.
type StartRunRequest struct {
	APIKey  string         `json:"apiKey,omitempty"`
	Input   map[string]any `json:"input"`
	Options RunOptions     `json:"options"`
}

// DefaultResultFormat is used when no format is requested.
const DefaultResultFormat = "json"

// DatasetPage is one page of run results. For JSON, Items holds the decoded
// records; for other formats Raw holds the body and ContentType its type.
type DatasetPage struct {
	Items       []json.RawMessage `json:"items"`
	Total       int               `json:"total"`
	Format      string            `json:"format,omitempty"`
	Raw         []byte            `json:"-"`
	ContentType string            `json:"-"`
}

// IsRaw reports whether the page carries a non-JSON body.
func (p *DatasetPage) IsRaw() bool {
	return p.Format != "" && p.Format != DefaultResultFormat
}

// RunEventType names a message pushed on the real-time channel.
type RunEventType string

// Run event types
const (
	EventRunUpdate RunEventType = "run-update"
	EventRunError  RunEventType = "run-error"
)

// RunEvent is one message pushed to the subscribers of a run.
type RunEvent struct {
	Type  RunEventType `json:"type"`
	RunID string       `json:"runId"`
	Data  *RunUpdate   `json:"data,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Final reports whether no further events follow for the run.
func (e RunEvent) Final() bool {
	return e.Type == EventRunError || (e.Data != nil && e.Data.Status.IsTerminal())
}

// Subscription frame types
const (
	FrameSubscribe   = "subscribe-run"
	FrameUnsubscribe = "unsubscribe-run"
)

// SubscriptionFrame is sent by a real-time client. APIKey is optional;
// without it the connection's handshake credential is used.
type SubscriptionFrame struct {
	Type   string `json:"type"`
	RunID  string `json:"runId"`
	APIKey string `json:"apiKey,omitempty"`
}
