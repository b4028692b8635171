package wizard

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/appify/internal/form"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// Step is a wizard state. Steps only move forward, except Reset.
type Step int

// Wizard steps in order.
const (
	StepAwaitingCredential Step = iota + 1
	StepSelectingActor
	StepConfiguringInput
	StepExecuting
	StepShowingResult
)

var stepNames = map[Step]string{
	StepAwaitingCredential: "awaiting_credential",
	StepSelectingActor:     "selecting_actor",
	StepConfiguringInput:   "configuring_input",
	StepExecuting:          "executing",
	StepShowingResult:      "showing_result",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Title is the heading shown for the step.
func (s Step) Title() string {
	switch s {
	case StepAwaitingCredential:
		return "Enter API Key"
	case StepSelectingActor:
		return "Select Actor"
	case StepConfiguringInput:
		return "Configure Inputs"
	case StepExecuting:
		return "Executing Actor"
	case StepShowingResult:
		return "Execution Results"
	default:
		return ""
	}
}

// ResultStatus tells a successful run request from a failed one.
type ResultStatus string

// Result statuses.
const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
)

// Result is what the final step shows.
type Result struct {
	Status  ResultStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Run     *types.Run   `json:"run,omitempty"`

	// Items holds the first page of the run's dataset once it SUCCEEDED.
	Items       []json.RawMessage `json:"items,omitempty"`
	ResultCount int               `json:"resultCount"`
	ItemsLoaded bool              `json:"-"`
}

// ExecutionTime is the run's wall time, zero while it is unfinished.
func (r *Result) ExecutionTime() time.Duration {
	if r == nil || r.Run == nil || r.Run.StartedAt == nil || r.Run.FinishedAt == nil {
		return 0
	}
	return r.Run.FinishedAt.Sub(*r.Run.StartedAt)
}

// State is everything the wizard accumulated in one session.
type State struct {
	Step        Step
	Credential  string
	User        *types.User
	Actors      []types.ActorSummary
	Actor       *types.ActorDetail
	Schema      *form.Schema
	Values      form.Values
	FieldErrors map[string]string
	Result      *Result
	Error       string
	Loading     bool
}

// SelectedActor returns the chosen actor id, or "".
func (s State) SelectedActor() string {
	if s.Actor == nil {
		return ""
	}
	return s.Actor.ID
}

func initialState() State {
	return State{
		Step:   StepAwaitingCredential,
		Actors: []types.ActorSummary{},
		Values: form.Values{},
	}
}

// clone copies the mutable parts so a snapshot can be read without the
// controller lock.
func (s State) clone() State {
	out := s
	out.Actors = append([]types.ActorSummary(nil), s.Actors...)
	if out.Actors == nil {
		out.Actors = []types.ActorSummary{}
	}
	out.Values = s.Values.Clone()
	if s.FieldErrors != nil {
		out.FieldErrors = make(map[string]string, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			out.FieldErrors[k] = v
		}
	}
	if s.Result != nil {
		r := *s.Result
		if s.Result.Run != nil {
			run := *s.Result.Run
			r.Run = &run
		}
		r.Items = append([]json.RawMessage(nil), s.Result.Items...)
		out.Result = &r
	}
	return out
}
