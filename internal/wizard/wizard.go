// Package wizard drives the five-step actor run flow: enter a key, pick an
// actor, fill its input form, start the run and show the result.
//
// The Controller is UI agnostic. The terminal UI renders Snapshot() and calls
// one transition per user action; backend calls are made without holding the
// controller lock so rendering never waits on the network.
package wizard

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/form"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// Backend is the set of remote operations the wizard needs. Both the
// in-process proxy and the HTTP client implement it.
type Backend interface {
	ValidateCredential(ctx context.Context, credential string) (*types.User, error)
	ListActors(ctx context.Context, credential string, filter types.ListActorsFilter) (*types.Page[types.ActorSummary], error)
	GetActorDetail(ctx context.Context, credential, actorID string) (*types.ActorDetail, error)
	StartRun(ctx context.Context, credential, actorID string, input map[string]any, opts types.RunOptions) (*types.Run, error)
	GetRun(ctx context.Context, credential, runID string) (*types.Run, error)
	GetRunResults(ctx context.Context, credential, runID string, q types.ResultsQuery) (*types.DatasetPage, error)
}

// User-facing messages.
const (
	msgEnterKey        = "Please enter your API key"
	msgMissingRequired = "Please fill in required fields: "
	msgExecutionFailed = "Actor execution failed"
)

var errBusy = errors.New(errors.ErrCodeWizardStep, "another operation is in progress")

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics records step transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithActorsFilter sets the store query used after the key is accepted.
func WithActorsFilter(f types.ListActorsFilter) Option {
	return func(c *Controller) { c.actorsFilter = f }
}

// WithRunOptions sets the options sent with every run.
func WithRunOptions(o types.RunOptions) Option {
	return func(c *Controller) { c.runOptions = o }
}

// WithResultsLimit caps the number of result items fetched for display.
func WithResultsLimit(n int) Option {
	return func(c *Controller) { c.resultsLimit = n }
}

// Controller holds one wizard session.
type Controller struct {
	backend      Backend
	logger       *log.Logger
	metrics      *metrics.Metrics
	actorsFilter types.ListActorsFilter
	runOptions   types.RunOptions
	resultsLimit int

	mu    sync.Mutex
	state State
	// gen changes on Reset so that a call started before it cannot write
	// into the fresh session.
	gen uint64
}

// New creates a controller on step 1.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:      backend,
		logger:       log.DefaultLogger(),
		resultsLimit: 100,
		state:        initialState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "wizard")
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Step
}

// begin checks the step and marks the controller busy. It returns the
// session generation and credential to use outside the lock.
func (c *Controller) begin(op string, want Step) (uint64, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Step != want {
		return 0, "", errors.NewWizardStepError(op, int(c.state.Step))
	}
	if c.state.Loading {
		return 0, "", errBusy
	}
	c.state.Loading = true
	c.state.Error = ""
	return c.gen, c.state.Credential, nil
}

// finish applies fn under the lock unless the session was reset meanwhile.
func (c *Controller) finish(gen uint64, fn func(s *State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.state.Loading = false
	fn(&c.state)
	return true
}

// moveTo must be called with the lock held.
func (c *Controller) moveTo(s *State, to Step) {
	if c.metrics != nil {
		c.metrics.WizardTransitions.WithLabelValues(s.Step.String(), to.String()).Inc()
	}
	c.logger.Debug("wizard step", "from", s.Step.String(), "to", to.String())
	s.Step = to
}

// SubmitCredential validates key and loads the actor list. On success the
// wizard moves to actor selection.
func (c *Controller) SubmitCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state.Step != StepAwaitingCredential {
			return errors.NewWizardStepError("submit credential", int(c.state.Step))
		}
		c.state.Error = msgEnterKey
		return errors.NewMissingCredentialError()
	}

	gen, _, err := c.begin("submit credential", StepAwaitingCredential)
	if err != nil {
		return err
	}

	user, err := c.backend.ValidateCredential(ctx, key)
	var page *types.Page[types.ActorSummary]
	if err == nil {
		page, err = c.backend.ListActors(ctx, key, c.actorsFilter)
	}

	c.finish(gen, func(s *State) {
		if err != nil {
			s.Error = describe(err)
			return
		}
		s.Credential = key
		s.User = user
		s.Actors = append([]types.ActorSummary{}, page.Items...)
		c.moveTo(s, StepSelectingActor)
	})
	return err
}

// SelectActor loads the actor's detail and prepares its input form with
// the schema defaults.
func (c *Controller) SelectActor(ctx context.Context, actorID string) error {
	gen, credential, err := c.begin("select actor", StepSelectingActor)
	if err != nil {
		return err
	}

	detail, err := c.backend.GetActorDetail(ctx, credential, actorID)
	var schema *form.Schema
	if err == nil {
		schema, err = form.ParseSchema(detail.InputSchema)
	}

	c.finish(gen, func(s *State) {
		if err != nil {
			s.Error = "Failed to fetch actor schema: " + describe(err)
			return
		}
		s.Actor = detail
		s.Schema = schema
		s.Values = form.Defaults(schema)
		s.FieldErrors = nil
		c.moveTo(s, StepConfiguringInput)
	})
	return err
}

// SetValue stores the value of one form field.
func (c *Controller) SetValue(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Step != StepConfiguringInput {
		return errors.NewWizardStepError("set value", int(c.state.Step))
	}
	if f, ok := c.state.Schema.Field(name); ok {
		value = form.Coerce(f.Kind, value)
	}
	c.state.Values[name] = value
	delete(c.state.FieldErrors, name)
	return nil
}

// SetValues stores several values at once.
func (c *Controller) SetValues(values form.Values) error {
	for name, v := range values {
		if err := c.SetValue(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Submit validates the form. Invalid input keeps the wizard on the form
// with per-field errors; valid input moves it to execution.
func (c *Controller) Submit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Step != StepConfiguringInput {
		return errors.NewWizardStepError("submit", int(c.state.Step))
	}

	errs := form.ValidateInputs(c.state.Schema, c.state.Values)
	if len(errs) > 0 {
		c.state.FieldErrors = errs
		if missing := form.MissingRequired(c.state.Schema, c.state.Values); len(missing) > 0 {
			c.state.Error = msgMissingRequired + strings.Join(missing, ", ")
		} else {
			c.state.Error = firstError(c.state.Schema, errs)
		}
		return errors.NewValidationError(errs)
	}

	c.state.FieldErrors = nil
	c.state.Error = ""
	c.moveTo(&c.state, StepExecuting)
	return nil
}

// Execute starts the run. Success and failure both move to the result
// step; a failure is not retried.
func (c *Controller) Execute(ctx context.Context) error {
	gen, credential, err := c.begin("execute", StepExecuting)
	if err != nil {
		return err
	}

	c.mu.Lock()
	actorID := c.state.SelectedActor()
	input := form.Payload(c.state.Schema, c.state.Values)
	c.mu.Unlock()

	run, err := c.backend.StartRun(ctx, credential, actorID, input, c.runOptions)

	c.finish(gen, func(s *State) {
		if err != nil {
			s.Error = msgExecutionFailed
			s.Result = &Result{Status: ResultError, Message: describe(err)}
			c.logger.WithError(err).Warn("run request failed", "actor_id", actorID)
		} else {
			s.Result = &Result{Status: ResultSuccess, Run: run}
		}
		c.moveTo(s, StepShowingResult)
	})
	return err
}

// Refresh re-reads the run shown on the result step and, once it has
// SUCCEEDED, loads the first page of its results. It reports whether the
// run may still change.
func (c *Controller) Refresh(ctx context.Context) (bool, error) {
	gen, credential, err := c.begin("refresh", StepShowingResult)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	var runID string
	loaded := false
	if r := c.state.Result; r != nil && r.Run != nil {
		runID = r.Run.ID
		loaded = r.ItemsLoaded
	}
	c.mu.Unlock()

	if runID == "" {
		c.finish(gen, func(*State) {})
		return false, nil
	}

	run, err := c.backend.GetRun(ctx, credential, runID)
	var page *types.DatasetPage
	if err == nil && run.Status == types.RunStatusSucceeded && !loaded {
		page, err = c.backend.GetRunResults(ctx, credential, runID, types.ResultsQuery{Limit: c.resultsLimit})
	}

	c.finish(gen, func(s *State) {
		if err != nil {
			s.Error = describe(err)
			return
		}
		if s.Result == nil {
			return
		}
		s.Result.Run = run
		if page != nil {
			s.Result.Items = page.Items
			s.Result.ResultCount = page.Total
			s.Result.ItemsLoaded = true
		}
		if run.Status.IsTerminal() && run.Status != types.RunStatusSucceeded {
			s.Result.Message = fmt.Sprintf("Run finished with status %s", run.Status)
		}
	})
	if err != nil {
		return false, err
	}
	return run.Status.IsActive(), nil
}

// ApplyUpdate merges a pushed status update into the shown run. Updates for
// other runs are ignored.
func (c *Controller) ApplyUpdate(u types.RunUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.state.Result
	if c.state.Step != StepShowingResult || r == nil || r.Run == nil || r.Run.ID != u.ID {
		return false
	}
	run := *r.Run
	run.Status = u.Status
	if u.Stats != nil {
		run.Stats = u.Stats
	}
	if u.FinishedAt != nil {
		run.FinishedAt = u.FinishedAt
	}
	if u.ExitCode != nil {
		run.ExitCode = u.ExitCode
	}
	r.Run = &run
	return true
}

// Reset returns to step 1 and clears the whole session, including the key.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.metrics != nil && c.state.Step != StepAwaitingCredential {
		c.metrics.WizardTransitions.WithLabelValues(c.state.Step.String(), StepAwaitingCredential.String()).Inc()
	}
	c.gen++
	c.state = initialState()
}

func describe(err error) string {
	if appErr, ok := errors.As(err); ok {
		return appErr.Message
	}
	return err.Error()
}

func firstError(schema *form.Schema, errs map[string]string) string {
	for _, f := range schema.Fields {
		if msg, ok := errs[f.Name]; ok {
			return msg
		}
	}
	return ""
}
