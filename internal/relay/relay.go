// Package relay polls the remote actor service for run status and pushes
// each observation to the subscribers of that run.
//
// One poll loop runs per run id no matter how many subscribers or start
// requests ask for it. A loop ends on the first non-active status or on the
// first fetch failure; failures are reported once and never retried.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/internal/telemetry"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// Default poll timings.
const (
	DefaultInterval     = 5 * time.Second
	DefaultInitialDelay = 2 * time.Second
)

// RunFetcher reads the current state of a run.
type RunFetcher interface {
	GetRun(ctx context.Context, credential, runID string) (*types.Run, error)
}

// Config holds poll timings.
type Config struct {
	// Interval separates consecutive polls of one run.
	Interval time.Duration
	// InitialDelay is the delay before the first poll of a run started with
	// updates.
	InitialDelay time.Duration
	// PollTimeout bounds a single status fetch. Zero means Interval.
	PollTimeout time.Duration
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, InitialDelay: DefaultInitialDelay}
}

// Option customises a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithMetrics records polls, loops and subscriptions into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay owns the subscription registry and the poll loops.
type Relay struct {
	fetcher  RunFetcher
	cfg      Config
	registry *Registry
	logger   *log.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	loops    map[string]uint64
	nextLoop uint64
	closed   bool
}

// New creates a Relay that reads runs through fetcher.
func New(fetcher RunFetcher, cfg Config, opts ...Option) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = cfg.Interval
	}

	r := &Relay{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  log.DefaultLogger(),
		loops:   map[string]uint64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registry = NewRegistry(r.metrics)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Registry returns the subscription registry.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Config returns the effective timings.
func (r *Relay) Config() Config {
	return r.cfg
}

// Watch starts polling runID with credential after initialDelay. It reports
// false when a loop for runID is already running; that loop keeps its own
// credential and schedule.
func (r *Relay) Watch(runID, credential string, initialDelay time.Duration) (bool, error) {
	if runID == "" {
		return false, errors.NewBadRequestError("runId is required")
	}
	if credential == "" {
		return false, errors.NewMissingCredentialError()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, errors.NewRelayClosedError()
	}
	if _, running := r.loops[runID]; running {
		return false, nil
	}
	r.nextLoop++
	token := r.nextLoop
	r.loops[runID] = token
	if r.metrics != nil {
		r.metrics.RelayActiveLoops.Inc()
	}

	r.wg.Add(1)
	go r.loop(runID, token, credential, initialDelay)

	r.logger.Debug("run poll loop started", "run_id", runID, "initial_delay", initialDelay.String())
	return true, nil
}

// WatchStarted arms polling for a run that was just created, using the
// configured initial delay. Runs that are already terminal are not polled.
func (r *Relay) WatchStarted(run *types.Run, credential string) (bool, error) {
	if run == nil || !run.Status.IsActive() {
		return false, nil
	}
	return r.Watch(run.ID, credential, r.cfg.InitialDelay)
}

// Active reports whether a poll loop for runID is running.
func (r *Relay) Active(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.loops[runID]
	return ok
}

// ActiveLoops returns the number of running poll loops.
func (r *Relay) ActiveLoops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.loops)
}

// Closed reports whether Close was called.
func (r *Relay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close stops every poll loop and waits for them to exit. Events are not
// published for polls interrupted by Close.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}

func (r *Relay) loop(runID string, token uint64, credential string, delay time.Duration) {
	defer r.wg.Done()

	released := false
	release := func() {
		if !released {
			released = true
			r.release(runID, token)
		}
	}
	defer release()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
		}

		run, err := r.poll(runID, credential, attempt)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.WithError(err).Warn("run poll failed", "run_id", runID, "attempt", attempt)
			// Subscribers that join after the final event start a new loop.
			release()
			r.publish(ErrorEvent(runID, err))
			return
		}

		if run.Status.IsTerminal() {
			release()
			r.publish(UpdateEvent(run))
			r.logger.Debug("run reached terminal status", "run_id", runID, "status", string(run.Status), "polls", attempt)
			return
		}
		r.publish(UpdateEvent(run))
		timer.Reset(r.cfg.Interval)
	}
}

func (r *Relay) poll(runID, credential string, attempt int) (*types.Run, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.PollTimeout)
	defer cancel()

	ctx, span := telemetry.StartPollSpan(ctx, runID, attempt)
	defer span.End()

	run, err := r.fetcher.GetRun(ctx, credential, runID)
	if r.metrics != nil {
		r.metrics.ObservePoll(err == nil)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if run.ID == "" {
		run.ID = runID
	}
	telemetry.RecordSuccess(span)
	return run, nil
}

// release removes the loop identified by token from the loop table. A newer
// loop for the same run keeps its entry.
func (r *Relay) release(runID string, token uint64) {
	if r.metrics != nil {
		r.metrics.RelayActiveLoops.Dec()
	}

	r.mu.Lock()
	if r.loops[runID] == token {
		delete(r.loops, runID)
	}
	r.mu.Unlock()
}

// publish delivers ev to the current subscribers of its run, in
// subscription order. A subscriber that fails to accept the event is
// skipped.
func (r *Relay) publish(ev Event) {
	for _, sub := range r.registry.Subscribers(ev.RunID) {
		if err := sub.Send(ev); err != nil {
			r.logger.Debug("dropping event for subscriber", "run_id", ev.RunID, "subscriber", sub.ID(), "error", err.Error())
			continue
		}
		if r.metrics != nil {
			r.metrics.RelayEvents.WithLabelValues(string(ev.Type)).Inc()
		}
	}
}
