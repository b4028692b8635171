package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/internal/metrics"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// scriptedFetcher returns the scripted statuses in order, then keeps
// returning the last one.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []types.RunStatus
	err      error
	calls    atomic.Int32
	keys     []string
}

func (f *scriptedFetcher) GetRun(ctx context.Context, credential, runID string) (*types.Run, error) {
	n := int(f.calls.Add(1))
	f.mu.Lock()
	f.keys = append(f.keys, credential)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	idx := n - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return &types.Run{ID: runID, Status: f.statuses[idx]}, nil
}

func (f *scriptedFetcher) credentials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

// recorder is a Subscriber that keeps every event.
type recorder struct {
	id     string
	mu     sync.Mutex
	events []Event
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func newTestRelay(t *testing.T, f RunFetcher, opts ...Option) *Relay {
	t.Helper()
	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	r := New(f, Config{Interval: 5 * time.Millisecond, InitialDelay: 5 * time.Millisecond}, opts...)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func statuses(events []Event) []types.RunStatus {
	out := make([]types.RunStatus, 0, len(events))
	for _, ev := range events {
		if ev.Data != nil {
			out = append(out, ev.Data.Status)
		}
	}
	return out
}

func TestRelayStopsAtTerminalStatus(t *testing.T) {
	f := &scriptedFetcher{statuses: []types.RunStatus{
		types.RunStatusRunning, types.RunStatusRunning, types.RunStatusSucceeded,
	}}
	r := newTestRelay(t, f)
	sub := &recorder{id: "s1"}
	r.Registry().Subscribe("run-1", sub)

	started, err := r.Watch("run-1", "key", 0)
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool { return !r.Active("run-1") }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	events := sub.snapshot()
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, EventRunUpdate, ev.Type)
		assert.Equal(t, "run-1", ev.RunID)
	}
	assert.Equal(t, []types.RunStatus{
		types.RunStatusRunning, types.RunStatusRunning, types.RunStatusSucceeded,
	}, statuses(events))
	assert.Equal(t, int32(3), f.calls.Load())
}

func TestRelayTreatsAbortingAsTerminal(t *testing.T) {
	f := &scriptedFetcher{statuses: []types.RunStatus{types.RunStatusReady, types.RunStatusAborting}}
	r := newTestRelay(t, f)
	sub := &recorder{id: "s1"}
	r.Registry().Subscribe("r", sub)

	_, err := r.Watch("r", "key", 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sub.snapshot()) == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !r.Active("r") }, time.Second, time.Millisecond)

	assert.Equal(t, []types.RunStatus{types.RunStatusReady, types.RunStatusAborting}, statuses(sub.snapshot()))
}

func TestRelayFetchErrorPublishesOneRunError(t *testing.T) {
	f := &scriptedFetcher{err: errors.NewNotFoundError(nil)}
	r := newTestRelay(t, f)
	sub := &recorder{id: "s1"}
	r.Registry().Subscribe("r", sub)

	_, err := r.Watch("r", "key", 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !r.Active("r") }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	events := sub.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventRunError, events[0].Type)
	assert.Equal(t, "Resource not found", events[0].Error)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRelayCollapsesLoopsPerRun(t *testing.T) {
	f := &scriptedFetcher{statuses: []types.RunStatus{types.RunStatusRunning}}
	r := New(f, Config{Interval: time.Hour}, WithLogger(log.Discard()))
	t.Cleanup(func() { _ = r.Close() })

	first, err := r.Watch("r", "key-a", time.Hour)
	require.NoError(t, err)
	second, err := r.Watch("r", "key-b", 0)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, 1, r.ActiveLoops())
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestRelayFanOutAndUnsubscribeIsolation(t *testing.T) {
	f := &scriptedFetcher{statuses: []types.RunStatus{types.RunStatusRunning}}
	r := New(f, Config{Interval: 20 * time.Millisecond}, WithLogger(log.Discard()))
	t.Cleanup(func() { _ = r.Close() })

	a := &recorder{id: "a"}
	b := &recorder{id: "b"}
	r.Registry().Subscribe("r", a)
	r.Registry().Subscribe("r", b)

	_, err := r.Watch("r", "key", 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(a.snapshot()) >= 1 && len(b.snapshot()) >= 1 }, time.Second, time.Millisecond)

	require.True(t, r.Registry().Unsubscribe("r", "a"))
	seenByA := len(a.snapshot())
	seenByB := len(b.snapshot())

	require.Eventually(t, func() bool { return len(b.snapshot()) >= seenByB+2 }, time.Second, time.Millisecond)
	assert.Equal(t, seenByA, len(a.snapshot()))
	assert.True(t, r.Active("r"))
}

func TestRelayWatchStarted(t *testing.T) {
	f := &scriptedFetcher{statuses: []types.RunStatus{types.RunStatusSucceeded}}
	r := newTestRelay(t, f)

	started, err := r.WatchStarted(&types.Run{ID: "done", Status: types.RunStatusSucceeded}, "key")
	require.NoError(t, err)
	assert.False(t, started)

	started, err = r.WatchStarted(&types.Run{ID: "live", Status: types.RunStatusRunning}, "key")
	require.NoError(t, err)
	assert.True(t, started)
}

func TestRelayWatchValidation(t *testing.T) {
	r := newTestRelay(t, &scriptedFetcher{})

	_, err := r.Watch("", "key", 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBadRequest))

	_, err = r.Watch("r", "", 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMissingCredential))
}

func TestRelayCloseStopsLoops(t *testing.T) {
	f := &scriptedFetcher{statuses: []types.RunStatus{types.RunStatusRunning}}
	r := New(f, Config{Interval: time.Hour}, WithLogger(log.Discard()))

	_, err := r.Watch("r", "key", time.Hour)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, 0, r.ActiveLoops())
	_, err = r.Watch("r2", "key", 0)
	assert.True(t, errors.HasCode(err, errors.ErrCodeRelayClosed))
	assert.NoError(t, r.Close())
}

func TestRelayMetrics(t *testing.T) {
	_, m := metrics.NewRegistry()
	f := &scriptedFetcher{statuses: []types.RunStatus{types.RunStatusRunning, types.RunStatusFailed}}
	r := newTestRelay(t, f, WithMetrics(m))
	r.Registry().Subscribe("r", &recorder{id: "s"})

	_, err := r.Watch("r", "key", 0)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RelayEvents.WithLabelValues("run-update")) == 2
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !r.Active("r") }, time.Second, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayPolls.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayEvents.WithLabelValues("run-update")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RelayActiveLoops))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelaySubscriptions))
}
