package relay

import (
	"sync"

	"github.com/felixgeelhaar/appify/internal/metrics"
)

// Subscriber receives events for the runs it subscribed to. Send must not
// block.
type Subscriber interface {
	ID() string
	Send(Event) error
}

// Registry maps run ids to their subscribers. A subscriber may follow many
// runs and a run may have many subscribers.
type Registry struct {
	mu      sync.RWMutex
	runs    map[string][]Subscriber
	bySub   map[string]map[string]struct{}
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		runs:    map[string][]Subscriber{},
		bySub:   map[string]map[string]struct{}{},
		metrics: m,
	}
}

// Subscribe adds sub to runID. It reports false when sub was already
// subscribed.
func (r *Registry) Subscribe(runID string, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	runs := r.bySub[sub.ID()]
	if _, ok := runs[runID]; ok {
		return false
	}
	if runs == nil {
		runs = map[string]struct{}{}
		r.bySub[sub.ID()] = runs
	}
	runs[runID] = struct{}{}
	r.runs[runID] = append(r.runs[runID], sub)

	if r.metrics != nil {
		r.metrics.RelaySubscriptions.Inc()
	}
	return true
}

// Unsubscribe removes the subscriber with id subID from runID.
func (r *Registry) Unsubscribe(runID, subID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(runID, subID)
}

// UnsubscribeAll removes every subscription of subID and returns the run ids
// it followed. Called when a connection goes away.
func (r *Registry) UnsubscribeAll(subID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for runID := range r.bySub[subID] {
		if r.removeLocked(runID, subID) {
			removed = append(removed, runID)
		}
	}
	return removed
}

func (r *Registry) removeLocked(runID, subID string) bool {
	runs, ok := r.bySub[subID]
	if !ok {
		return false
	}
	if _, ok := runs[runID]; !ok {
		return false
	}
	delete(runs, runID)
	if len(runs) == 0 {
		delete(r.bySub, subID)
	}

	subs := r.runs[runID]
	kept := subs[:0]
	for _, s := range subs {
		if s.ID() != subID {
			kept = append(kept, s)
		}
	}
	// clear the tail so removed subscribers can be collected
	for i := len(kept); i < len(subs); i++ {
		subs[i] = nil
	}
	if len(kept) == 0 {
		delete(r.runs, runID)
	} else {
		r.runs[runID] = kept
	}

	if r.metrics != nil {
		r.metrics.RelaySubscriptions.Dec()
	}
	return true
}

// Subscribers returns a snapshot of runID's subscribers in subscription
// order.
func (r *Registry) Subscribers(runID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.runs[runID]
	out := make([]Subscriber, len(subs))
	copy(out, subs)
	return out
}

// Count returns the number of subscribers of runID.
func (r *Registry) Count(runID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs[runID])
}

// Runs returns how many runs have at least one subscriber.
func (r *Registry) Runs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
