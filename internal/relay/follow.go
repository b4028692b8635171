package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// followBuffer bounds the events queued for an in-process follower.
const followBuffer = 16

// chanSubscriber queues events for an in-process follower. Send never blocks.
type chanSubscriber struct {
	id string
	ch chan Event

	mu     sync.Mutex
	closed bool
}

func (s *chanSubscriber) ID() string { return s.id }

func (s *chanSubscriber) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSubscriberClosed
	}
	select {
	case s.ch <- ev:
		return nil
	default:
		return errSubscriberSlow
	}
}

func (s *chanSubscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Follow subscribes to runID in-process and starts polling it immediately
// with credential. The returned channel yields the run's events and is
// closed after the final one, when ctx ends or when the relay closes.
//
// If a poll loop for runID is already running, Follow joins it.
func (r *Relay) Follow(ctx context.Context, credential, runID string) (<-chan Event, error) {
	sub := &chanSubscriber{id: "local-" + uuid.NewString(), ch: make(chan Event, followBuffer)}
	r.registry.Subscribe(runID, sub)

	if _, err := r.Watch(runID, credential, 0); err != nil {
		r.registry.Unsubscribe(runID, sub.id)
		return nil, err
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer r.registry.Unsubscribe(runID, sub.id)
		defer sub.close()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case ev := <-sub.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Final() {
					return
				}
			}
		}
	}()
	return out, nil
}
