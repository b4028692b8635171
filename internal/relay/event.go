package relay

import (
	"github.com/felixgeelhaar/appify/internal/errors"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// EventType names a server-to-client event.
type EventType = types.RunEventType

// Event types
const (
	EventRunUpdate = types.EventRunUpdate
	EventRunError  = types.EventRunError
)

// Event is one message fanned out to the subscribers of a run.
type Event = types.RunEvent

// UpdateEvent builds a run-update event from an observed run.
func UpdateEvent(run *types.Run) Event {
	update := run.Update()
	return Event{Type: EventRunUpdate, RunID: run.ID, Data: &update}
}

// ErrorEvent builds a run-error event. Coded errors contribute their
// message without suggestions.
func ErrorEvent(runID string, err error) Event {
	msg := err.Error()
	if appErr, ok := errors.As(err); ok {
		msg = appErr.Message
	}
	return Event{Type: EventRunError, RunID: runID, Error: msg}
}
