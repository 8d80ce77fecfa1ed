package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateChange     EventType = "line_state_change"
	EventIncomingCall    EventType = "line_incoming_call"
	EventCallEnded       EventType = "line_call_ended"
	EventSelectionChange EventType = "line_selection_change"
)

// LineStateChangeEvent is emitted once per status transition.
type LineStateChangeEvent struct {
	Line           LineNumber `json:"line"`
	PreviousStatus LineStatus `json:"previous_status"`
	CurrentStatus  LineStatus `json:"current_status"`
	Timestamp      time.Time  `json:"timestamp"`
}

// LineIncomingCallEvent is emitted when an inbound call starts ringing on a line.
type LineIncomingCallEvent struct {
	Line              LineNumber `json:"line"`
	CallID            string     `json:"call_id"`
	RemoteURI         string     `json:"remote_uri"`
	RemoteDisplayName string     `json:"remote_display_name,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// LineCallEndedEvent is emitted when a call leaves its line.
type LineCallEndedEvent struct {
	Line            LineNumber `json:"line"`
	CallID          string     `json:"call_id,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	Cause           EndCause   `json:"cause"`
	RemoteURI       string     `json:"remote_uri,omitempty"`
	RemoteName      string     `json:"remote_name,omitempty"`
	Direction       Direction  `json:"direction,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// Record converts the event into a call log entry.
func (e LineCallEndedEvent) Record() CallRecord {
	return CallRecord{
		Line:            e.Line,
		CallID:          e.CallID,
		RemoteURI:       e.RemoteURI,
		RemoteName:      e.RemoteName,
		Direction:       e.Direction,
		Cause:           e.Cause,
		DurationSeconds: e.DurationSeconds,
		EndedAt:         e.Timestamp,
	}
}

// LineSelectionChangeEvent is emitted when the selected line changes.
// A zero LineNumber means "no selection".
type LineSelectionChangeEvent struct {
	PreviousLine LineNumber `json:"previous_line,omitempty"`
	NewLine      LineNumber `json:"new_line,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

// LifecycleHooks defines callbacks for coordinator observability.
// Hooks run synchronously, before the operation that caused them returns.
type LifecycleHooks struct {
	OnStateChange     func(context.Context, *LineStateChangeEvent)
	OnIncomingCall    func(context.Context, *LineIncomingCallEvent)
	OnCallEnded       func(context.Context, *LineCallEndedEvent)
	OnSelectionChange func(context.Context, *LineSelectionChangeEvent)
}
