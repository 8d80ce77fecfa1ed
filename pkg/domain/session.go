package domain

import "time"

// SessionHandle is the opaque per-call handle issued by the Session Gateway.
// Handles are compared by identity: the same call always yields the same handle.
type SessionHandle interface {
	CallID() string
}

// CallOptions configures an outbound call.
type CallOptions struct {
	// Line pins the call to a specific line. Zero means auto-select.
	Line    LineNumber        `json:"line,omitempty"`
	Audio   bool              `json:"audio"`
	Video   bool              `json:"video"`
	Headers map[string]string `json:"headers,omitempty"`
}

// AnswerOptions configures how a ringing call is answered.
type AnswerOptions struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// Stats is the media quality report for one call leg, as reported by the gateway.
type Stats struct {
	CallID          string        `json:"call_id"`
	Codec           string        `json:"codec,omitempty"`
	PacketsSent     uint64        `json:"packets_sent"`
	PacketsReceived uint64        `json:"packets_received"`
	PacketsLost     uint64        `json:"packets_lost"`
	Jitter          time.Duration `json:"jitter"`
	RoundTrip       time.Duration `json:"round_trip"`
}

// EndCause explains why a call left its line.
type EndCause string

const (
	CauseLocalHangup EndCause = "local_hangup"
	CauseRemoteBye   EndCause = "remote_bye"
	CauseRejected    EndCause = "rejected"
	CauseCancelled   EndCause = "cancelled"
	CauseTransferred EndCause = "transferred"
	CauseFailed      EndCause = "failed"
	CauseReset       EndCause = "reset"
)

// DefaultRejectCode is the SIP code used when a reject does not specify one (486 Busy Here).
const DefaultRejectCode = 486

// CallRecord is one entry of the call log.
type CallRecord struct {
	Line            LineNumber `json:"line"`
	CallID          string     `json:"call_id,omitempty"`
	RemoteURI       string     `json:"remote_uri,omitempty"`
	RemoteName      string     `json:"remote_name,omitempty"`
	Direction       Direction  `json:"direction,omitempty"`
	Cause           EndCause   `json:"cause"`
	DurationSeconds int        `json:"duration_seconds"`
	EndedAt         time.Time  `json:"ended_at"`
}
