package domain

import (
	"fmt"
	"time"
)

// MaxLines is the largest pool a coordinator can be built with.
const MaxLines = 8

// LineNumber identifies a Line. Valid numbers are 1..lineCount.
type LineNumber int

// LineStatus defines the current mode of a Line.
type LineStatus string

const (
	StatusIdle    LineStatus = "idle"    // No call, available
	StatusBusy    LineStatus = "busy"    // Outbound call is being dialed
	StatusRinging LineStatus = "ringing" // Inbound call waiting to be answered
	StatusActive  LineStatus = "active"  // Audio engaged
	StatusHeld    LineStatus = "held"    // Call parked locally
	StatusError   LineStatus = "error"   // Session failed, needs an explicit reset
)

// HasCall reports whether the status carries a live call leg.
func (s LineStatus) HasCall() bool {
	switch s {
	case StatusBusy, StatusRinging, StatusActive, StatusHeld:
		return true
	}
	return false
}

// Direction tells who initiated the call.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// RemoteIdentity is the far end of a call.
type RemoteIdentity struct {
	URI         string `json:"uri"`
	DisplayName string `json:"display_name,omitempty"`
}

// LineConfig holds the per-line preferences.
type LineConfig struct {
	Label             string `json:"label,omitempty" yaml:"label,omitempty"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	AutoAnswer        bool   `json:"auto_answer" yaml:"auto_answer"`
	AutoAnswerDelayMs int    `json:"auto_answer_delay_ms" yaml:"auto_answer_delay_ms" validate:"gte=0"`
	DefaultAudio      bool   `json:"default_audio" yaml:"default_audio"`
	DefaultVideo      bool   `json:"default_video" yaml:"default_video"`
}

// DefaultLineConfig is the configuration every line starts with.
func DefaultLineConfig() LineConfig {
	return LineConfig{
		Enabled:      true,
		DefaultAudio: true,
	}
}

// LineConfigPatch is a partial LineConfig. Nil fields are left untouched.
type LineConfigPatch struct {
	Label             *string `json:"label,omitempty" mapstructure:"label"`
	Enabled           *bool   `json:"enabled,omitempty" mapstructure:"enabled"`
	AutoAnswer        *bool   `json:"auto_answer,omitempty" mapstructure:"auto_answer"`
	AutoAnswerDelayMs *int    `json:"auto_answer_delay_ms,omitempty" mapstructure:"auto_answer_delay_ms"`
	DefaultAudio      *bool   `json:"default_audio,omitempty" mapstructure:"default_audio"`
	DefaultVideo      *bool   `json:"default_video,omitempty" mapstructure:"default_video"`
}

// Apply merges the patch into cfg and returns the result.
func (p LineConfigPatch) Apply(cfg LineConfig) LineConfig {
	if p.Label != nil {
		cfg.Label = *p.Label
	}
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
	if p.AutoAnswer != nil {
		cfg.AutoAnswer = *p.AutoAnswer
	}
	if p.AutoAnswerDelayMs != nil {
		cfg.AutoAnswerDelayMs = *p.AutoAnswerDelayMs
	}
	if p.DefaultAudio != nil {
		cfg.DefaultAudio = *p.DefaultAudio
	}
	if p.DefaultVideo != nil {
		cfg.DefaultVideo = *p.DefaultVideo
	}
	return cfg
}

// Line is a read-only snapshot of one addressable slot.
// Mutation only happens inside the coordinator.
type Line struct {
	Number     LineNumber      `json:"number"`
	Status     LineStatus      `json:"status"`
	Session    SessionHandle   `json:"-"`
	Remote     *RemoteIdentity `json:"remote,omitempty"`
	Direction  Direction       `json:"direction,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	AnsweredAt *time.Time      `json:"answered_at,omitempty"`
	Muted      bool            `json:"muted"`
	RemoteHeld bool            `json:"remote_held"`
	Config     LineConfig      `json:"config"`
}

// CallID returns the session call ID, or "" when the line has no session.
func (l Line) CallID() string {
	if l.Session == nil {
		return ""
	}
	return l.Session.CallID()
}

// Available reports whether the line can take a new call.
func (l Line) Available() bool {
	return l.Status == StatusIdle && l.Config.Enabled
}

// Duration is the talk time so far: zero if the call was never answered.
func (l Line) Duration(now time.Time) time.Duration {
	if l.AnsweredAt == nil {
		return 0
	}
	return now.Sub(*l.AnsweredAt)
}

func (l Line) String() string {
	return fmt.Sprintf("line %d (%s)", l.Number, l.Status)
}
