package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/callboard/pkg/domain"
)

// LoggingHooks writes one structured record per event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(ctx context.Context, e *domain.LineStateChangeEvent) {
			logger.DebugContext(ctx, "line_state_change",
				"line", e.Line,
				"from", e.PreviousStatus,
				"to", e.CurrentStatus,
			)
		},
		OnIncomingCall: func(ctx context.Context, e *domain.LineIncomingCallEvent) {
			logger.InfoContext(ctx, "line_incoming_call",
				"line", e.Line,
				"call_id", e.CallID,
				"remote", e.RemoteURI,
				"display_name", e.RemoteDisplayName,
			)
		},
		OnCallEnded: func(ctx context.Context, e *domain.LineCallEndedEvent) {
			logger.InfoContext(ctx, "line_call_ended",
				"line", e.Line,
				"call_id", e.CallID,
				"cause", e.Cause,
				"duration_seconds", e.DurationSeconds,
			)
		},
		OnSelectionChange: func(ctx context.Context, e *domain.LineSelectionChangeEvent) {
			logger.DebugContext(ctx, "line_selection_change",
				"previous", e.PreviousLine,
				"selected", e.NewLine,
			)
		},
	}
}
