package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
)

// CallLogHooks appends every ended call to store.
// Storage errors are logged; they never fail the operation that ended the call.
func CallLogHooks(store ports.CallLog, logger *slog.Logger) domain.LifecycleHooks {
	if logger == nil {
		logger = logging.NewNop()
	}
	return domain.LifecycleHooks{
		OnCallEnded: func(ctx context.Context, e *domain.LineCallEndedEvent) {
			if err := store.Append(ctx, e.Record()); err != nil {
				logger.Warn("Failed to record call", "line", e.Line, "call_id", e.CallID, "err", err)
			}
		},
	}
}
