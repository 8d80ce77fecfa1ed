package ports

import (
	"context"

	"github.com/aretw0/callboard/pkg/domain"
)

// CallLog persists the history of ended calls.
type CallLog interface {
	// Append stores a record. Implementations may cap the history size.
	Append(ctx context.Context, record domain.CallRecord) error

	// Recent returns up to limit records, newest first. A limit <= 0 returns everything kept.
	Recent(ctx context.Context, limit int) ([]domain.CallRecord, error)

	// Clear drops the whole history.
	Clear(ctx context.Context) error
}
