package memory

import (
	"context"
	"sync"

	"github.com/aretw0/callboard/pkg/domain"
)

// DefaultCallLogCapacity is how many records a CallLog keeps when no capacity is given.
const DefaultCallLogCapacity = 100

// CallLog implements ports.CallLog in memory, dropping the oldest records beyond its capacity.
// Safe for concurrent use.
type CallLog struct {
	mu       sync.RWMutex
	records  []domain.CallRecord // oldest first
	capacity int
}

// NewCallLog creates an empty log. A capacity <= 0 means DefaultCallLogCapacity.
func NewCallLog(capacity int) *CallLog {
	if capacity <= 0 {
		capacity = DefaultCallLogCapacity
	}
	return &CallLog{capacity: capacity}
}

// Append records a finished call.
func (l *CallLog) Append(ctx context.Context, record domain.CallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record)
	if over := len(l.records) - l.capacity; over > 0 {
		l.records = append(l.records[:0:0], l.records[over:]...)
	}
	return nil
}

// Recent returns up to limit records, newest first. A limit <= 0 returns everything.
func (l *CallLog) Recent(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.CallRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.records[i])
	}
	return out, nil
}

// Clear drops every record.
func (l *CallLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	return nil
}
