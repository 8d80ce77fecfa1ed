// Package file persists the call log as a JSON document on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/callboard/pkg/domain"
)

// DefaultCapacity is how many records are kept when no capacity is given.
const DefaultCapacity = 1000

// CallLog implements ports.CallLog as a single JSON file, oldest record first.
// Safe for concurrent use within one process.
type CallLog struct {
	mu       sync.Mutex
	path     string
	capacity int
}

// New creates a call log at path.
// If path is empty, it defaults to ".callboard/calls.json".
func New(path string, capacity int) *CallLog {
	if path == "" {
		path = filepath.Join(".callboard", "calls.json")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &CallLog{path: path, capacity: capacity}
}

// Append adds a record, dropping the oldest ones beyond capacity.
func (l *CallLog) Append(ctx context.Context, record domain.CallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return err
	}
	records = append(records, record)
	if over := len(records) - l.capacity; over > 0 {
		records = records[over:]
	}
	return l.write(records)
}

// Recent returns up to limit records, newest first.
func (l *CallLog) Recent(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.read()
	if err != nil {
		return nil, err
	}
	n := len(records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.CallRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

// Clear removes the file.
func (l *CallLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete call log: %w", err)
	}
	return nil
}

func (l *CallLog) read() ([]domain.CallRecord, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read call log: %w", err)
	}
	var records []domain.CallRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call log: %w", err)
	}
	return records, nil
}

// write replaces the file atomically: temp file in the same directory, fsync, rename.
func (l *CallLog) write(records []domain.CallRecord) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure call log directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal call log: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "tmp-calls-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Cannot rename an open file on Windows.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("failed to replace call log: %w", err)
	}
	return nil
}
