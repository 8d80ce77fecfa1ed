package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/callboard/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "callboard:"

// DefaultMaxRecords caps the call log list.
const DefaultMaxRecords = 500

// CallLog implements ports.CallLog on a capped Redis list, newest at the head.
type CallLog struct {
	client *backend.Client
	prefix string
	max    int64
}

type Option func(*CallLog)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *CallLog) {
		l.prefix = prefix
	}
}

// WithMaxRecords sets how many records are kept.
func WithMaxRecords(n int) Option {
	return func(l *CallLog) {
		if n > 0 {
			l.max = int64(n)
		}
	}
}

// New creates a call log with its own client.
func New(address, password string, db int, opts ...Option) *CallLog {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a call log on an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *CallLog {
	l := &CallLog{
		client: client,
		prefix: DefaultPrefix,
		max:    DefaultMaxRecords,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *CallLog) key() string {
	return l.prefix + "calls"
}

// Append pushes the record and trims the list in one round trip.
func (l *CallLog) Append(ctx context.Context, record domain.CallRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal call record: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, l.key(), data)
	pipe.LTrim(ctx, l.key(), 0, l.max-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append call record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *CallLog) Recent(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := l.client.LRange(ctx, l.key(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read call log: %w", err)
	}

	records := make([]domain.CallRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.CallRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal call record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear deletes the list.
func (l *CallLog) Clear(ctx context.Context) error {
	return l.client.Del(ctx, l.key()).Err()
}

// Close closes the redis client.
func (l *CallLog) Close() error {
	return l.client.Close()
}
