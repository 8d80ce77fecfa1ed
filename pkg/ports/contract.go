package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/callboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCallLogContract runs a suite of tests to verify that a CallLog implementation
// adheres to the defined interface contract. The log must start empty.
func RunCallLogContract(t *testing.T, log CallLog) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	t.Run("Empty", func(t *testing.T) {
		records, err := log.Recent(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Append and Recent", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			err := log.Append(ctx, domain.CallRecord{
				Line:            domain.LineNumber(i),
				CallID:          fmt.Sprintf("call-%d", i),
				RemoteURI:       "sip:bob@example.com",
				Direction:       domain.DirectionOutbound,
				Cause:           domain.CauseLocalHangup,
				DurationSeconds: i * 10,
				EndedAt:         base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err, "Append should not return error")
		}

		records, err := log.Recent(ctx, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		// Newest first
		assert.Equal(t, "call-3", records[0].CallID)
		assert.Equal(t, "call-1", records[2].CallID)
		assert.Equal(t, 30, records[0].DurationSeconds)
		assert.Equal(t, domain.CauseLocalHangup, records[0].Cause)
		assert.True(t, records[0].EndedAt.Equal(base.Add(3*time.Minute)))
	})

	t.Run("Limit", func(t *testing.T) {
		records, err := log.Recent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "call-3", records[0].CallID)
		assert.Equal(t, "call-2", records[1].CallID)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, log.Clear(ctx))
		records, err := log.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
