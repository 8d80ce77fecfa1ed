package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/callboard/pkg/adapters/memory"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCallLog_Contract(t *testing.T) {
	ports.RunCallLogContract(t, memory.NewCallLog(0))
}

func TestMemoryCallLog_Capacity(t *testing.T) {
	ctx := context.Background()
	log := memory.NewCallLog(3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, log.Append(ctx, domain.CallRecord{CallID: fmt.Sprintf("call-%d", i)}))
	}

	records, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "call-5", records[0].CallID)
	assert.Equal(t, "call-3", records[2].CallID)
}
