package callboard_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/callboard"
	"github.com/aretw0/callboard/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/callboard/pkg/adapters/redis"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresGateway(t *testing.T) {
	_, err := callboard.New(nil)
	assert.Error(t, err)

	_, err = callboard.New(memory.NewGateway(), callboard.WithLineCount(9))
	assert.ErrorIs(t, err, domain.ErrInvalidLineNumber)
}

func TestEngine_GatewayCallbacksNotExported(t *testing.T) {
	eng, err := callboard.New(memory.NewGateway())
	require.NoError(t, err)

	_, ok := any(eng).(ports.GatewayListener)
	assert.False(t, ok, "gateway events must only reach the engine through the gateway")
}

func TestFacade_Integration(t *testing.T) {
	ctx := context.Background()
	gw := memory.NewGateway()
	reg := prometheus.NewRegistry()

	var ended []domain.EndCause
	eng, err := callboard.New(gw,
		callboard.WithLineCount(3),
		callboard.WithMetrics(reg),
		callboard.WithEventLogging(),
		callboard.WithLifecycleHooks(domain.LifecycleHooks{
			OnCallEnded: func(_ context.Context, e *domain.LineCallEndedEvent) {
				ended = append(ended, e.Cause)
			},
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, eng.LineCount())
	assert.Equal(t, float64(3), linesGauge(t, reg, "idle"))

	n, err := eng.MakeCall(ctx, "sip:bob@example.com", domain.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.LineNumber(1), n)

	in := gw.SimulateIncoming("sip:alice@example.com", "Alice")
	require.NoError(t, eng.AnswerCall(ctx, 2, domain.AnswerOptions{Audio: true}))
	gw.SimulateRemoteHangup(in)
	require.NoError(t, eng.HangupCall(ctx, 1))

	records, err := eng.RecentCalls(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.CauseLocalHangup, records[0].Cause)
	assert.Equal(t, domain.CauseRemoteBye, records[1].Cause)
	assert.Equal(t, "Alice", records[1].RemoteName)
	assert.Equal(t, []domain.EndCause{domain.CauseRemoteBye, domain.CauseLocalHangup}, ended)

	assert.Equal(t, float64(3), linesGauge(t, reg, "idle"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "callboard_incoming_calls_total"))
}

// linesGauge reads the callboard_lines gauge for one status.
func linesGauge(t *testing.T, reg *prometheus.Registry, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "callboard_lines" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "status" && lp.GetValue() == status {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("no callboard_lines series for status %q", status)
	return 0
}

func TestWithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "callboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
lines: 4
auto_hold: false
line_settings:
  - number: 3
    label: Support
    auto_answer: true
`), 0644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	eng, err := callboard.New(memory.NewGateway(), callboard.WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, 4, eng.LineCount())
	assert.False(t, eng.AutoHold())

	l, err := eng.GetLineState(3)
	require.NoError(t, err)
	assert.Equal(t, "Support", l.Config.Label)
	assert.True(t, l.Config.AutoAnswer)
	assert.True(t, l.Config.Enabled)
}

func TestWithCallLog_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	log := redisAdapter.NewFromClient(client)
	eng, err := callboard.New(memory.NewGateway(), callboard.WithCallLog(log))
	require.NoError(t, err)
	assert.Same(t, log, eng.CallLog())

	_, err = eng.MakeCall(ctx, "sip:bob@example.com", domain.CallOptions{})
	require.NoError(t, err)
	require.NoError(t, eng.HangupAll(ctx))

	records, err := log.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "sip:bob@example.com", records[0].RemoteURI)
}

func TestWithLocker_SharedAcrossEngines(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	locker := redisAdapter.NewLocker(client, "test:")

	ctx := context.Background()
	gwA, gwB := memory.NewGateway(), memory.NewGateway()
	a, err := callboard.New(gwA, callboard.WithLocker(locker, "acct-1:", time.Minute))
	require.NoError(t, err)
	b, err := callboard.New(gwB, callboard.WithLocker(locker, "acct-1:", time.Minute))
	require.NoError(t, err)

	gate := gwA.Block(memory.OpPlace)
	done := make(chan error, 1)
	go func() {
		_, err := a.MakeCall(ctx, "sip:bob@example.com", domain.CallOptions{Line: 1})
		done <- err
	}()
	<-gate.Entered()
	assert.True(t, mr.Exists("test:lock:acct-1:line:1"))

	_, err = b.MakeCall(ctx, "sip:carol@example.com", domain.CallOptions{Line: 1})
	assert.ErrorIs(t, err, domain.ErrLineBusy)

	// Other lines are unaffected.
	n, err := b.MakeCall(ctx, "sip:carol@example.com", domain.CallOptions{Line: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.LineNumber(2), n)

	gate.Release()
	require.NoError(t, <-done)
	assert.False(t, mr.Exists("test:lock:acct-1:line:1"))

	require.NoError(t, b.HangupCall(ctx, 2))
	n, err = b.MakeCall(ctx, "sip:carol@example.com", domain.CallOptions{Line: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.LineNumber(1), n)
}

func TestWithLocker_BackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	eng, err := callboard.New(memory.NewGateway(), callboard.WithLocker(redisAdapter.NewLocker(client, ""), "", 0))
	require.NoError(t, err)

	mr.Close()
	_, err = eng.MakeCall(context.Background(), "sip:bob@example.com", domain.CallOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrLineBusy))
	l, err := eng.GetLineState(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIdle, l.Status)
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, callboard.Version)
}
