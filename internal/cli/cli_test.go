package cli

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/callboard/internal/adapters/file"
	"github.com/aretw0/callboard/internal/presentation/tui"
	"github.com/aretw0/callboard/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/callboard/pkg/adapters/redis"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp_CallLogBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, app *App)
	}{
		{
			name:   "memory",
			mutate: func(c *config.Config) {},
			check: func(t *testing.T, app *App) {
				assert.IsType(t, &memory.CallLog{}, app.Engine.CallLog())
			},
		},
		{
			name: "file",
			mutate: func(c *config.Config) {
				c.CallLog.Backend = "file"
				c.CallLog.Path = filepath.Join(t.TempDir(), "calls.json")
			},
			check: func(t *testing.T, app *App) {
				assert.IsType(t, &file.CallLog{}, app.Engine.CallLog())
			},
		},
		{
			name: "redis with locking",
			mutate: func(c *config.Config) {
				c.CallLog.Backend = "redis"
				c.Redis.Addr = mr.Addr()
				c.Locking.Distributed = true
			},
			check: func(t *testing.T, app *App) {
				assert.IsType(t, &redisAdapter.CallLog{}, app.Engine.CallLog())
				require.NoError(t, app.Ping(context.Background()))

				_, err := app.Engine.MakeCall(context.Background(), "sip:bob@example.com", domain.CallOptions{})
				require.NoError(t, err)
				require.NoError(t, app.Engine.HangupCall(context.Background(), 1))
				assert.Equal(t, 1, len(mr.Keys()), "only the call list remains, line locks are released")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			require.NoError(t, cfg.Validate())

			app, err := NewApp(cfg, nil)
			require.NoError(t, err)
			t.Cleanup(func() { app.Close() })
			tt.check(t, app)
		})
	}
}

func TestNewApp_InvalidLines(t *testing.T) {
	cfg := config.Default()
	cfg.Lines = 12
	_, err := NewApp(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidLineNumber)
}

func TestRunDemo(t *testing.T) {
	app, err := NewApp(config.Default(), nil)
	require.NoError(t, err)
	defer app.Close()

	var out bytes.Buffer
	require.NoError(t, RunDemo(context.Background(), app, &out, tui.NewBoard(&out)))

	text := out.String()
	assert.Contains(t, text, "1. Dial sip:alice@example.com")
	assert.Contains(t, text, "6. Transfer Bob to Alice")
	assert.Contains(t, text, "transferred")
	for _, l := range app.Engine.Lines() {
		assert.Equal(t, domain.StatusIdle, l.Status)
	}

	records, err := app.Engine.RecentCalls(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunDemo_NeedsTwoLines(t *testing.T) {
	cfg := config.Default()
	cfg.Lines = 1
	app, err := NewApp(cfg, nil)
	require.NoError(t, err)
	defer app.Close()

	assert.Error(t, RunDemo(context.Background(), app, &bytes.Buffer{}, tui.NewBoard(&bytes.Buffer{})))
}

func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	app, err := NewApp(config.Default(), nil)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, app, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
