package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/callboard"
	"github.com/aretw0/callboard/internal/adapters/file"
	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/callboard/pkg/adapters/redis"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// App bundles an engine with the simulated gateway and backends it was built on.
type App struct {
	Engine   *callboard.Engine
	Gateway  *memory.Gateway
	Registry *prometheus.Registry
	Config   *config.Config
	Logger   *slog.Logger

	redis *backend.Client
}

// NewApp builds the engine described by cfg with standard CLI conventions:
// a simulated gateway, the configured call log backend and optional Redis line locks.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{
		Gateway:  memory.NewGateway(memory.WithLatency(time.Duration(cfg.Gateway.LatencyMs) * time.Millisecond)),
		Registry: prometheus.NewRegistry(),
		Config:   cfg,
		Logger:   logger,
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	calls, err := app.callLog()
	if err != nil {
		return nil, err
	}

	opts := []callboard.Option{
		callboard.WithConfig(cfg),
		callboard.WithLogger(logger),
		callboard.WithEventLogging(),
		callboard.WithMetrics(app.Registry),
		callboard.WithCallLog(calls),
	}
	if cfg.Locking.Distributed {
		locker := redisAdapter.NewLocker(app.redisClient(), cfg.Redis.Prefix)
		opts = append(opts, callboard.WithLocker(locker, "", time.Duration(cfg.Locking.TTLSeconds)*time.Second))
	}

	engine, err := callboard.New(app.Gateway, opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	app.Engine = engine
	return app, nil
}

func (a *App) callLog() (ports.CallLog, error) {
	switch a.Config.CallLog.Backend {
	case "", "memory":
		return memory.NewCallLog(a.Config.CallLog.Capacity), nil
	case "file":
		return file.New(a.Config.CallLog.Path, a.Config.CallLog.Capacity), nil
	case "redis":
		opts := []redisAdapter.Option{redisAdapter.WithPrefix(a.Config.Redis.Prefix)}
		if a.Config.CallLog.Capacity > 0 {
			opts = append(opts, redisAdapter.WithMaxRecords(a.Config.CallLog.Capacity))
		}
		return redisAdapter.NewFromClient(a.redisClient(), opts...), nil
	default:
		return nil, fmt.Errorf("unknown call log backend %q", a.Config.CallLog.Backend)
	}
}

// redisClient lazily opens the single Redis connection pool shared by the call log and the locker.
func (a *App) redisClient() *backend.Client {
	if a.redis == nil {
		a.redis = backend.NewClient(&backend.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
	}
	return a.redis
}

// Ping checks the backends the app depends on.
func (a *App) Ping(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", a.Config.Redis.Addr, err)
	}
	return nil
}

// Close hangs up every call and releases backend connections.
func (a *App) Close() error {
	var errs []error
	if a.Engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Engine.HangupAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
