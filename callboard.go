package callboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/callboard/internal/logging"
	"github.com/aretw0/callboard/internal/runtime"
	"github.com/aretw0/callboard/pkg/adapters/memory"
	"github.com/aretw0/callboard/pkg/config"
	"github.com/aretw0/callboard/pkg/domain"
	"github.com/aretw0/callboard/pkg/inflight"
	"github.com/aretw0/callboard/pkg/observability"
	"github.com/aretw0/callboard/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the high-level entry point for the callboard library.
// It wraps the line coordinator and wires the call log, metrics and locking around it.
type Engine struct {
	*runtime.Coordinator

	calls       ports.CallLog
	metrics     *observability.Metrics
	registerer  prometheus.Registerer
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	lockPrefix  string
	hooks       []domain.LifecycleHooks
	logger      *slog.Logger
	logEvents   bool
	runtimeOpts []runtime.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLineCount sets how many lines the engine manages.
func WithLineCount(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLineCount(n))
	}
}

// WithAutoHold toggles holding the active call when another line becomes active.
func WithAutoHold(enabled bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithAutoHold(enabled))
	}
}

// WithLineConfig sets the initial configuration of line n.
func WithLineConfig(n domain.LineNumber, cfg domain.LineConfig) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLineConfig(n, cfg))
	}
}

// WithConfig applies the line settings of a loaded configuration file.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts,
			runtime.WithLineCount(cfg.Lines),
			runtime.WithAutoHold(cfg.AutoHold),
		)
		for n, lc := range cfg.LineConfigs() {
			e.runtimeOpts = append(e.runtimeOpts, runtime.WithLineConfig(n, lc))
		}
	}
}

// WithLifecycleHooks registers observability hooks. May be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventLogging writes every line event to the logger.
func WithEventLogging() Option {
	return func(e *Engine) {
		e.logEvents = true
	}
}

// WithCallLog records ended calls in log instead of the default in-memory history.
func WithCallLog(log ports.CallLog) Option {
	return func(e *Engine) {
		e.calls = log
	}
}

// WithMetrics registers the Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithLocker makes line ownership exclusive across every engine sharing the locker.
// Lock keys are namespaced by prefix so several accounts can share one backend.
func WithLocker(locker ports.DistributedLocker, prefix string, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockPrefix = prefix
		e.lockTTL = ttl
	}
}

// New builds an Engine on top of gateway.
func New(gateway ports.SessionGateway, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, errors.New("session gateway is required")
	}
	eng := &Engine{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.calls == nil {
		eng.calls = memory.NewCallLog(0)
	}

	runtimeOpts := append([]runtime.Option{runtime.WithLogger(eng.logger)}, eng.runtimeOpts...)
	if eng.locker != nil {
		trackerOpts := []inflight.Option{
			inflight.WithLocker(eng.locker),
			inflight.WithKeyPrefix(eng.lockPrefix),
			inflight.WithLogger(eng.logger),
		}
		if eng.lockTTL > 0 {
			trackerOpts = append(trackerOpts, inflight.WithLockTTL(eng.lockTTL))
		}
		runtimeOpts = append(runtimeOpts, runtime.WithTracker(inflight.NewTracker(trackerOpts...)))
	}

	hooks := []domain.LifecycleHooks{observability.CallLogHooks(eng.calls, eng.logger)}
	if eng.registerer != nil {
		eng.metrics = observability.NewMetrics(eng.registerer)
		hooks = append(hooks, eng.metrics.Hooks())
	}
	if eng.logEvents {
		hooks = append(hooks, observability.LoggingHooks(eng.logger))
	}
	hooks = append(hooks, eng.hooks...)
	for _, h := range hooks {
		runtimeOpts = append(runtimeOpts, runtime.WithLifecycleHooks(h))
	}

	coord, err := runtime.NewCoordinator(gateway, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	eng.Coordinator = coord
	if eng.metrics != nil {
		eng.metrics.Seed(coord.Lines())
	}
	return eng, nil
}

// CallLog returns the history ended calls are recorded in.
func (e *Engine) CallLog() ports.CallLog {
	return e.calls
}

// RecentCalls returns up to limit ended calls, newest first.
func (e *Engine) RecentCalls(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	return e.calls.Recent(ctx, limit)
}
