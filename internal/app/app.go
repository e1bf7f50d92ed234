// Package app wires configuration into running handlers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/roomwatch/internal/cache"
	"github.com/deusflow/roomwatch/internal/config"
	"github.com/deusflow/roomwatch/internal/engine"
	"github.com/deusflow/roomwatch/internal/metrics"
	"github.com/deusflow/roomwatch/internal/monitor"
	"github.com/deusflow/roomwatch/internal/notify"
	"github.com/deusflow/roomwatch/internal/ratelimit"
	"github.com/deusflow/roomwatch/internal/region"
	"github.com/deusflow/roomwatch/internal/retry"
	"github.com/deusflow/roomwatch/internal/snapshot"
	"github.com/deusflow/roomwatch/internal/telegram"
	"github.com/deusflow/roomwatch/internal/webhook"
)

// App owns the handlers of one process and everything they share.
type App struct {
	cfg       *config.Config
	store     snapshot.Store
	resolver  *region.Resolver
	memo      *cache.Cache[string]
	registry  *metrics.Registry
	handlers  []*engine.Handler
	intervals map[string]time.Duration
	logger    *slog.Logger
}

// Option configures an App.
type Option func(*App)

// WithStore replaces the configured snapshot backend.
func WithStore(s snapshot.Store) Option {
	return func(a *App) { a.store = s }
}

// WithResolver replaces the resolver loaded from REGIONS_PATH.
func WithResolver(r *region.Resolver) Option {
	return func(a *App) { a.resolver = r }
}

// WithRegistry records metrics somewhere other than metrics.Global.
func WithRegistry(r *metrics.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New builds one engine handler per definition. sources is called for
// every handler to obtain its fetcher and parser; nil means BuildSource.
func New(ctx context.Context, cfg *config.Config, defs []config.HandlerConfig, sources SourceFunc, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		registry:  metrics.Global,
		intervals: make(map[string]time.Duration, len(defs)),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if sources == nil {
		sources = BuildSource
	}

	if a.resolver == nil {
		var ropts []region.Option
		ropts = append(ropts, region.WithLogger(a.logger))
		if cfg.ResolverCacheTTL > 0 {
			a.memo = cache.New[string](cfg.ResolverCacheTTL)
			ropts = append(ropts, region.WithCache(a.memo))
		}
		a.resolver = region.New(cfg.RegionsPath, ropts...)
	}

	if a.store == nil {
		s, err := OpenStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("app: snapshot store: %w", err)
		}
		a.store = s
	}

	target := region.Normalize(cfg.TargetRegion)
	var pacer *ratelimit.Pacer
	if cfg.TelegramToken != "" {
		pacer = ratelimit.NewPacer(cfg.NotifyRatePerMinute)
		a.registry.AddSource("telegram_pacer", func() map[string]interface{} {
			granted, waited := pacer.Stats()
			return map[string]interface{}{
				"messages_sent": granted,
				"waited_ms":     waited.Milliseconds(),
			}
		})
	}

	for _, hc := range defs {
		log := a.logger.With("handler", hc.Name)
		fetcher, parser, err := sources(hc, cfg, log)
		if err != nil {
			a.store.Close()
			return nil, err
		}
		h, err := engine.New(engine.Config{
			Name:         hc.Name,
			Fetcher:      fetcher,
			Parser:       parser,
			Notifier:     a.notifier(hc.Name, pacer),
			Store:        a.store,
			Resolver:     a.resolver,
			TargetRegion: target,
			CycleTimeout: cfg.CycleTimeout,
			Retry: retry.RetryConfig{
				MaxAttempts: cfg.RetryAttempts,
				Delay:       cfg.RetryDelay,
			},
			Logger:  a.logger,
			Metrics: a.registry.Handler(hc.Name),
		})
		if err != nil {
			a.store.Close()
			return nil, err
		}
		a.handlers = append(a.handlers, h)
		a.intervals[hc.Name] = hc.Interval
	}

	a.logger.Info("app: handlers ready",
		"handlers", len(a.handlers),
		"target_region", target,
		"localities", a.resolver.Size(),
		"snapshot_backend", cfg.SnapshotBackend)
	return a, nil
}

// SourceFunc builds the fetcher and parser of one handler.
type SourceFunc func(hc config.HandlerConfig, cfg *config.Config, logger *slog.Logger) (engine.Fetcher, engine.Parser, error)

func (a *App) notifier(name string, pacer *ratelimit.Pacer) engine.Notifier {
	log := a.logger.With("handler", name)
	sinks := notify.Multi{notify.Log{Logger: log}}
	if a.cfg.TelegramToken != "" {
		sinks = append(sinks, telegram.New(a.cfg.TelegramToken, a.cfg.TelegramChatID,
			telegram.WithPacer(pacer),
			telegram.WithLogger(log)))
	}
	if a.cfg.WebhookURL != "" {
		sinks = append(sinks, webhook.New(a.cfg.WebhookURL,
			webhook.WithHandler(name),
			webhook.WithLogger(log)))
	}
	return sinks
}

// Handlers returns the engine handlers in definition order.
func (a *App) Handlers() []*engine.Handler { return a.handlers }

// Store returns the shared snapshot store.
func (a *App) Store() snapshot.Store { return a.store }

// Bootstrap restores every handler from its persisted snapshot. Failures
// are logged; the affected handler bootstraps from its first live poll.
func (a *App) Bootstrap(ctx context.Context) {
	for _, h := range a.handlers {
		if err := h.LoadFromPersisted(ctx); err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				continue
			}
			a.logger.Warn("app: could not restore handler", "handler", h.Name(), "error", err)
		}
	}
}

// Run bootstraps and then polls every handler on its own interval until
// ctx is done. The monitoring server runs alongside when enabled.
func (a *App) Run(ctx context.Context) error {
	a.Bootstrap(ctx)

	g, ctx := errgroup.WithContext(ctx)
	if a.memo != nil {
		g.Go(func() error {
			a.memo.Janitor(ctx, a.cfg.ResolverCacheTTL)
			return nil
		})
	}
	for _, h := range a.handlers {
		h := h
		interval := a.intervals[h.Name()]
		if interval <= 0 {
			interval = a.cfg.PollInterval
		}
		g.Go(func() error {
			h.Run(ctx, interval)
			return nil
		})
	}
	if a.cfg.EnableMonitoring {
		srv := monitor.New(a.registry, a.monitored(), a.logger)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, net.JoinHostPort("", a.cfg.MonitoringPort))
		})
	}
	return g.Wait()
}

// RunOnce bootstraps and runs a single cycle per handler. The returned
// error joins every failed cycle.
func (a *App) RunOnce(ctx context.Context) error {
	a.Bootstrap(ctx)

	var errs []error
	for _, h := range a.handlers {
		rep, err := h.RunCycle(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.logger.Info("app: cycle finished",
			"handler", h.Name(),
			"bootstrap", rep.Bootstrap,
			"added", len(rep.Added),
			"current", rep.Current)
	}
	return errors.Join(errs...)
}

// Close releases the snapshot store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *App) monitored() []monitor.Handler {
	out := make([]monitor.Handler, len(a.handlers))
	for i, h := range a.handlers {
		out[i] = h
	}
	return out
}
