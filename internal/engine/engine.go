// Package engine runs the poll cycle of one listing source: fetch, persist,
// parse, resolve regions, filter, diff against the previously confirmed
// listings and announce the new ones.
//
// A Handler owns its state. Cycles never overlap and a cycle is either
// applied completely or not at all.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/roomwatch/internal/listing"
	"github.com/deusflow/roomwatch/internal/metrics"
	"github.com/deusflow/roomwatch/internal/retry"
)

// Fetcher retrieves the raw snapshot of a source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Parser decodes a raw snapshot. Malformed fragments go to Batch.Skipped;
// an error means nothing could be decoded at all.
type Parser interface {
	Parse(raw []byte) (*listing.Batch, error)
}

// Notifier announces one newly seen listing.
type Notifier interface {
	Notify(ctx context.Context, l listing.Listing) error
}

// SnapshotStore persists the last raw snapshot per handler name.
type SnapshotStore interface {
	Write(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
}

// Resolver maps a locality to a canonical region.
type Resolver interface {
	Resolve(locality string) (string, bool)
	// Display turns a resolved region into its presentation form.
	Display(region string) string
}

// State is the lifecycle position of a handler.
type State int

const (
	StateUninitialized State = iota
	StateBootstrapping
	StateReady
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBootstrapping:
		return "bootstrapping"
	case StateReady:
		return "ready"
	case StatePolling:
		return "polling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config wires one handler.
type Config struct {
	Name     string
	Fetcher  Fetcher
	Parser   Parser
	Notifier Notifier
	Store    SnapshotStore
	Resolver Resolver

	// TargetRegion must be in the resolver's canonical form.
	TargetRegion string

	// CycleTimeout bounds fetching. Default: 2 minutes.
	CycleTimeout time.Duration
	// PersistTimeout bounds the snapshot write. Default: 30 seconds.
	PersistTimeout time.Duration
	// Retry applies to the fetch step only.
	Retry retry.RetryConfig

	Logger  *slog.Logger
	Metrics *metrics.HandlerMetrics
}

func (c *Config) defaults() {
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 2 * time.Minute
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewRegistry().Handler(c.Name)
	}
}

func (c *Config) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("engine: handler name is required")
	case c.Fetcher == nil:
		return fmt.Errorf("engine: %s: fetcher is required", c.Name)
	case c.Parser == nil:
		return fmt.Errorf("engine: %s: parser is required", c.Name)
	case c.Notifier == nil:
		return fmt.Errorf("engine: %s: notifier is required", c.Name)
	case c.Store == nil:
		return fmt.Errorf("engine: %s: snapshot store is required", c.Name)
	case c.Resolver == nil:
		return fmt.Errorf("engine: %s: region resolver is required", c.Name)
	case c.TargetRegion == "":
		return fmt.Errorf("engine: %s: target region is required", c.Name)
	}
	return nil
}

// Handler is the polling engine of one named source.
type Handler struct {
	cfg    Config
	logger *slog.Logger

	// cycleMu is held for the whole of a cycle or a bootstrap.
	cycleMu sync.Mutex

	// mu guards the fields below for readers outside the cycle.
	mu          sync.RWMutex
	current     listing.Set
	initialized bool
	state       State
}

// New validates cfg and returns an uninitialized handler.
func New(cfg Config) (*Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.defaults()
	h := &Handler{
		cfg:    cfg,
		logger: cfg.Logger.With("handler", cfg.Name),
		state:  StateUninitialized,
	}
	cfg.Metrics.SetState(h.state.String())
	return h, nil
}

func (h *Handler) Name() string { return h.cfg.Name }

func (h *Handler) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handler) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initialized
}

// Current returns the confirmed listings in display order.
func (h *Handler) Current() []listing.Listing {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Listings()
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
	h.cfg.Metrics.SetState(s.String())
}

// commit swaps in next as the confirmed set and marks the handler ready.
func (h *Handler) commit(next listing.Set) {
	h.mu.Lock()
	h.current = next
	h.initialized = true
	h.state = StateReady
	h.mu.Unlock()
	h.cfg.Metrics.SetState(StateReady.String())
}

// snapshotState reads the committed state under the lock.
func (h *Handler) snapshotState() (listing.Set, bool, State) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.initialized, h.state
}

// DefaultInterval is the polling interval Run falls back to when given a
// non-positive one.
const DefaultInterval = 5 * time.Minute

// Run polls every interval until ctx is done, starting with an immediate
// cycle. A tick that arrives while a cycle is running is dropped.
func (h *Handler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		h.logger.Warn("engine: invalid polling interval, using default", "interval", interval, "default", DefaultInterval)
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.logger.Info("engine: polling started", "interval", interval)
	h.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("engine: polling stopped")
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Handler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := h.RunCycle(ctx); errors.Is(err, ErrCycleInProgress) {
		h.logger.Warn("engine: previous cycle still running, skipping tick")
	}
}
