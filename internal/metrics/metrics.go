package metrics

import (
	"sort"
	"sync"
	"time"
)

// HandlerMetrics are the counters of one polling handler.
type HandlerMetrics struct {
	mu sync.RWMutex

	// Counters
	CyclesCompleted   int64
	CyclesFailed      int64
	ListingsNotified  int64
	NotifyFailures    int64
	ListingsRemoved   int64
	FragmentsSkipped  int64
	UnresolvedRegions int64
	PersistFailures   int64

	// Timings
	LastCycleTime    time.Duration
	AverageCycleTime time.Duration
	TotalCycleTime   time.Duration

	// Status
	CurrentListings int
	State           string
	LastRunTime     time.Time
	LastErrorTime   time.Time
	LastError       string
	IsHealthy       bool
}

// Cycle summarizes one completed cycle for recording.
type Cycle struct {
	Duration         time.Duration
	Current          int
	Notified         int
	NotifyFailures   int
	Removed          int
	FragmentsSkipped int
	Unresolved       int
	PersistFailed    bool
}

// Registry holds metrics per handler name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*HandlerMetrics
	sources  map[string]func() map[string]interface{}
}

var Global = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]*HandlerMetrics),
		sources:  make(map[string]func() map[string]interface{}),
	}
}

// AddSource registers stats that are not tied to a handler, such as a
// shared notification pacer. fn is called on every read.
func (r *Registry) AddSource(name string, fn func() map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = fn
}

// SourceStats returns the stats of every registered source keyed by name.
func (r *Registry) SourceStats() map[string]map[string]interface{} {
	r.mu.RLock()
	fns := make(map[string]func() map[string]interface{}, len(r.sources))
	for name, fn := range r.sources {
		fns[name] = fn
	}
	r.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(fns))
	for name, fn := range fns {
		out[name] = fn()
	}
	return out
}

// Handler returns the metrics of name, creating them on first use.
func (r *Registry) Handler(name string) *HandlerMetrics {
	r.mu.RLock()
	m, ok := r.handlers[name]
	r.mu.RUnlock()
	if ok {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.handlers[name]; ok {
		return m
	}
	m = &HandlerMetrics{IsHealthy: true, State: "uninitialized"}
	r.handlers[name] = m
	return m
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Healthy is true when no handler's last cycle failed.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.handlers {
		m.mu.RLock()
		ok := m.IsHealthy
		m.mu.RUnlock()
		if !ok {
			return false
		}
	}
	return true
}

// GetStats returns the stats of every handler keyed by name.
func (r *Registry) GetStats() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	for _, name := range r.Names() {
		out[name] = r.Handler(name).GetStats()
	}
	return out
}

func (m *HandlerMetrics) RecordCycle(c Cycle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CyclesCompleted++
	m.ListingsNotified += int64(c.Notified)
	m.NotifyFailures += int64(c.NotifyFailures)
	m.ListingsRemoved += int64(c.Removed)
	m.FragmentsSkipped += int64(c.FragmentsSkipped)
	m.UnresolvedRegions += int64(c.Unresolved)
	if c.PersistFailed {
		m.PersistFailures++
	}

	m.LastCycleTime = c.Duration
	m.TotalCycleTime += c.Duration
	m.AverageCycleTime = m.TotalCycleTime / time.Duration(m.CyclesCompleted)

	m.CurrentListings = c.Current
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *HandlerMetrics) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesFailed++
	m.LastError = err.Error()
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *HandlerMetrics) SetState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.State = state
}

// SetCurrent records the listing count after a bootstrap from disk.
func (m *HandlerMetrics) SetCurrent(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentListings = n
}

func (m *HandlerMetrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"cycles_completed":      m.CyclesCompleted,
		"cycles_failed":         m.CyclesFailed,
		"listings_notified":     m.ListingsNotified,
		"notify_failures":       m.NotifyFailures,
		"listings_removed":      m.ListingsRemoved,
		"fragments_skipped":     m.FragmentsSkipped,
		"unresolved_regions":    m.UnresolvedRegions,
		"persist_failures":      m.PersistFailures,
		"current_listings":      m.CurrentListings,
		"state":                 m.State,
		"last_cycle_time_ms":    m.LastCycleTime.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleTime.Milliseconds(),
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
