package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestRegistryHandlerIsStable(t *testing.T) {
	r := NewRegistry()
	a := r.Handler("wgzimmer")
	if a != r.Handler("wgzimmer") {
		t.Fatal("Handler should return the same instance per name")
	}
	r.Handler("feed")
	names := r.Names()
	if len(names) != 2 || names[0] != "feed" || names[1] != "wgzimmer" {
		t.Errorf("names: %v", names)
	}
}

func TestRecordCycleAndFailure(t *testing.T) {
	r := NewRegistry()
	m := r.Handler("wgzimmer")

	m.RecordCycle(Cycle{Duration: 2 * time.Second, Current: 5, Notified: 2, Removed: 1})
	m.RecordCycle(Cycle{Duration: 4 * time.Second, Current: 6, Notified: 1, NotifyFailures: 1, PersistFailed: true})

	stats := m.GetStats()
	if stats["cycles_completed"].(int64) != 2 {
		t.Errorf("cycles_completed: %v", stats["cycles_completed"])
	}
	if stats["listings_notified"].(int64) != 3 {
		t.Errorf("listings_notified: %v", stats["listings_notified"])
	}
	if stats["average_cycle_time_ms"].(int64) != 3000 {
		t.Errorf("average: %v", stats["average_cycle_time_ms"])
	}
	if stats["current_listings"].(int) != 6 {
		t.Errorf("current: %v", stats["current_listings"])
	}
	if stats["persist_failures"].(int64) != 1 {
		t.Errorf("persist_failures: %v", stats["persist_failures"])
	}
	if !r.Healthy() {
		t.Error("registry should be healthy")
	}

	m.RecordFailure(errors.New("captcha"))
	if r.Healthy() {
		t.Error("registry should be unhealthy after a failed cycle")
	}
	if m.GetStats()["last_error"] != "captcha" {
		t.Errorf("last_error: %v", m.GetStats()["last_error"])
	}

	m.RecordCycle(Cycle{Current: 6})
	if !r.Healthy() {
		t.Error("a successful cycle should restore health")
	}
}

func TestSourceStats(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.AddSource("telegram_pacer", func() map[string]interface{} {
		calls++
		return map[string]interface{}{"granted": calls}
	})

	if got := r.SourceStats()["telegram_pacer"]["granted"]; got != 1 {
		t.Errorf("granted: %v", got)
	}
	if got := r.SourceStats()["telegram_pacer"]["granted"]; got != 2 {
		t.Errorf("source should be read on every call, got %v", got)
	}
	if len(r.Names()) != 0 || !r.Healthy() {
		t.Error("sources must not count as handlers")
	}
}
