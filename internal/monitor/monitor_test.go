package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deusflow/roomwatch/internal/engine"
	"github.com/deusflow/roomwatch/internal/listing"
	"github.com/deusflow/roomwatch/internal/logger"
	"github.com/deusflow/roomwatch/internal/metrics"
)

type stubHandler struct {
	name    string
	current []listing.Listing
	report  *engine.CycleReport
	err     error
}

func (h *stubHandler) Name() string               { return h.name }
func (h *stubHandler) State() engine.State        { return engine.StateReady }
func (h *stubHandler) Current() []listing.Listing { return h.current }
func (h *stubHandler) RunCycle(context.Context) (*engine.CycleReport, error) {
	return h.report, h.err
}

func newServer(reg *metrics.Registry, hs ...Handler) http.Handler {
	return New(reg, hs, logger.Discard()).Router()
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	reg := metrics.NewRegistry()
	m := reg.Handler("wgzimmer")
	srv := newServer(reg)

	rec := do(t, srv, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	m.RecordFailure(errors.New("captcha"))
	rec = do(t, srv, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after failure: %d", rec.Code)
	}
	var body struct {
		Status   string                            `json:"status"`
		Handlers map[string]map[string]interface{} `json:"handlers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "error" || body.Handlers["wgzimmer"]["last_error"] != "captcha" {
		t.Errorf("body: %+v", body)
	}
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Handler("feed").SetCurrent(4)
	reg.AddSource("telegram_pacer", func() map[string]interface{} {
		return map[string]interface{}{"granted": 7}
	})

	rec := do(t, newServer(reg), http.MethodGet, "/metrics")
	var stats map[string]map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["feed"]["current_listings"] != float64(4) {
		t.Errorf("stats: %v", stats)
	}
	if stats["telegram_pacer"]["granted"] != float64(7) {
		t.Errorf("pacer stats: %v", stats["telegram_pacer"])
	}
}

func TestListings(t *testing.T) {
	h := &stubHandler{name: "wgzimmer", current: []listing.Listing{{ID: "a"}, {ID: "b"}}}
	srv := newServer(metrics.NewRegistry(), h)

	rec := do(t, srv, http.MethodGet, "/handlers/wgzimmer/listings")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var body struct {
		Count    int               `json:"count"`
		State    string            `json:"state"`
		Listings []listing.Listing `json:"listings"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Count != 2 || body.State != "ready" || body.Listings[1].ID != "b" {
		t.Errorf("body: %+v", body)
	}

	if rec := do(t, srv, http.MethodGet, "/handlers/nope/listings"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown handler status: %d", rec.Code)
	}
}

func TestPoll(t *testing.T) {
	h := &stubHandler{name: "feed", report: &engine.CycleReport{
		CycleID: "c1",
		Added:   []listing.Listing{{ID: "new"}},
		Current: 3,
	}}
	srv := newServer(metrics.NewRegistry(), h)

	rec := do(t, srv, http.MethodPost, "/handlers/feed/poll")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp pollResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.CycleID != "c1" || len(resp.Added) != 1 || resp.Current != 3 {
		t.Errorf("resp: %+v", resp)
	}

	h.report, h.err = nil, engine.ErrCycleInProgress
	if rec := do(t, srv, http.MethodPost, "/handlers/feed/poll"); rec.Code != http.StatusConflict {
		t.Errorf("busy status: %d", rec.Code)
	}

	h.err = &engine.FetchError{Handler: "feed", Err: errors.New("timeout")}
	if rec := do(t, srv, http.MethodPost, "/handlers/feed/poll"); rec.Code != http.StatusBadGateway {
		t.Errorf("failed cycle status: %d", rec.Code)
	}

	if rec := do(t, srv, http.MethodGet, "/handlers/feed/poll"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET poll status: %d", rec.Code)
	}
}
