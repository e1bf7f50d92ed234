// Package monitor is the optional HTTP endpoint for health checks, metrics
// and a look at each handler's current listings.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deusflow/roomwatch/internal/engine"
	"github.com/deusflow/roomwatch/internal/listing"
	"github.com/deusflow/roomwatch/internal/metrics"
)

// Handler is the part of an engine handler the monitor reads.
type Handler interface {
	Name() string
	State() engine.State
	Current() []listing.Listing
	RunCycle(ctx context.Context) (*engine.CycleReport, error)
}

type Server struct {
	registry *metrics.Registry
	handlers map[string]Handler
	logger   *slog.Logger
}

func New(registry *metrics.Registry, handlers []Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{registry: registry, handlers: make(map[string]Handler, len(handlers)), logger: logger}
	for _, h := range handlers {
		s.handlers[h.Name()] = h
	}
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/handlers/{name}/listings", s.handleListings)
	r.Post("/handlers/{name}/poll", s.handlePoll)
	return r
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitor: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.GetStats()

	status := "ok"
	code := http.StatusOK
	if !s.registry.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	handlers := make(map[string]interface{}, len(stats))
	for name, st := range stats {
		handlers[name] = map[string]interface{}{
			"state":      st["state"],
			"last_run":   st["last_run_time"],
			"last_error": st["last_error"],
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":   status,
		"handlers": handlers,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.GetStats()
	for name, st := range s.registry.SourceStats() {
		if _, taken := stats[name]; !taken {
			stats[name] = st
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	current := h.Current()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"handler":  h.Name(),
		"state":    h.State().String(),
		"count":    len(current),
		"listings": current,
	})
}

type pollResponse struct {
	CycleID      string            `json:"cycle_id"`
	Bootstrap    bool              `json:"bootstrap"`
	Added        []listing.Listing `json:"added"`
	Removed      int               `json:"removed"`
	Current      int               `json:"current"`
	NotifyErrors []string          `json:"notify_errors,omitempty"`
	PersistError string            `json:"persist_error,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

// handlePoll runs one cycle right away.
// POST /handlers/{name}/poll
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}

	rep, err := h.RunCycle(r.Context())
	if errors.Is(err, engine.ErrCycleInProgress) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		s.logger.Warn("monitor: manual poll failed", "handler", h.Name(), "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := pollResponse{
		CycleID:    rep.CycleID,
		Bootstrap:  rep.Bootstrap,
		Added:      rep.Added,
		Removed:    len(rep.Removed),
		Current:    rep.Current,
		DurationMS: rep.Duration.Milliseconds(),
	}
	for _, e := range rep.NotifyErrors {
		resp.NotifyErrors = append(resp.NotifyErrors, e.Error())
	}
	if rep.PersistErr != nil {
		resp.PersistError = rep.PersistErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Handler, bool) {
	name := chi.URLParam(r, "name")
	h, ok := s.handlers[name]
	if !ok {
		http.Error(w, "unknown handler", http.StatusNotFound)
	}
	return h, ok
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
