// Package webhook posts new listings as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/roomwatch/internal/listing"
)

// Event is the JSON body of one delivery.
type Event struct {
	Type    string          `json:"type"`
	Handler string          `json:"handler,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
	Listing listing.Listing `json:"listing"`
}

// Notifier POSTs JSON to a URL with retry and exponential backoff.
type Notifier struct {
	url        string
	handler    string
	client     *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithRetries sets the maximum number of retries. Default: 3.
func WithRetries(n int) Option {
	return func(w *Notifier) { w.maxRetries = n }
}

// WithBackoff sets the first retry delay. It doubles on every retry.
func WithBackoff(d time.Duration) Option {
	return func(w *Notifier) { w.backoff = d }
}

// WithHandler tags every event with the handler name.
func WithHandler(name string) Option {
	return func(w *Notifier) { w.handler = name }
}

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(w *Notifier) { w.client = c }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Notifier) { w.logger = l }
}

func New(url string, opts ...Option) *Notifier {
	w := &Notifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

func (w *Notifier) Notify(ctx context.Context, l listing.Listing) error {
	return w.post(ctx, Event{Type: "listing.new", Handler: w.handler, SentAt: time.Now().UTC(), Listing: l})
}

func (w *Notifier) post(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.backoff << uint(attempt-1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			w.logger.Warn("webhook: request failed", "attempt", attempt+1, "error", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook: status %d", resp.StatusCode)
		w.logger.Warn("webhook: bad status", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}
