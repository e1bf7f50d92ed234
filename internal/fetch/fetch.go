// Package fetch is the plain HTTP acquisition path: one GET per cycle, the
// response body is the raw snapshot.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/roomwatch/internal/retry"
)

// DefaultMaxBytes caps a snapshot at 10MB.
const DefaultMaxBytes = 10 << 20

// ErrBodyTooLarge is returned when a response exceeds the size cap. A cut
// short page would parse into a partial listing set.
var ErrBodyTooLarge = errors.New("fetch: response body exceeds size cap")

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s: status %d", e.URL, e.Code)
}

// Fetcher GETs one URL.
type Fetcher struct {
	url      string
	client   *http.Client
	ua       string
	accept   string
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.ua = ua
		}
	}
}

// WithAccept sets the Accept header.
func WithAccept(accept string) Option {
	return func(f *Fetcher) { f.accept = accept }
}

// WithMaxBytes caps the body size. Larger bodies fail with ErrBodyTooLarge.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher for url.
func New(url string, opts ...Option) *Fetcher {
	f := &Fetcher{
		url:      url,
		client:   &http.Client{Timeout: 30 * time.Second},
		ua:       "Mozilla/5.0 (compatible; roomwatch/1.0)",
		accept:   "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the response body. Client errors other than 408 and 429
// are marked permanent so the cycle does not retry them.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", f.accept)
	req.Header.Set("Accept-Language", "de-CH,de;q=0.9,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{URL: f.url, Code: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusRequestTimeout &&
			resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(serr)
		}
		return nil, serr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("%w: %s: more than %d bytes", ErrBodyTooLarge, f.url, f.maxBytes))
	}

	f.logger.Debug("fetch: fetched", "url", f.url, "status", resp.StatusCode, "size", len(body))
	return body, nil
}
