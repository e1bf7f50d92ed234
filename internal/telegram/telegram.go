package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/roomwatch/internal/listing"
	"github.com/deusflow/roomwatch/internal/ratelimit"
	"github.com/deusflow/roomwatch/internal/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram rejects longer messages.
const maxMessageRunes = 4096

// Notifier posts one HTML message per new listing to a chat or channel.
type Notifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
	pacer   *ratelimit.Pacer
	preview bool
	logger  *slog.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another Bot API host.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithRetry overrides the send retry policy.
func WithRetry(cfg retry.RetryConfig) Option {
	return func(n *Notifier) { n.retry = cfg }
}

// WithPacer spaces out sends. Telegram throttles bursts to one chat.
func WithPacer(p *ratelimit.Pacer) Option {
	return func(n *Notifier) { n.pacer = p }
}

// WithPreview allows Telegram to render a link preview.
func WithPreview(on bool) Option {
	return func(n *Notifier) { n.preview = on }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

func New(token, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Notify sends the listing with retries. Rejections other than rate
// limiting are not retried.
func (n *Notifier) Notify(ctx context.Context, l listing.Listing) error {
	if n.pacer != nil {
		if err := n.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("telegram: pacing: %w", err)
		}
	}

	text := FormatListing(l)
	attempt := 0
	err := retry.WithRetry(ctx, n.retry, func(ctx context.Context) error {
		attempt++
		err := n.sendMessageOnce(ctx, text)
		if err != nil {
			n.logger.Warn("telegram: send failed", "listing", l.ID, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return err
	}
	n.logger.Debug("telegram: message sent", "listing", l.ID, "attempt", attempt)
	return nil
}

type apiError struct {
	Status      int
	Description string
}

func (e *apiError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram API error: status %d: %s", e.Status, e.Description)
	}
	return fmt.Sprintf("telegram API error: status %d", e.Status)
}

// sendMessageOnce does one try to send message
func (n *Notifier) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)

	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": !n.preview,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("telegram: marshal: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("telegram: new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			n.logger.Debug("telegram: close response body", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	apiErr := &apiError{Status: resp.StatusCode}
	var reply struct {
		Description string `json:"description"`
	}
	if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&reply) == nil {
		apiErr.Description = reply.Description
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(apiErr)
	}
	return apiErr
}

// FormatListing renders a listing as a Telegram HTML message.
func FormatListing(l listing.Listing) string {
	var b strings.Builder

	title := l.Fields.Title
	if title == "" {
		title = l.Locality
	}
	if title == "" {
		title = "New listing"
	}
	b.WriteString("🏠 <b>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</b>\n")

	line := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%s %s\n", label, html.EscapeString(value))
	}
	line("📍", locationLine(l))
	line("💰", l.Fields.Price)
	line("📅 from", l.Fields.Available)
	line("🕒 posted", l.Fields.Published)

	if s := l.Fields.Summary; s != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(truncateRunes(s, 600)))
		b.WriteString("\n")
	}

	link := l.Fields.Link
	if link == "" && strings.HasPrefix(l.ID, "http") {
		link = l.ID
	}
	if link != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">Open listing</a>", html.EscapeString(link))
	}

	return truncateRunes(b.String(), maxMessageRunes)
}

func locationLine(l listing.Listing) string {
	switch {
	case l.Locality != "" && l.HasRegion():
		return fmt.Sprintf("%s (%s)", l.Locality, l.Region)
	case l.Locality != "":
		return l.Locality
	default:
		return l.Region
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
