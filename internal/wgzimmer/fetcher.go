// Package wgzimmer is the wgzimmer.ch room search source: a browser driven
// fetcher that submits the search form and a goquery parser for the result
// page it returns.
package wgzimmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/deusflow/roomwatch/internal/retry"
)

// SearchURL is the room search form.
const SearchURL = "https://www.wgzimmer.ch/wgzimmer/search/mate.html"

const (
	resultSelector = ".search-result-entry"
	captchaXPath   = "//div[@class='text no-link']/h1"
	submitXPath    = "//input[@value='Suchen']"
)

// ErrCaptcha means the site answered the search with its captcha failure
// page. Retrying within the same cycle does not help.
var ErrCaptcha = errors.New("wgzimmer: captcha failed")

// Fetcher opens the search page in a stealth browser tab, fills in the
// search form and returns the rendered result page.
type Fetcher struct {
	searchURL  string
	priceMin   int
	priceMax   int
	state      string
	remoteURL  string
	headless   bool
	navTimeout time.Duration
	waitResult time.Duration
	logger     *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSearchURL overrides the search form location.
func WithSearchURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.searchURL = u
		}
	}
}

// WithPriceRange sets the monthly rent bounds in CHF. Zero keeps the default.
func WithPriceRange(min, max int) Option {
	return func(f *Fetcher) {
		if min > 0 {
			f.priceMin = min
		}
		if max > 0 {
			f.priceMax = max
		}
	}
}

// WithState sets the room state filter ("all", "free", ...).
func WithState(state string) Option {
	return func(f *Fetcher) {
		if state != "" {
			f.state = state
		}
	}
}

// WithRemoteURL connects to an already running browser instead of
// launching a local one.
func WithRemoteURL(u string) Option {
	return func(f *Fetcher) { f.remoteURL = u }
}

// WithHeadless toggles headless mode for a locally launched browser.
func WithHeadless(h bool) Option {
	return func(f *Fetcher) { f.headless = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with the default search: 200 to 1500 CHF,
// every room state.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		searchURL:  SearchURL,
		priceMin:   200,
		priceMax:   1500,
		state:      "all",
		headless:   true,
		navTimeout: 30 * time.Second,
		waitResult: 10 * time.Second,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch runs one search in a fresh browser and returns the page source.
// A captcha page yields ErrCaptcha marked as permanent for retry.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	browser, cleanup, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("wgzimmer: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, f.navTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(f.searchURL); err != nil {
		return nil, fmt.Errorf("wgzimmer: navigate %s: %w", f.searchURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.logger.Warn("wgzimmer: wait load timeout", "url", f.searchURL, "error", err)
	}

	page = page.Context(ctx)
	if err := f.fillForm(page); err != nil {
		return nil, err
	}

	captcha := false
	_, err = page.Timeout(f.waitResult).Race().
		Element(resultSelector).
		ElementX(captchaXPath).Handle(func(*rod.Element) error {
		captcha = true
		return nil
	}).
		Do()
	if err != nil {
		return nil, fmt.Errorf("wgzimmer: waiting for results: %w", err)
	}
	if captcha {
		f.logger.Error("wgzimmer: captcha failed")
		return nil, retry.Permanent(ErrCaptcha)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("wgzimmer: page source: %w", err)
	}
	f.logger.Debug("wgzimmer: fetched result page", "size", len(html))
	return []byte(html), nil
}

func (f *Fetcher) fillForm(page *rod.Page) error {
	selects := []struct{ name, value string }{
		{"priceMin", strconv.Itoa(f.priceMin)},
		{"priceMax", strconv.Itoa(f.priceMax)},
		{"wgState", f.state},
	}
	for _, s := range selects {
		el, err := page.Element(fmt.Sprintf("[name=%q]", s.name))
		if err != nil {
			return fmt.Errorf("wgzimmer: form field %s: %w", s.name, err)
		}
		if err := el.Select([]string{s.value}, true, rod.SelectorTypeText); err != nil {
			return fmt.Errorf("wgzimmer: select %s=%s: %w", s.name, s.value, err)
		}
	}

	btn, err := page.ElementX(submitXPath)
	if err != nil {
		return fmt.Errorf("wgzimmer: search button: %w", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("wgzimmer: submit search: %w", err)
	}
	return nil
}

// connect attaches to the remote browser or launches a local one. The
// returned cleanup closes everything connect opened.
func (f *Fetcher) connect(ctx context.Context) (*rod.Browser, func(), error) {
	wsURL := f.remoteURL
	var l *launcher.Launcher
	if wsURL == "" {
		l = launcher.New().
			Headless(f.headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("wgzimmer: launch browser: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("wgzimmer: connect browser: %w", err)
	}

	// A remote browser outlives the fetch; only the tab is closed.
	cleanup := func() {
		if l == nil {
			return
		}
		if err := b.Close(); err != nil {
			f.logger.Debug("wgzimmer: close browser", "error", err)
		}
		l.Kill()
		l.Cleanup()
	}
	return b, cleanup, nil
}
