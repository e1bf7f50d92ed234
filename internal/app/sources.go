package app

import (
	"fmt"
	"log/slog"

	"github.com/deusflow/roomwatch/internal/config"
	"github.com/deusflow/roomwatch/internal/engine"
	"github.com/deusflow/roomwatch/internal/feed"
	"github.com/deusflow/roomwatch/internal/fetch"
	"github.com/deusflow/roomwatch/internal/wgzimmer"
)

// BuildSource returns the fetcher and parser for one handler definition.
func BuildSource(hc config.HandlerConfig, cfg *config.Config, logger *slog.Logger) (engine.Fetcher, engine.Parser, error) {
	switch hc.Kind {
	case config.KindWGZimmer:
		parser, err := wgzimmer.NewParser("")
		if err != nil {
			return nil, nil, err
		}
		if hc.FetchMode == config.FetchHTTP {
			u := hc.URL
			if u == "" {
				u = wgzimmer.SearchURL
			}
			return fetch.New(u, fetch.WithUserAgent(hc.UserAgent), fetch.WithLogger(logger)), parser, nil
		}
		f := wgzimmer.NewFetcher(
			wgzimmer.WithSearchURL(hc.URL),
			wgzimmer.WithPriceRange(hc.PriceMin, hc.PriceMax),
			wgzimmer.WithState(hc.State),
			wgzimmer.WithRemoteURL(cfg.BrowserRemoteURL),
			wgzimmer.WithHeadless(cfg.BrowserHeadless),
			wgzimmer.WithLogger(logger),
		)
		return f, parser, nil

	case config.KindFeed:
		f := fetch.New(hc.URL,
			fetch.WithUserAgent(hc.UserAgent),
			fetch.WithAccept("application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"),
			fetch.WithLogger(logger))
		return f, feed.NewParser(), nil

	default:
		return nil, nil, fmt.Errorf("app: %s: unknown handler kind %q", hc.Name, hc.Kind)
	}
}
