package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/roomwatch/internal/snapshot"
)

// Handler kinds.
const (
	KindWGZimmer = "wgzimmer"
	KindFeed     = "feed"
)

// Fetch modes.
const (
	FetchBrowser = "browser"
	FetchHTTP    = "http"
)

// HandlerConfig is one entry of the handlers file:
//
//	handlers:
//	  - name: wgzimmer
//	    kind: wgzimmer
//	    interval: 5m
//	    price_min: 200
//	    price_max: 1500
//	    state: all
type HandlerConfig struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"`
	URL       string        `yaml:"url"`
	Interval  time.Duration `yaml:"interval"`
	PriceMin  int           `yaml:"price_min"`
	PriceMax  int           `yaml:"price_max"`
	State     string        `yaml:"state"`
	FetchMode string        `yaml:"fetch_mode"`
	UserAgent string        `yaml:"user_agent"`
}

type handlersFile struct {
	Handlers []HandlerConfig `yaml:"handlers"`
}

// LoadHandlers reads the handlers file and fills per-handler defaults from
// defaultInterval.
func LoadHandlers(path string, defaultInterval time.Duration) ([]HandlerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file handlersFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if len(file.Handlers) == 0 {
		return nil, fmt.Errorf("config: %s: no handlers defined", path)
	}

	seen := make(map[string]bool, len(file.Handlers))
	for i := range file.Handlers {
		h := &file.Handlers[i]
		h.applyDefaults(defaultInterval)
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("config: %s: handler %d: %w", path, i, err)
		}
		if seen[h.Name] {
			return nil, fmt.Errorf("config: %s: duplicate handler name %q", path, h.Name)
		}
		seen[h.Name] = true
	}
	return file.Handlers, nil
}

func (h *HandlerConfig) applyDefaults(defaultInterval time.Duration) {
	if h.Interval <= 0 {
		h.Interval = defaultInterval
	}
	if h.FetchMode == "" {
		if h.Kind == KindWGZimmer {
			h.FetchMode = FetchBrowser
		} else {
			h.FetchMode = FetchHTTP
		}
	}
	if h.Name == "" {
		h.Name = h.Kind
	}
}

func (h *HandlerConfig) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("name is required")
	}
	// The name keys the handler's snapshot.
	if err := snapshot.ValidateName(h.Name); err != nil {
		return err
	}
	switch h.Kind {
	case KindWGZimmer:
		if h.FetchMode != FetchBrowser && h.FetchMode != FetchHTTP {
			return fmt.Errorf("%s: fetch_mode must be 'browser' or 'http'", h.Name)
		}
	case KindFeed:
		if h.URL == "" {
			return fmt.Errorf("%s: url is required for feed handlers", h.Name)
		}
		if h.FetchMode != FetchHTTP {
			return fmt.Errorf("%s: feed handlers only support fetch_mode 'http'", h.Name)
		}
	default:
		return fmt.Errorf("%s: kind must be '%s' or '%s'", h.Name, KindWGZimmer, KindFeed)
	}
	if h.PriceMin < 0 || h.PriceMax < 0 || (h.PriceMax > 0 && h.PriceMin > h.PriceMax) {
		return fmt.Errorf("%s: invalid price range %d-%d", h.Name, h.PriceMin, h.PriceMax)
	}
	if h.Interval <= 0 {
		return fmt.Errorf("%s: interval must be positive", h.Name)
	}
	return nil
}
