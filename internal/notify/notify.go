// Package notify combines notification sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deusflow/roomwatch/internal/listing"
)

// Notifier announces one listing.
type Notifier interface {
	Notify(ctx context.Context, l listing.Listing) error
}

// Multi delivers to every sink. A failing sink does not stop the others;
// the returned error joins all failures.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, l listing.Listing) error {
	var errs []error
	for i, n := range m {
		if err := n.Notify(ctx, l); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Log writes every new listing to a logger. It is the sink of last resort
// when nothing else is configured.
type Log struct {
	Logger *slog.Logger
}

func (n Log) Notify(_ context.Context, l listing.Listing) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("new listing",
		"id", l.ID,
		"title", l.Fields.Title,
		"locality", l.Locality,
		"region", l.Region,
		"price", l.Fields.Price,
		"link", l.Fields.Link)
	return nil
}
