package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/roomwatch/internal/listing"
	"github.com/deusflow/roomwatch/internal/metrics"
	"github.com/deusflow/roomwatch/internal/retry"
	"github.com/deusflow/roomwatch/internal/snapshot"
)

// CycleReport describes the outcome of one cycle.
type CycleReport struct {
	CycleID   string
	Handler   string
	Bootstrap bool

	Parsed      int
	Skipped     int
	Unresolved  int
	FilteredOut int

	Added        []listing.Listing
	Removed      []listing.Listing
	NotifyErrors []error
	PersistErr   error

	Current  int
	Duration time.Duration
}

// tally counts what the admit and filter steps dropped or let through.
type tally struct {
	parsed      int
	skipped     int
	unresolved  int
	filteredOut int
}

// RunCycle runs one fetch → persist → parse → resolve → filter → diff →
// notify sequence.
//
// A fetch or parse failure returns an error and leaves the confirmed
// listings untouched. Persistence and notification failures are recorded
// in the report and logged; the cycle still commits.
//
// Once the snapshot is fetched the rest of the cycle runs detached from
// ctx cancellation so that shutdown never interrupts a half-applied cycle.
func (h *Handler) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !h.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer h.cycleMu.Unlock()

	start := time.Now()
	report := &CycleReport{CycleID: uuid.NewString(), Handler: h.cfg.Name}
	log := h.logger.With("cycle_id", report.CycleID)

	prev, initialized, prevState := h.snapshotState()
	report.Bootstrap = !initialized
	if report.Bootstrap {
		h.setState(StateBootstrapping)
	} else {
		h.setState(StatePolling)
	}

	fail := func(err error) (*CycleReport, error) {
		h.setState(prevState)
		h.cfg.Metrics.RecordFailure(err)
		report.Duration = time.Since(start)
		report.Current = prev.Len()
		return report, err
	}

	// 1. fetch
	raw, err := h.fetch(ctx)
	if err != nil {
		ferr := &FetchError{Handler: h.cfg.Name, Err: err}
		log.Error("engine: fetch failed, keeping previous listings", "error", err)
		return fail(ferr)
	}
	log.Debug("engine: snapshot fetched", "bytes", len(raw))

	detached := context.WithoutCancel(ctx)

	// 2. persist
	report.PersistErr = h.persist(detached, raw)
	if report.PersistErr != nil {
		log.Error("engine: could not persist snapshot", "error", report.PersistErr)
	}

	// 3. parse
	batch, err := h.cfg.Parser.Parse(raw)
	if err != nil {
		perr := &ParseError{Handler: h.cfg.Name, Err: err}
		log.Error("engine: parse failed, keeping previous listings", "error", err)
		return fail(perr)
	}

	// 4. + 5. resolve and filter
	var t tally
	candidates := h.admit(log, batch, &t)
	next := listing.NewSet(h.filter(log, candidates, &t))
	report.Parsed, report.Skipped = t.parsed, t.skipped
	report.Unresolved, report.FilteredOut = t.unresolved, t.filteredOut

	if report.Bootstrap {
		// 6. no prior state, adopt everything silently
		h.commit(next)
		log.Info("engine: initial download of all listings complete", "listings", next.Len())
	} else {
		// 7. diff and announce
		report.Added, report.Removed = listing.Diff(prev, next)
		for _, l := range report.Added {
			if err := h.cfg.Notifier.Notify(detached, l); err != nil {
				nerr := &NotifyError{Handler: h.cfg.Name, ListingID: l.ID, Err: err}
				report.NotifyErrors = append(report.NotifyErrors, nerr)
				log.Error("engine: notification failed", "listing", l.ID, "error", err)
				continue
			}
			log.Info("engine: new listing announced", "listing", l.ID, "title", l.Fields.Title)
		}
		h.commit(next)
		if len(report.Removed) > 0 {
			log.Info("engine: listings removed", "count", len(report.Removed))
		}
	}

	// 8. summary
	report.Current = next.Len()
	report.Duration = time.Since(start)
	h.cfg.Metrics.RecordCycle(metrics.Cycle{
		Duration:         report.Duration,
		Current:          report.Current,
		Notified:         len(report.Added) - len(report.NotifyErrors),
		NotifyFailures:   len(report.NotifyErrors),
		Removed:          len(report.Removed),
		FragmentsSkipped: report.Skipped,
		Unresolved:       report.Unresolved,
		PersistFailed:    report.PersistErr != nil,
	})
	log.Debug("engine: current listings", "ids", next.IDs())
	log.Info("engine: listings updated",
		"at", time.Now().Format(time.RFC3339),
		"listings", report.Current,
		"added", len(report.Added),
		"removed", len(report.Removed),
		"duration", report.Duration)

	return report, nil
}

// LoadFromPersisted bootstraps the handler from the last stored snapshot.
// Any failure leaves the handler uninitialized so that the next live cycle
// becomes the bootstrap; callers should log the error and carry on.
func (h *Handler) LoadFromPersisted(ctx context.Context) error {
	if !h.cycleMu.TryLock() {
		return ErrCycleInProgress
	}
	defer h.cycleMu.Unlock()

	_, initialized, prevState := h.snapshotState()
	if initialized {
		return nil
	}
	h.setState(StateBootstrapping)

	raw, err := h.cfg.Store.Read(ctx, h.cfg.Name)
	if err != nil {
		h.setState(prevState)
		if errors.Is(err, snapshot.ErrNotFound) {
			h.logger.Info("engine: no persisted snapshot, first poll will bootstrap")
		}
		return &PersistenceError{Handler: h.cfg.Name, Op: "read", Err: err}
	}

	batch, err := h.cfg.Parser.Parse(raw)
	if err != nil {
		h.setState(prevState)
		return &ParseError{Handler: h.cfg.Name, Err: err}
	}

	var t tally
	log := h.logger.With("phase", "restore")
	next := listing.NewSet(h.filter(log, h.admit(log, batch, &t), &t))
	h.commit(next)
	h.cfg.Metrics.SetCurrent(next.Len())
	h.logger.Info("engine: restored listings from snapshot", "listings", next.Len(), "bytes", len(raw))
	return nil
}

func (h *Handler) fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.CycleTimeout)
	defer cancel()

	var raw []byte
	err := retry.WithRetry(ctx, h.cfg.Retry, func(ctx context.Context) error {
		var err error
		raw, err = h.cfg.Fetcher.Fetch(ctx)
		if err != nil {
			h.logger.Debug("engine: fetch attempt failed", "error", err)
		}
		return err
	})
	return raw, err
}

func (h *Handler) persist(ctx context.Context, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.PersistTimeout)
	defer cancel()

	if err := h.cfg.Store.Write(ctx, h.cfg.Name, raw); err != nil {
		return &PersistenceError{Handler: h.cfg.Name, Op: "write", Err: err}
	}
	return nil
}

// admit drops fragments the parser skipped and listings without an ID.
func (h *Handler) admit(log *slog.Logger, batch *listing.Batch, t *tally) []listing.Listing {
	if batch == nil {
		return nil
	}
	for _, s := range batch.Skipped {
		log.Warn("engine: listing could not be included", "error", s)
	}
	t.skipped += len(batch.Skipped)

	out := make([]listing.Listing, 0, len(batch.Listings))
	for i, l := range batch.Listings {
		if l.ID == "" {
			log.Warn("engine: listing could not be included", "error", &listing.FragmentError{Index: i, Err: listing.ErrNoIdentity})
			t.skipped++
			continue
		}
		out = append(out, l)
	}
	t.parsed += len(out)
	return out
}

// filter resolves every candidate's region and keeps those in the target
// region. Listings whose region cannot be resolved are kept.
func (h *Handler) filter(log *slog.Logger, candidates []listing.Listing, t *tally) []listing.Listing {
	kept := make([]listing.Listing, 0, len(candidates))
	for _, l := range candidates {
		region, ok := h.cfg.Resolver.Resolve(l.Locality)
		if !ok {
			t.unresolved++
			log.Warn("engine: listing has no region", "listing", l.ID, "locality", l.Locality)
			kept = append(kept, l.WithRegion(""))
			continue
		}
		if region != h.cfg.TargetRegion {
			t.filteredOut++
			log.Info("engine: listing filtered out", "listing", l.ID, "region", region)
			continue
		}
		kept = append(kept, l.WithRegion(h.cfg.Resolver.Display(region)))
	}
	return kept
}
