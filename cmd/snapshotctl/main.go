// Command snapshotctl prints what a handler's persisted snapshot contains.
//
//	snapshotctl -handler wgzimmer
//	snapshotctl -handler rooms -json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/deusflow/roomwatch/internal/app"
	"github.com/deusflow/roomwatch/internal/config"
	"github.com/deusflow/roomwatch/internal/engine"
	"github.com/deusflow/roomwatch/internal/listing"
	"github.com/deusflow/roomwatch/internal/logger"
	"github.com/deusflow/roomwatch/internal/region"
	"github.com/deusflow/roomwatch/internal/snapshot"
)

func main() {
	name := flag.String("handler", "", "handler name")
	handlersPath := flag.String("config", "", "handlers file (overrides HANDLERS_CONFIG_PATH)")
	asJSON := flag.Bool("json", false, "print listings as JSON")
	flag.Parse()

	if err := run(*name, *handlersPath, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "snapshotctl:", err)
		os.Exit(1)
	}
}

func run(name, handlersPath string, asJSON bool) error {
	if name == "" {
		return errors.New("-handler is required")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Debug, cfg.LogFormat)
	if handlersPath != "" {
		cfg.HandlersConfigPath = handlersPath
	}

	defs, err := config.LoadHandlers(cfg.HandlersConfigPath, cfg.PollInterval)
	if err != nil {
		return err
	}
	var def *config.HandlerConfig
	for i := range defs {
		if defs[i].Name == name {
			def = &defs[i]
		}
	}
	if def == nil {
		return fmt.Errorf("no handler named %q in %s", name, cfg.HandlersConfigPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	raw, err := store.Read(ctx, name)
	if errors.Is(err, snapshot.ErrNotFound) {
		return fmt.Errorf("handler %q has no snapshot yet", name)
	}
	if err != nil {
		return err
	}
	if st, ok := store.(snapshot.Stater); ok {
		if info, err := st.Stat(ctx, name); err == nil {
			fmt.Fprintf(os.Stderr, "%s: %d bytes, updated %s\n", info.Name, info.Size, info.UpdatedAt.Format(time.RFC3339))
		}
	} else {
		fmt.Fprintf(os.Stderr, "%s: %d bytes\n", name, len(raw))
	}

	log := logger.ForHandler(name)
	_, parser, err := app.BuildSource(*def, cfg, log)
	if err != nil {
		return err
	}
	listings, skipped, err := decode(parser, region.New(cfg.RegionsPath, region.WithLogger(log)), raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d listings, %d fragments skipped\n", len(listings), skipped)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOCALITY\tREGION\tPRICE\tTITLE")
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.Locality, l.Region, l.Fields.Price, l.Fields.Title)
	}
	return tw.Flush()
}

// decode parses raw and annotates each listing with its resolved region.
func decode(p engine.Parser, r engine.Resolver, raw []byte) ([]listing.Listing, int, error) {
	batch, err := p.Parse(raw)
	if err != nil {
		return nil, 0, err
	}
	out := make([]listing.Listing, 0, len(batch.Listings))
	for _, l := range batch.Listings {
		reg, ok := r.Resolve(l.Locality)
		if ok {
			reg = r.Display(reg)
		}
		out = append(out, l.WithRegion(reg))
	}
	return out, len(batch.Skipped), nil
}
