package app

import (
	"context"
	"fmt"

	"github.com/deusflow/roomwatch/internal/config"
	"github.com/deusflow/roomwatch/internal/snapshot"
)

// OpenStore opens the snapshot backend selected by SNAPSHOT_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case "", "file":
		s, err := snapshot.NewFileStore(cfg.SnapshotDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := snapshot.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := snapshot.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}
