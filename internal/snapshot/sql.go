package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// dialect carries the statements that differ between drivers.
type dialect struct {
	driver string
	schema string
	upsert string
	read   string
	stat   string
	// timestamps are stored natively by postgres and as unix millis by sqlite.
	millis bool
}

var postgresDialect = dialect{
	driver: "postgres",
	schema: `
	CREATE TABLE IF NOT EXISTS handler_snapshots (
		name TEXT PRIMARY KEY,
		data BYTEA NOT NULL,
		size INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	upsert: `
		INSERT INTO handler_snapshots (name, data, size, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			data = EXCLUDED.data,
			size = EXCLUDED.size,
			updated_at = EXCLUDED.updated_at`,
	read: `SELECT data FROM handler_snapshots WHERE name = $1`,
	stat: `SELECT size, updated_at FROM handler_snapshots WHERE name = $1`,
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: `
	CREATE TABLE IF NOT EXISTS handler_snapshots (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		size INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	upsert: `
		INSERT INTO handler_snapshots (name, data, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			updated_at = excluded.updated_at`,
	read:   `SELECT data FROM handler_snapshots WHERE name = ?`,
	stat:   `SELECT size, updated_at FROM handler_snapshots WHERE name = ?`,
	millis: true,
}

// SQLStore keeps snapshots in a handler_snapshots table, one row per
// handler. Each write is a single upsert, so a reader never sees a partial
// payload.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// NewPostgresStore connects to PostgreSQL and creates the table if missing.
func NewPostgresStore(ctx context.Context, connectionString string) (*SQLStore, error) {
	return openSQLStore(ctx, postgresDialect, connectionString)
}

// NewSQLiteStore opens (or creates) a SQLite database file.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	s, err := openSQLStore(ctx, sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	// One writer at a time keeps SQLite away from SQLITE_BUSY.
	s.db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=10000", "PRAGMA synchronous=NORMAL"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("snapshot: %s: %w", pragma, err)
		}
	}
	return s, nil
}

func openSQLStore(ctx context.Context, d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot: ping %s: %w", d.driver, err)
	}
	s := &SQLStore{db: db, dialect: d, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("snapshot: sql store ready", "driver", d.driver)
	return s, nil
}

// NewSQLStoreFromDB wraps an already open SQLite handle. Used by tests.
func NewSQLStoreFromDB(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: sqliteDialect, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("snapshot: create schema: %w", err)
	}
	return nil
}

func (s *SQLStore) Write(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	var updatedAt any = s.now().UTC()
	if s.dialect.millis {
		updatedAt = s.now().UnixMilli()
	}
	if data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsert, name, data, len(data), updatedAt); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.read, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", name, err)
	}
	return data, nil
}

func (s *SQLStore) Stat(ctx context.Context, name string) (Info, error) {
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	info := Info{Name: name}
	row := s.db.QueryRowContext(ctx, s.dialect.stat, name)

	var err error
	if s.dialect.millis {
		var ms int64
		err = row.Scan(&info.Size, &ms)
		info.UpdatedAt = time.UnixMilli(ms)
	} else {
		err = row.Scan(&info.Size, &info.UpdatedAt)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: stat %s: %w", name, err)
	}
	return info, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ interface {
	Store
	Stater
} = (*SQLStore)(nil)
