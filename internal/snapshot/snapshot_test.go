package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Force single connection so every query sees the same in-memory db.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLStoreFromDB(context.Background(), db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, s interface {
	Store
	Stater
}) {
	ctx := context.Background()

	if _, err := s.Read(ctx, "wgzimmer"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("read before write: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Stat(ctx, "wgzimmer"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stat before write: expected ErrNotFound, got %v", err)
	}

	first := []byte("<html>first</html>")
	if err := s.Write(ctx, "wgzimmer", first); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read(ctx, "wgzimmer")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("read: got %q", got)
	}

	second := []byte("<html>second, longer payload</html>")
	if err := s.Write(ctx, "wgzimmer", second); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Read(ctx, "wgzimmer")
	if !bytes.Equal(got, second) {
		t.Errorf("overwrite: got %q", got)
	}

	info, err := s.Stat(ctx, "wgzimmer")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != len(second) || info.UpdatedAt.IsZero() {
		t.Errorf("stat: %+v", info)
	}

	// Names are independent keys.
	if _, err := s.Read(ctx, "other"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other handler: expected ErrNotFound, got %v", err)
	}

	if err := s.Write(ctx, "../escape", []byte("x")); err == nil {
		t.Error("expected invalid name to be rejected")
	}
}

func TestFileStoreContract(t *testing.T) {
	storeContract(t, testFileStore(t))
}

func TestSQLiteStoreContract(t *testing.T) {
	storeContract(t, testSQLite(t))
}

func TestSQLiteStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomwatch.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, "feed", []byte("payload")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Read(ctx, "feed")
	if err != nil || string(got) != "payload" {
		t.Fatalf("after reopen: %q, %v", got, err)
	}
}

func TestPostgresStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM handler_snapshots WHERE name IN ('wgzimmer', 'other')`); err != nil {
		t.Fatal(err)
	}
	storeContract(t, s)
}

func TestFileStoreLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Write(context.Background(), "wgzimmer", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "wgzimmer.handlerData")); err != nil {
		t.Errorf("expected wgzimmer.handlerData: %v", err)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	s := testFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Write(ctx, "wgzimmer", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := s.Read(context.Background(), "wgzimmer"); !errors.Is(err, ErrNotFound) {
		t.Error("cancelled write must not create a snapshot")
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"wgzimmer", "feed-1", "a.b_c"} {
		if err := ValidateName(ok); err != nil {
			t.Errorf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../x", "a/b", ".hidden", "with space"} {
		if err := ValidateName(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}
