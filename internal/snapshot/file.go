package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const fileSuffix = ".handlerData"

// FileStore keeps each snapshot in <dir>/<name>.handlerData.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileSuffix)
}

// Write replaces the snapshot atomically: the payload goes to a temp file
// in the same directory which is synced, closed and renamed over the old
// one. A failed write leaves the previous snapshot intact.
func (s *FileStore) Write(ctx context.Context, name string, data []byte) (err error) {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", name, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("snapshot: sync %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close %s: %w", name, err)
	}
	if err = os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("snapshot: rename %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) Stat(ctx context.Context, name string) (Info, error) {
	if err := ValidateName(name); err != nil {
		return Info{}, err
	}
	st, err := os.Stat(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return Info{}, ErrNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("snapshot: stat %s: %w", name, err)
	}
	return Info{Name: name, Size: int(st.Size()), UpdatedAt: st.ModTime()}, nil
}

func (s *FileStore) Close() error { return nil }

var _ interface {
	Store
	Stater
} = (*FileStore)(nil)
