// Package snapshot persists the most recent raw snapshot of every handler.
// The bytes are opaque here; they are parsed again on the next start to
// bootstrap the handler's state.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNotFound is returned by Read when no snapshot was ever written.
var ErrNotFound = errors.New("snapshot: not found")

// Store holds one raw snapshot per handler name.
type Store interface {
	Write(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// Info describes a stored snapshot without its payload.
type Info struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stater is implemented by stores that can describe a snapshot cheaply.
type Stater interface {
	Stat(ctx context.Context, name string) (Info, error)
}

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName rejects names that could escape the file store directory or
// are otherwise unusable as keys.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("snapshot: invalid handler name %q", name)
	}
	return nil
}
