// Package region maps free-text locality strings onto canonical region
// names (Swiss cantons in practice) using an exact-then-substring lookup
// over a locality dataset.
package region

import (
	"log/slog"

	"github.com/deusflow/roomwatch/internal/cache"
)

// Resolver resolves localities against an immutable Table.
type Resolver struct {
	table  *Table
	memo   *cache.Cache[string]
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used while loading the dataset.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithCache memoizes results per normalized locality. Absent results are
// memoized as "".
func WithCache(c *cache.Cache[string]) Option {
	return func(r *Resolver) { r.memo = c }
}

// New loads the dataset at path. If it cannot be loaded the resolver runs
// on an empty table and every locality resolves to absent.
func New(path string, opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}

	t, err := LoadTable(path, r.logger)
	if err != nil {
		r.logger.Warn("region: dataset unavailable, resolving nothing", "path", path, "error", err)
		t = NewTable(nil)
	} else {
		r.logger.Info("region: dataset loaded", "path", path, "localities", t.Len())
	}
	r.table = t
	return r
}

// NewWithTable builds a resolver on an existing table.
func NewWithTable(t *Table, opts ...Option) *Resolver {
	r := &Resolver{table: t, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	if r.table == nil {
		r.table = NewTable(nil)
	}
	return r
}

// Resolve returns the region for locality, or ok=false when nothing in the
// table matches. Lookup order: exact locality, locality containing a table
// key, locality containing a region name.
func (r *Resolver) Resolve(locality string) (region string, ok bool) {
	key := Normalize(locality)
	if key == "" {
		return "", false
	}
	if r.memo != nil {
		if v, hit := r.memo.Get(key); hit {
			return v, v != ""
		}
	}
	region, ok = r.table.lookup(key)
	if r.memo != nil {
		r.memo.Set(key, region)
	}
	return region, ok
}

// Display returns the human-readable name of a region returned by Resolve.
// Comparisons should use the normalized form; Display is for presentation.
func (r *Resolver) Display(region string) string { return r.table.Display(region) }

// Size returns the number of localities known to the resolver.
func (r *Resolver) Size() int { return r.table.Len() }
