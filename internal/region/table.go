package region

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Pair is one raw (locality, region) row of the dataset.
type Pair struct {
	Locality string
	Region   string
}

// Table maps normalized localities to normalized region names. It is
// immutable once built.
type Table struct {
	mapping map[string]string
	// display maps a normalized region to its name as first spelled in the
	// dataset.
	display map[string]string
	// keys and values are in scan order: longest first, then lexicographic.
	keys   []string
	values []string
}

// NewTable normalizes pairs into a table. Pairs with an empty side are
// dropped. A later duplicate locality overrides an earlier one.
func NewTable(pairs []Pair) *Table {
	t := &Table{
		mapping: make(map[string]string, len(pairs)),
		display: make(map[string]string),
	}
	for _, p := range pairs {
		k, v := Normalize(p.Locality), Normalize(p.Region)
		if k == "" || v == "" {
			continue
		}
		t.mapping[k] = v
		if _, ok := t.display[v]; !ok {
			t.display[v] = strings.Join(strings.Fields(p.Region), " ")
		}
	}

	seen := make(map[string]bool)
	for k, v := range t.mapping {
		t.keys = append(t.keys, k)
		if !seen[v] {
			seen[v] = true
			t.values = append(t.values, v)
		}
	}
	sortScanOrder(t.keys)
	sortScanOrder(t.values)
	return t
}

func sortScanOrder(s []string) {
	sort.Slice(s, func(i, j int) bool {
		if len(s[i]) != len(s[j]) {
			return len(s[i]) > len(s[j])
		}
		return s[i] < s[j]
	})
}

// Len returns the number of localities.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.mapping)
}

// Display returns the dataset spelling of a normalized region, or region
// itself when the table does not know it.
func (t *Table) Display(region string) string {
	if t != nil {
		if d, ok := t.display[region]; ok {
			return d
		}
	}
	return region
}

// lookup runs the resolution order on an already normalized locality.
func (t *Table) lookup(locality string) (string, bool) {
	if t == nil || locality == "" {
		return "", false
	}
	if v, ok := t.mapping[locality]; ok {
		return v, true
	}
	for _, k := range t.keys {
		if strings.Contains(locality, k) {
			return t.mapping[k], true
		}
	}
	for _, v := range t.values {
		if strings.Contains(locality, v) {
			return v, true
		}
	}
	return "", false
}

// ReadPairs parses the dataset: two comma-separated fields per line, no
// header. Malformed lines are reported to logger and skipped.
func ReadPairs(r io.Reader, logger *slog.Logger) ([]Pair, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var pairs []Pair
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return pairs, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				logger.Warn("region: skipping malformed line", "line", line, "error", err)
				continue
			}
			return nil, fmt.Errorf("region: read dataset: %w", err)
		}
		if len(row) < 2 {
			logger.Warn("region: skipping line without region", "line", line)
			continue
		}
		pairs = append(pairs, Pair{
			Locality: strings.TrimPrefix(row[0], "\ufeff"),
			Region:   row[1],
		})
	}
}

// LoadTable reads the dataset at path.
func LoadTable(path string, logger *slog.Logger) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("region: open dataset: %w", err)
	}
	defer f.Close()

	pairs, err := ReadPairs(f, logger)
	if err != nil {
		return nil, err
	}
	return NewTable(pairs), nil
}
