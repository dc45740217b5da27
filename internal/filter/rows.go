// Package filter narrows matrix rows for display.
package filter

import (
	"path/filepath"

	"github.com/dyluth/ldew/internal/matrixfmt"
)

// Criteria defines filtering criteria for matrix rows.
// All filters are ANDed together - a row must match ALL criteria to pass.
type Criteria struct {
	EventGlob  string // Glob pattern for event ID, empty = no filter
	FormGlob   string // Glob pattern for form name, empty = no filter
	DeniedOnly bool
}

// Validate rejects malformed glob patterns.
func (c *Criteria) Validate() error {
	for _, p := range []string{c.EventGlob, c.FormGlob} {
		if p == "" {
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			return err
		}
	}
	return nil
}

// Matches returns true if the row matches all filter criteria.
func (c *Criteria) Matches(r matrixfmt.Row) bool {
	if c.DeniedOnly && !r.Denied {
		return false
	}
	if c.EventGlob != "" {
		if matched, err := filepath.Match(c.EventGlob, r.Event); err != nil || !matched {
			return false
		}
	}
	if c.FormGlob != "" {
		if matched, err := filepath.Match(c.FormGlob, r.Form); err != nil || !matched {
			return false
		}
	}
	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.EventGlob != "" || c.FormGlob != "" || c.DeniedOnly
}

// Apply returns the rows that match, preserving order.
func (c *Criteria) Apply(rows []matrixfmt.Row) []matrixfmt.Row {
	if !c.HasFilters() {
		return rows
	}
	out := make([]matrixfmt.Row, 0, len(rows))
	for _, r := range rows {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
