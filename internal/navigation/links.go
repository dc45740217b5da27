// Package navigation turns an access matrix into page directives: which
// links to disable and how the form's submit buttons behave.
package navigation

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/dyluth/ldew/pkg/clinical"
)

// LinkID identifies one data entry link on the dashboard or record home page.
type LinkID struct {
	Record string
	Event  string
	Form   string
}

// Selector returns the CSS selector that matches the link. Links are matched
// on the query fragment the host puts in every data entry URL.
func (l LinkID) Selector() string {
	return fmt.Sprintf(`a[href*="&id=%s&page=%s&event_id=%s"]`,
		url.QueryEscape(l.Record), url.QueryEscape(l.Form), url.QueryEscape(l.Event))
}

// LinkSet is an unordered set of links to dim and make inert.
type LinkSet map[LinkID]struct{}

// Add inserts a link; duplicates collapse.
func (s LinkSet) Add(l LinkID) {
	s[l] = struct{}{}
}

// Has reports whether the link is in the set.
func (s LinkSet) Has(l LinkID) bool {
	_, ok := s[l]
	return ok
}

// Selectors returns the selectors of every link, sorted so payloads are stable.
func (s LinkSet) Selectors() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l.Selector())
	}
	sort.Strings(out)
	return out
}

// DisabledLinks collects the denied links of the given records within arm.
// With no records, every record in the matrix is used (dashboard view).
func DisabledLinks(m clinical.AccessMatrix, arm *clinical.Arm, records ...string) LinkSet {
	set := make(LinkSet)
	if len(records) == 0 {
		records = m.Records()
	}

	for _, record := range records {
		for _, ev := range arm.Events {
			for _, form := range ev.Forms {
				if m.Denied(record, ev.ID, form) {
					set.Add(LinkID{Record: record, Event: ev.ID, Form: form})
				}
			}
		}
	}
	return set
}
