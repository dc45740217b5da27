package clinical

import (
	"fmt"
	"sort"
	"strings"
)

// CompletionStatus is the value of a form's "<form>_complete" field.
type CompletionStatus string

const (
	// StatusIncomplete is the red status: data entry started but not finished
	StatusIncomplete CompletionStatus = "0"

	// StatusUnverified is the yellow status: entered but not verified
	StatusUnverified CompletionStatus = "1"

	// StatusComplete is the green status and the only one that satisfies the gate
	StatusComplete CompletionStatus = "2"

	// StatusEmpty means the form has never been saved
	StatusEmpty CompletionStatus = ""
)

// Validate checks if the CompletionStatus is a valid enum value.
func (s CompletionStatus) Validate() error {
	switch s {
	case StatusIncomplete, StatusUnverified, StatusComplete, StatusEmpty:
		return nil
	default:
		return fmt.Errorf("unknown completion status: %q", s)
	}
}

// String returns the human-readable name of the status.
func (s CompletionStatus) String() string {
	switch s {
	case StatusIncomplete:
		return "incomplete"
	case StatusUnverified:
		return "unverified"
	case StatusComplete:
		return "complete"
	case StatusEmpty:
		return "empty"
	default:
		return string(s)
	}
}

// ParseStatus accepts either the stored code ("0", "1", "2", "") or the
// status name ("incomplete", "unverified", "complete", "empty").
func ParseStatus(s string) (CompletionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "incomplete":
		return StatusIncomplete, nil
	case "1", "unverified":
		return StatusUnverified, nil
	case "2", "complete":
		return StatusComplete, nil
	case "", "empty":
		return StatusEmpty, nil
	default:
		return "", fmt.Errorf("unknown completion status: %q (use 0/1/2, incomplete/unverified/complete or empty)", s)
	}
}

// CompleteField returns the host's completion field name for a form.
func CompleteField(form string) string {
	return form + "_complete"
}

// Event is a scheduled point within an arm. Forms are kept in declared order,
// which is the order of the gating chain.
type Event struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Forms []string `json:"forms"`
}

// HasForm reports whether the form is assigned to this event.
func (e *Event) HasForm(form string) bool {
	return e.position(form) >= 0
}

// NextForm returns the form declared right after form in this event.
// Returns ("", false) if form is the last one or is not assigned here.
func (e *Event) NextForm(form string) (string, bool) {
	i := e.position(form)
	if i < 0 || i+1 >= len(e.Forms) {
		return "", false
	}
	return e.Forms[i+1], true
}

func (e *Event) position(form string) int {
	for i, f := range e.Forms {
		if f == form {
			return i
		}
	}
	return -1
}

// Arm is an ordered timeline of events. A record is enrolled in exactly one arm.
type Arm struct {
	Name   string  `json:"name"`
	Events []Event `json:"events"`
}

// Event returns the event with the given ID.
func (a *Arm) Event(id string) (*Event, bool) {
	for i := range a.Events {
		if a.Events[i].ID == id {
			return &a.Events[i], true
		}
	}
	return nil, false
}

// HasForm reports whether (event, form) belongs to this arm.
func (a *Arm) HasForm(eventID, form string) bool {
	ev, ok := a.Event(eventID)
	return ok && ev.HasForm(form)
}

// Forms returns every form assigned to any event of the arm, deduplicated,
// in first-seen order.
func (a *Arm) Forms() []string {
	seen := make(map[string]bool)
	var forms []string
	for _, ev := range a.Events {
		for _, f := range ev.Forms {
			if !seen[f] {
				seen[f] = true
				forms = append(forms, f)
			}
		}
	}
	return forms
}

// PreviousEventWithForm walks back from eventID and returns the closest
// earlier event that also carries form.
func (a *Arm) PreviousEventWithForm(eventID, form string) (*Event, bool) {
	idx := -1
	for i := range a.Events {
		if a.Events[i].ID == eventID {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if a.Events[i].HasForm(form) {
			return &a.Events[i], true
		}
	}
	return nil, false
}

// FormSet is an unordered set of form names (or any other names, such as roles).
type FormSet map[string]struct{}

// NewFormSet builds a set from the given names. Empty names are ignored.
func NewFormSet(names ...string) FormSet {
	s := make(FormSet, len(names))
	for _, n := range names {
		if n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports whether name is in the set. A nil set contains nothing.
func (s FormSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s FormSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// FormState is the completion state of one form in one event of one record.
type FormState struct {
	Status    CompletionStatus         `json:"status"`
	HasStatus bool                     `json:"has_status"`
	Instances map[int]CompletionStatus `json:"instances,omitempty"`
}

// Completed reports whether the form satisfies the gate.
// Repeating forms need every instance complete. With no instances the single
// status decides, and a form that was never saved is not complete.
func (f FormState) Completed() bool {
	if len(f.Instances) > 0 {
		for _, st := range f.Instances {
			if st != StatusComplete {
				return false
			}
		}
		return true
	}
	return f.HasStatus && f.Status == StatusComplete
}

// RecordData holds completion state for one record: event -> form -> state.
type RecordData struct {
	Record string                          `json:"record"`
	Events map[string]map[string]FormState `json:"events"`
}

// NewRecordData returns an empty record, which behaves as a fresh record with
// every form incomplete.
func NewRecordData(record string) *RecordData {
	return &RecordData{
		Record: record,
		Events: make(map[string]map[string]FormState),
	}
}

// Form returns the state of (event, form). Unknown entries are zero-valued.
func (r *RecordData) Form(eventID, form string) FormState {
	if r == nil {
		return FormState{}
	}
	return r.Events[eventID][form]
}

// Empty reports whether the record carries no completion data at all.
func (r *RecordData) Empty() bool {
	return r == nil || len(r.Events) == 0
}

func (r *RecordData) state(eventID, form string) FormState {
	forms, ok := r.Events[eventID]
	if !ok {
		forms = make(map[string]FormState)
		r.Events[eventID] = forms
	}
	return forms[form]
}

// SetStatus records the single (non-repeating) status of a form.
func (r *RecordData) SetStatus(eventID, form string, status CompletionStatus) {
	st := r.state(eventID, form)
	st.Status = status
	st.HasStatus = true
	r.Events[eventID][form] = st
}

// SetInstanceStatus records the status of one repeat instance.
func (r *RecordData) SetInstanceStatus(eventID, form string, instance int, status CompletionStatus) {
	st := r.state(eventID, form)
	if st.Instances == nil {
		st.Instances = make(map[int]CompletionStatus)
	}
	st.Instances[instance] = status
	r.Events[eventID][form] = st
}

// AccessMatrix maps record -> event -> form -> denied.
// Only denied entries are stored; absent entries are allowed.
type AccessMatrix map[string]map[string]map[string]bool

// Denied reports whether access to (record, event, form) is denied.
func (m AccessMatrix) Denied(record, eventID, form string) bool {
	return m[record][eventID][form]
}

// Deny marks (record, event, form) as denied.
func (m AccessMatrix) Deny(record, eventID, form string) {
	events, ok := m[record]
	if !ok {
		events = make(map[string]map[string]bool)
		m[record] = events
	}
	forms, ok := events[eventID]
	if !ok {
		forms = make(map[string]bool)
		events[eventID] = forms
	}
	forms[form] = true
}

// Merge adds every denial of other into m. Denials are never reverted.
func (m AccessMatrix) Merge(other AccessMatrix) {
	for record, events := range other {
		for eventID, forms := range events {
			for form, denied := range forms {
				if denied {
					m.Deny(record, eventID, form)
				}
			}
		}
	}
}

// Records returns the records that have at least one denial, sorted.
func (m AccessMatrix) Records() []string {
	out := make([]string, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// StatusEvent is published whenever a completion status is written.
type StatusEvent struct {
	Record      string           `json:"record"`
	Event       string           `json:"event"`
	Form        string           `json:"form"`
	Instance    int              `json:"instance,omitempty"` // 0 for non-repeating forms
	Status      CompletionStatus `json:"status"`
	ChangedAtMs int64            `json:"changed_at_ms"`
}
