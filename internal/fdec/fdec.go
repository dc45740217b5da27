// Package fdec forces data entry constraints: a form cannot be saved with a
// non-bypass status while a visible required field is empty.
package fdec

import (
	"fmt"
	"strings"

	"github.com/dyluth/ldew/pkg/clinical"
)

// FieldKind is the host's field input type.
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindNotes       FieldKind = "notes"
	KindRadio       FieldKind = "radio"
	KindSelect      FieldKind = "select"
	KindCheckbox    FieldKind = "checkbox"
	KindYesNo       FieldKind = "yesno"
	KindTrueFalse   FieldKind = "truefalse"
	KindFile        FieldKind = "file"
	KindSlider      FieldKind = "slider"
	KindCalc        FieldKind = "calc"
	KindDescriptive FieldKind = "descriptive"
)

// Field is one entry of the form's field metadata.
type Field struct {
	Name       string    `json:"name"`
	Label      string    `json:"label"`
	Required   bool      `json:"required"`
	Kind       FieldKind `json:"kind"`
	Annotation string    `json:"annotation,omitempty"` // action tags
}

// enforceable reports whether a required flag on this field means anything.
// Calculated and descriptive fields take no user input.
func (f Field) enforceable() bool {
	return f.Required && f.Kind != KindCalc && f.Kind != KindDescriptive
}

func (f Field) displayName() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Settings is the payload the page script consumes.
type Settings struct {
	StatusesBypass         []string `json:"statusesBypass"`
	RequiredFieldsSelector string   `json:"requiredFieldsSelector"`
	Instrument             string   `json:"instrument"`
}

// BuildSettings packs the page payload for one form.
func BuildSettings(form string, fields []Field, bypass []clinical.CompletionStatus) Settings {
	statuses := make([]string, 0, len(bypass))
	for _, st := range bypass {
		statuses = append(statuses, string(st))
	}
	return Settings{
		StatusesBypass:         statuses,
		RequiredFieldsSelector: RequiredFieldsSelector(fields),
		Instrument:             form,
	}
}

// RequiredFieldsSelector matches the visible rows of every enforceable
// required field. Rows hidden by branching logic do not match.
func RequiredFieldsSelector(fields []Field) string {
	var parts []string
	for _, f := range fields {
		if f.enforceable() {
			parts = append(parts, fmt.Sprintf(`#questiontable tr[sq_id="%s"]:visible`, f.Name))
		}
	}
	return strings.Join(parts, ", ")
}

// Submission is a save attempt.
type Submission struct {
	Status clinical.CompletionStatus

	// Values holds each field's submitted value. Checkbox fields carry the
	// comma-separated checked codes, empty when nothing is checked.
	Values map[string]string

	// Visible lists the fields shown on the page. nil means all are shown.
	Visible map[string]bool
}

// Result is the outcome of a save attempt.
type Result struct {
	Allowed bool     `json:"allowed"`
	Missing []string `json:"missing,omitempty"` // labels, in form order
}

// Check blocks a save whose status is not a bypass status while a visible
// required field is empty.
func Check(fields []Field, bypass []clinical.CompletionStatus, sub Submission) Result {
	for _, st := range bypass {
		if st == sub.Status {
			return Result{Allowed: true}
		}
	}

	var missing []string
	for _, f := range fields {
		if !f.enforceable() {
			continue
		}
		if sub.Visible != nil && !sub.Visible[f.Name] {
			continue
		}
		if strings.TrimSpace(sub.Values[f.Name]) == "" {
			missing = append(missing, f.displayName())
		}
	}

	if len(missing) > 0 {
		return Result{Allowed: false, Missing: missing}
	}
	return Result{Allowed: true}
}
