// Package matrixfmt renders access matrices for the CLI.
package matrixfmt

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dyluth/ldew/pkg/clinical"
)

// Row is one (record, event, form) cell of an access matrix.
type Row struct {
	Record    string                    `json:"record"`
	Event     string                    `json:"event"`
	Form      string                    `json:"form"`
	Status    clinical.CompletionStatus `json:"status"`
	Instances int                       `json:"instances,omitempty"`
	Exception bool                      `json:"exception,omitempty"`
	Denied    bool                      `json:"denied"`
}

// Rows flattens the matrix in arm order for each record. data supplies the
// completion status column and may be nil.
func Rows(m clinical.AccessMatrix, arm *clinical.Arm, data map[string]*clinical.RecordData, exceptions clinical.FormSet, records ...string) []Row {
	if len(records) == 0 {
		records = m.Records()
	}

	var rows []Row
	for _, record := range records {
		rd := data[record]
		for _, ev := range arm.Events {
			for _, form := range ev.Forms {
				state := rd.Form(ev.ID, form)
				rows = append(rows, Row{
					Record:    record,
					Event:     ev.ID,
					Form:      form,
					Status:    state.Status,
					Instances: len(state.Instances),
					Exception: exceptions.Has(form),
					Denied:    m.Denied(record, ev.ID, form),
				})
			}
		}
	}
	return rows
}

// FormatTable writes rows as a formatted table to the provided writer.
// Returns the number of denied rows.
func FormatTable(w io.Writer, rows []Row, project string) int {
	if len(rows) == 0 {
		fmt.Fprintf(w, "No records found for project '%s'\n", project)
		return 0
	}

	fmt.Fprintf(w, "Access matrix for project '%s':\n\n", project)

	fmt.Fprintf(w, "%-12s %-16s %-24s %-12s %s\n",
		"RECORD", "EVENT", "FORM", "STATUS", "ACCESS")
	fmt.Fprintf(w, "%-12s %-16s %-24s %-12s %s\n",
		"------------", "----------------", "------------------------", "------------", "------")

	denied := 0
	for _, r := range rows {
		if r.Denied {
			denied++
		}
		fmt.Fprintf(w, "%-12s %-16s %-24s %-12s %s\n",
			truncate(r.Record, 12),
			truncate(r.Event, 16),
			formatForm(r),
			formatStatus(r),
			formatAccess(r.Denied),
		)
	}

	noun := "form"
	if len(rows) != 1 {
		noun = "forms"
	}
	fmt.Fprintf(w, "\n%d %s, %d denied\n", len(rows), noun, denied)

	return denied
}

// FormatJSONL writes rows as line-delimited JSON (JSONL), one object per line.
func FormatJSONL(w io.Writer, rows []Row) error {
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal row to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatForm marks exception forms with a trailing asterisk.
func formatForm(r Row) string {
	name := r.Form
	if r.Exception {
		name += "*"
	}
	return truncate(name, 24)
}

// formatStatus shows the status name, or the instance count for repeating forms.
func formatStatus(r Row) string {
	if r.Instances > 0 {
		return fmt.Sprintf("%d inst", r.Instances)
	}
	if r.Status == clinical.StatusEmpty {
		return "-"
	}
	return r.Status.String()
}

func formatAccess(denied bool) string {
	if denied {
		return "denied"
	}
	return "ok"
}
