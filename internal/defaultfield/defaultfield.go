// Package defaultfield pre-fills empty fields with the value of another
// field of the same record. A field opts in with the @DEFAULT-FROM-FIELD
// action tag in its annotation:
//
//	@DEFAULT-FROM-FIELD='screening_weight'
//
// Defaults are suggestions for the page. Nothing is written to the store;
// the page fills an input only while it is still empty.
package defaultfield

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dyluth/ldew/internal/fdec"
	"github.com/dyluth/ldew/pkg/clinical"
)

// ActionTag marks a field whose default comes from another field.
const ActionTag = "@DEFAULT-FROM-FIELD"

// tagPattern accepts single-quoted, double-quoted and bare field names.
var tagPattern = regexp.MustCompile(`@DEFAULT-FROM-FIELD\s*=\s*(?:'([a-z0-9_]+)'|"([a-z0-9_]+)"|([a-z0-9_]+))`)

// Rule maps a field to the field its default is read from.
type Rule struct {
	Field  string `json:"field"`
	Source string `json:"source"`
}

// SourceField returns the source field named by an annotation's action tag.
func SourceField(annotation string) (string, bool) {
	m := tagPattern.FindStringSubmatch(annotation)
	if m == nil {
		return "", false
	}
	for _, name := range m[1:] {
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// ParseRules collects the rules declared on fields, in field order.
// A field that names itself is ignored.
func ParseRules(fields []fdec.Field) []Rule {
	var rules []Rule
	for _, f := range fields {
		source, ok := SourceField(f.Annotation)
		if !ok || source == f.Name {
			continue
		}
		rules = append(rules, Rule{Field: f.Name, Source: source})
	}
	return rules
}

// Store reads field values.
// GetFieldValue reports a never-written value with an error for which
// IsNotFound returns true.
type Store interface {
	GetFieldValue(ctx context.Context, record, eventID string, instance int, field string) (string, error)
}

// Default is a value the page pre-fills.
type Default struct {
	Field  string `json:"field"`
	Source string `json:"source"`
	Value  string `json:"value"`
}

// Filler resolves defaults from stored values.
type Filler struct {
	store      Store
	isNotFound func(error) bool
}

// NewFiller creates a filler.
func NewFiller(store Store) *Filler {
	return &Filler{store: store, isNotFound: clinical.IsNotFound}
}

// Defaults returns a Default for each rule whose field is empty and whose
// source has a value. Both are read from the same event and instance.
func (f *Filler) Defaults(ctx context.Context, record, eventID string, instance int, fields []fdec.Field) ([]Default, error) {
	var out []Default
	for _, rule := range ParseRules(fields) {
		current, err := f.value(ctx, record, eventID, instance, rule.Field)
		if err != nil {
			return nil, err
		}
		if current != "" {
			continue
		}

		source, err := f.value(ctx, record, eventID, instance, rule.Source)
		if err != nil {
			return nil, err
		}
		if source == "" {
			continue
		}

		out = append(out, Default{Field: rule.Field, Source: rule.Source, Value: source})
	}
	return out, nil
}

func (f *Filler) value(ctx context.Context, record, eventID string, instance int, field string) (string, error) {
	v, err := f.store.GetFieldValue(ctx, record, eventID, instance, field)
	if err != nil {
		if f.isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s in event %s: %w", field, eventID, err)
	}
	return v, nil
}
