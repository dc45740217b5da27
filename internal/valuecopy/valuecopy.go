// Package valuecopy pre-fills a field with the value it had in the previous
// event that carries the same form.
package valuecopy

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/ldew/pkg/clinical"
)

// Store reads and writes field values.
// GetFieldValue reports a never-written value with an error for which
// IsNotFound returns true.
type Store interface {
	GetFieldValue(ctx context.Context, record, eventID string, instance int, field string) (string, error)
	SetFieldValue(ctx context.Context, record, eventID string, instance int, field, value string) error
}

// Result describes a copy that happened.
type Result struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	SourceEvent string `json:"sourceEvent"`
}

// Copier copies configured fields between events.
type Copier struct {
	store      Store
	mapping    map[string]string // form -> field
	isNotFound func(error) bool
}

// NewCopier creates a copier for the form -> field mapping.
func NewCopier(store Store, mapping map[string]string) *Copier {
	return &Copier{
		store:      store,
		mapping:    mapping,
		isNotFound: clinical.IsNotFound,
	}
}

// Applies reports whether form has a configured field.
func (c *Copier) Applies(form string) bool {
	_, ok := c.mapping[form]
	return ok
}

// Copy fills the configured field of form in (record, event, instance) from
// the closest earlier event that carries the same form. It only writes when
// the current value is empty and the source value is not, so a value is
// copied at most once. Returns nil when nothing was copied.
func (c *Copier) Copy(ctx context.Context, arm *clinical.Arm, record, eventID, form string, instance int) (*Result, error) {
	field, ok := c.mapping[form]
	if !ok {
		return nil, nil
	}

	prev, ok := arm.PreviousEventWithForm(eventID, form)
	if !ok {
		return nil, nil
	}

	current, err := c.value(ctx, record, eventID, instance, field)
	if err != nil {
		return nil, err
	}
	if current != "" {
		return nil, nil
	}

	source, err := c.value(ctx, record, prev.ID, 1, field)
	if err != nil {
		return nil, err
	}
	if source == "" {
		return nil, nil
	}

	if err := c.store.SetFieldValue(ctx, record, eventID, instance, field, source); err != nil {
		return nil, fmt.Errorf("failed to copy %s into event %s: %w", field, eventID, err)
	}

	log.Printf("[ValueCopy] Copied '%s' for record '%s' from event '%s' to '%s'", field, record, prev.ID, eventID)
	return &Result{Field: field, Value: source, SourceEvent: prev.ID}, nil
}

func (c *Copier) value(ctx context.Context, record, eventID string, instance int, field string) (string, error) {
	v, err := c.store.GetFieldValue(ctx, record, eventID, instance, field)
	if err != nil {
		if c.isNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s in event %s: %w", field, eventID, err)
	}
	return v, nil
}
