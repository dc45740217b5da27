package clinical

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis hashes are flat string-to-string maps, so the event, form and
// instance coordinates are folded into the hash field name.

// StatusField returns the status hash field for (event, form).
// Format: {event}:{form}_complete
func StatusField(eventID, form string) string {
	return eventID + ":" + CompleteField(form)
}

// ParseStatusField splits a status hash field into event and form.
func ParseStatusField(field string) (eventID, form string, err error) {
	eventID, rest, ok := strings.Cut(field, ":")
	if !ok || eventID == "" {
		return "", "", fmt.Errorf("malformed status field: %q", field)
	}
	form, ok = strings.CutSuffix(rest, "_complete")
	if !ok || form == "" {
		return "", "", fmt.Errorf("malformed status field: %q", field)
	}
	return eventID, form, nil
}

// RepeatField returns the repeat hash field for one instance of (event, form).
// Format: {event}:{form}_complete:{instance}
func RepeatField(eventID, form string, instance int) string {
	return StatusField(eventID, form) + ":" + strconv.Itoa(instance)
}

// ParseRepeatField splits a repeat hash field into event, form and instance.
func ParseRepeatField(field string) (eventID, form string, instance int, err error) {
	i := strings.LastIndex(field, ":")
	if i < 0 {
		return "", "", 0, fmt.Errorf("malformed repeat field: %q", field)
	}
	instance, err = strconv.Atoi(field[i+1:])
	if err != nil || instance < 1 {
		return "", "", 0, fmt.Errorf("malformed repeat field %q: invalid instance", field)
	}
	eventID, form, err = ParseStatusField(field[:i])
	if err != nil {
		return "", "", 0, err
	}
	return eventID, form, instance, nil
}

// DataField returns the data hash field for a field value.
// Format: {event}:{instance}:{field}
func DataField(eventID string, instance int, field string) string {
	if instance < 1 {
		instance = 1
	}
	return fmt.Sprintf("%s:%d:%s", eventID, instance, field)
}

// LockMember returns the lock set member for a form instance.
// Format: {event}:{form}:{instance}
func LockMember(eventID, form string, instance int) string {
	if instance < 1 {
		instance = 1
	}
	return fmt.Sprintf("%s:%s:%d", eventID, form, instance)
}

// ConflictMember returns the conflict set member for (event, form).
// Format: {event}:{form}
func ConflictMember(eventID, form string) string {
	return eventID + ":" + form
}

// HashesToRecordData builds a RecordData from the status and repeat hashes.
// Fields for forms outside the forms filter are dropped; a nil filter keeps
// everything. Malformed fields and invalid statuses are reported as errors.
func HashesToRecordData(record string, status, repeat map[string]string, forms FormSet) (*RecordData, error) {
	data := NewRecordData(record)

	for field, value := range status {
		eventID, form, err := ParseStatusField(field)
		if err != nil {
			return nil, err
		}
		if forms != nil && !forms.Has(form) {
			continue
		}
		st := CompletionStatus(value)
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("record %s field %s: %w", record, field, err)
		}
		data.SetStatus(eventID, form, st)
	}

	for field, value := range repeat {
		eventID, form, instance, err := ParseRepeatField(field)
		if err != nil {
			return nil, err
		}
		if forms != nil && !forms.Has(form) {
			continue
		}
		st := CompletionStatus(value)
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("record %s field %s: %w", record, field, err)
		}
		data.SetInstanceStatus(eventID, form, instance, st)
	}

	return data, nil
}
