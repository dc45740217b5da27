// Package watch streams completion status changes and polls for a form to
// reach a given status.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/ldew/pkg/clinical"
)

// OutputFormat selects how events are printed.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// Subscriber opens a status event subscription. *clinical.Client satisfies it.
type Subscriber interface {
	SubscribeStatusEvents(ctx context.Context) (*clinical.Subscription, error)
}

// StatusReader reads completion state. *clinical.Client satisfies it.
type StatusReader interface {
	FetchCompletion(ctx context.Context, records []string, forms []string) (map[string]*clinical.RecordData, error)
}

type formatter interface {
	FormatStatus(evt *clinical.StatusEvent) error
}

func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault, "":
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{writer: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// StreamStatusEvents writes every status change to w until ctx is cancelled.
// Malformed events are reported to w and skipped.
func StreamStatusEvents(ctx context.Context, sub Subscriber, format OutputFormat, w io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	subscription, err := sub.SubscribeStatusEvents(ctx)
	if err != nil {
		return err
	}
	defer subscription.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-subscription.Events():
			if !ok {
				return nil
			}
			if err := f.FormatStatus(evt); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}

		case err, ok := <-subscription.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "⚠️  %v\n", err)
		}
	}
}

// PollForStatus polls until (record, event, form) reaches want, checking
// every 200ms. Repeating forms match only when every instance has want.
func PollForStatus(ctx context.Context, reader StatusReader, record, eventID, form string, want clinical.CompletionStatus, timeout time.Duration) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timeoutCh:
			return fmt.Errorf("timeout waiting for %s/%s to become %s after %v", eventID, form, want, timeout)

		case <-ticker.C:
			data, err := reader.FetchCompletion(ctx, []string{record}, []string{form})
			if err != nil {
				return fmt.Errorf("failed to query completion: %w", err)
			}
			if hasStatus(data[record].Form(eventID, form), want) {
				return nil
			}
		}
	}
}

func hasStatus(state clinical.FormState, want clinical.CompletionStatus) bool {
	if len(state.Instances) > 0 {
		for _, st := range state.Instances {
			if st != want {
				return false
			}
		}
		return true
	}
	return state.HasStatus && state.Status == want
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatStatus(evt *clinical.StatusEvent) error {
	ts := time.UnixMilli(evt.ChangedAtMs).Format("15:04:05")

	icon := "📝"
	if evt.Status == clinical.StatusComplete {
		icon = "✅"
	}

	instance := ""
	if evt.Instance > 0 {
		instance = fmt.Sprintf(" instance=%d", evt.Instance)
	}

	_, err := fmt.Fprintf(f.writer, "[%s] %s Status changed: record=%s event=%s form=%s%s status=%s\n",
		ts, icon, evt.Record, evt.Event, evt.Form, instance, evt.Status)
	return err
}

type jsonFormatter struct {
	writer io.Writer
}

func (f *jsonFormatter) FormatStatus(evt *clinical.StatusEvent) error {
	out := struct {
		Type string `json:"type"`
		*clinical.StatusEvent
	}{Type: "status_changed", StatusEvent: evt}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}
