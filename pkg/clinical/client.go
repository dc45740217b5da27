package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client provides project-scoped Redis operations for study data.
// All keys and channels are automatically namespaced with the project ID.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb     *redis.Client
	project string
}

// NewClient creates a new client for the specified project.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - project: project identifier (must not be empty)
//
// Returns an error if project is empty.
func NewClient(redisOpts *redis.Options, project string) (*Client, error) {
	if project == "" {
		return nil, fmt.Errorf("project cannot be empty")
	}

	return &Client{
		rdb:     redis.NewClient(redisOpts),
		project: project,
	}, nil
}

// Project returns the project namespace of this client.
func (c *Client) Project() string {
	return c.project
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetStatus writes the single-instance completion status of a form and
// publishes a StatusEvent. The record is added to the records index.
func (c *Client) SetStatus(ctx context.Context, record, eventID, form string, status CompletionStatus) error {
	return c.writeStatus(ctx, record, eventID, form, 0, status)
}

// SetInstanceStatus writes the completion status of one repeat instance
// (instance >= 1) and publishes a StatusEvent.
func (c *Client) SetInstanceStatus(ctx context.Context, record, eventID, form string, instance int, status CompletionStatus) error {
	if instance < 1 {
		return fmt.Errorf("invalid instance %d: must be >= 1", instance)
	}
	return c.writeStatus(ctx, record, eventID, form, instance, status)
}

func (c *Client) writeStatus(ctx context.Context, record, eventID, form string, instance int, status CompletionStatus) error {
	if record == "" || eventID == "" || form == "" {
		return fmt.Errorf("record, event and form are required")
	}
	if err := status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	if instance == 0 {
		pipe.HSet(ctx, StatusKey(c.project, record), StatusField(eventID, form), string(status))
	} else {
		pipe.HSet(ctx, RepeatKey(c.project, record), RepeatField(eventID, form, instance), string(status))
	}
	pipe.SAdd(ctx, RecordsKey(c.project), record)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write status to Redis: %w", err)
	}

	evt := StatusEvent{
		Record:      record,
		Event:       eventID,
		Form:        form,
		Instance:    instance,
		Status:      status,
		ChangedAtMs: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	if err := c.rdb.Publish(ctx, StatusEventsChannel(c.project), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	return nil
}

// ListRecords returns every record that has data, sorted.
func (c *Client) ListRecords(ctx context.Context) ([]string, error) {
	records, err := c.rdb.SMembers(ctx, RecordsKey(c.project)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	sort.Strings(records)
	return records, nil
}

// FetchCompletion reads the completion fields of the given forms for the
// given records. With no records, every record with data is fetched.
// Records without any data are returned as empty RecordData values.
func (c *Client) FetchCompletion(ctx context.Context, records []string, forms []string) (map[string]*RecordData, error) {
	if len(records) == 0 {
		var err error
		records, err = c.ListRecords(ctx)
		if err != nil {
			return nil, err
		}
	}

	var filter FormSet
	if len(forms) > 0 {
		filter = NewFormSet(forms...)
	}

	pipe := c.rdb.Pipeline()
	statusCmds := make([]*redis.MapStringStringCmd, len(records))
	repeatCmds := make([]*redis.MapStringStringCmd, len(records))
	for i, record := range records {
		statusCmds[i] = pipe.HGetAll(ctx, StatusKey(c.project, record))
		repeatCmds[i] = pipe.HGetAll(ctx, RepeatKey(c.project, record))
	}
	if len(records) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read completion from Redis: %w", err)
		}
	}

	result := make(map[string]*RecordData, len(records))
	for i, record := range records {
		data, err := HashesToRecordData(record, statusCmds[i].Val(), repeatCmds[i].Val(), filter)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize record %s: %w", record, err)
		}
		result[record] = data
	}

	return result, nil
}

// GetFieldValue reads one field value.
// Returns ("", redis.Nil) if the value was never written; use IsNotFound.
func (c *Client) GetFieldValue(ctx context.Context, record, eventID string, instance int, field string) (string, error) {
	val, err := c.rdb.HGet(ctx, DataKey(c.project, record), DataField(eventID, instance, field)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", redis.Nil
		}
		return "", fmt.Errorf("failed to read field value: %w", err)
	}
	return val, nil
}

// SetFieldValue writes one field value.
func (c *Client) SetFieldValue(ctx context.Context, record, eventID string, instance int, field, value string) error {
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, DataKey(c.project, record), DataField(eventID, instance, field), value)
	pipe.SAdd(ctx, RecordsKey(c.project), record)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write field value: %w", err)
	}
	return nil
}

// LockForm marks a form instance as locked. Locking twice is a no-op.
func (c *Client) LockForm(ctx context.Context, record, eventID, form string, instance int) error {
	if err := c.rdb.SAdd(ctx, LocksKey(c.project, record), LockMember(eventID, form, instance)).Err(); err != nil {
		return fmt.Errorf("failed to lock form: %w", err)
	}
	return nil
}

// IsLocked reports whether a form instance is locked.
func (c *Client) IsLocked(ctx context.Context, record, eventID, form string, instance int) (bool, error) {
	locked, err := c.rdb.SIsMember(ctx, LocksKey(c.project, record), LockMember(eventID, form, instance)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return locked, nil
}

// DenyForm records that another module denies (event, form) for a record.
func (c *Client) DenyForm(ctx context.Context, arm, record, eventID, form string) error {
	if err := c.rdb.SAdd(ctx, ConflictKey(c.project, arm, record), ConflictMember(eventID, form)).Err(); err != nil {
		return fmt.Errorf("failed to write denial: %w", err)
	}
	return nil
}

// ComputeDenied returns the denials another module published for a record.
// It satisfies the access package's ConflictResolver port.
func (c *Client) ComputeDenied(ctx context.Context, arm, record string) (AccessMatrix, error) {
	members, err := c.rdb.SMembers(ctx, ConflictKey(c.project, arm, record)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read denials: %w", err)
	}

	matrix := make(AccessMatrix)
	for _, m := range members {
		eventID, form, ok := strings.Cut(m, ":")
		if !ok || eventID == "" || form == "" {
			return nil, fmt.Errorf("malformed denial member: %q", m)
		}
		matrix.Deny(record, eventID, form)
	}
	return matrix, nil
}

// Subscription represents an active Pub/Sub subscription to status events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan *StatusEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of status events.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan *StatusEvent {
	return s.events
}

// Errors returns the channel of subscription errors.
// The subscription continues after errors - messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and cleans up resources. Implements io.Closer.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeStatusEvents subscribes to completion status changes for this project.
// Events are delivered on a buffered channel (size 10); Redis Pub/Sub is at-most-once.
func (c *Client) SubscribeStatusEvents(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, StatusEventsChannel(c.project))

	// Wait for the subscription to be confirmed so no event published right
	// after this call is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to status events: %w", err)
	}

	eventsChan := make(chan *StatusEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var evt StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal status event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &evt:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
