package watch

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/ldew/internal/testutil"
	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a buffer written by the streaming goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPollForStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns once the status is written", func(t *testing.T) {
		store, _ := testutil.NewStore(t)

		go func() {
			time.Sleep(300 * time.Millisecond)
			store.SetStatus(ctx, "1001", "baseline", "consent", clinical.StatusComplete)
		}()

		err := PollForStatus(ctx, store, "1001", "baseline", "consent", clinical.StatusComplete, 3*time.Second)
		require.NoError(t, err)
	})

	t.Run("times out", func(t *testing.T) {
		store, _ := testutil.NewStore(t)
		require.NoError(t, store.SetStatus(ctx, "1001", "baseline", "consent", clinical.StatusIncomplete))

		err := PollForStatus(ctx, store, "1001", "baseline", "consent", clinical.StatusComplete, 500*time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout waiting for baseline/consent")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		store, _ := testutil.NewStore(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := PollForStatus(cctx, store, "1001", "baseline", "consent", clinical.StatusComplete, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHasStatus(t *testing.T) {
	assert.False(t, hasStatus(clinical.FormState{}, clinical.StatusEmpty), "never saved is not a status")
	assert.True(t, hasStatus(clinical.FormState{HasStatus: true, Status: clinical.StatusUnverified}, clinical.StatusUnverified))
	assert.False(t, hasStatus(clinical.FormState{Instances: map[int]clinical.CompletionStatus{
		1: clinical.StatusComplete,
		2: clinical.StatusIncomplete,
	}}, clinical.StatusComplete))
}

func TestStreamStatusEvents(t *testing.T) {
	store, _ := testutil.NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- StreamStatusEvents(ctx, store, OutputFormatJSON, out)
	}()

	// Publish until the subscriber is attached and the event shows up.
	require.Eventually(t, func() bool {
		_ = store.SetStatus(context.Background(), "1001", "baseline", "consent", clinical.StatusComplete)
		return strings.Contains(out.String(), `"form":"consent"`)
	}, 3*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}

	assert.Contains(t, out.String(), `"type":"status_changed"`)
	assert.Contains(t, out.String(), `"event":"baseline"`)
}

func TestStreamStatusEvents_UnknownFormat(t *testing.T) {
	store, _ := testutil.NewStore(t)
	err := StreamStatusEvents(context.Background(), store, "xml", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestFormatters(t *testing.T) {
	evt := &clinical.StatusEvent{
		Record:      "1001",
		Event:       "week_1",
		Form:        "adverse_events",
		Instance:    2,
		Status:      clinical.StatusComplete,
		ChangedAtMs: time.Now().UnixMilli(),
	}

	t.Run("defaultFormatter", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&defaultFormatter{writer: &buf}).FormatStatus(evt))

		output := buf.String()
		assert.Contains(t, output, "✅ Status changed")
		assert.Contains(t, output, "record=1001")
		assert.Contains(t, output, "instance=2")
		assert.Contains(t, output, "status=complete")
	})

	t.Run("defaultFormatter omits instance for single forms", func(t *testing.T) {
		var buf bytes.Buffer
		single := *evt
		single.Instance = 0
		single.Status = clinical.StatusIncomplete
		require.NoError(t, (&defaultFormatter{writer: &buf}).FormatStatus(&single))

		assert.Contains(t, buf.String(), "📝 Status changed")
		assert.NotContains(t, buf.String(), "instance=")
	})

	t.Run("jsonFormatter", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, (&jsonFormatter{writer: &buf}).FormatStatus(evt))

		output := buf.String()
		assert.Contains(t, output, `"type":"status_changed"`)
		assert.Contains(t, output, `"event":"week_1"`)
		assert.Contains(t, output, `"status":"2"`)
	})
}
