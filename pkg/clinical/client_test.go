package clinical

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-project")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.Equal(t, "test-project", client.Project())
		assert.NoError(t, client.Ping(context.Background()))
	})

	t.Run("rejects empty project", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "project cannot be empty")
	})
}

func TestSetStatus(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	t.Run("writes hash field and indexes record", func(t *testing.T) {
		err := client.SetStatus(ctx, "1001", "e1", "a", StatusComplete)
		require.NoError(t, err)

		assert.Equal(t, "2", mr.HGet(StatusKey("test-project", "1001"), "e1:a_complete"))
		ok, err := mr.SIsMember(RecordsKey("test-project"), "1001")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects invalid status", func(t *testing.T) {
		err := client.SetStatus(ctx, "1001", "e1", "a", CompletionStatus("7"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid status")
	})

	t.Run("rejects missing coordinates", func(t *testing.T) {
		err := client.SetStatus(ctx, "", "e1", "a", StatusComplete)
		assert.Error(t, err)
	})

	t.Run("rejects instance below one", func(t *testing.T) {
		err := client.SetInstanceStatus(ctx, "1001", "e1", "a", 0, StatusComplete)
		assert.Error(t, err)
	})
}

func TestFetchCompletion(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetStatus(ctx, "1001", "e1", "a", StatusComplete))
	require.NoError(t, client.SetStatus(ctx, "1001", "e1", "b", StatusIncomplete))
	require.NoError(t, client.SetInstanceStatus(ctx, "1001", "e2", "c", 1, StatusComplete))
	require.NoError(t, client.SetInstanceStatus(ctx, "1001", "e2", "c", 2, StatusComplete))
	require.NoError(t, client.SetStatus(ctx, "1002", "e1", "a", StatusUnverified))

	t.Run("single record", func(t *testing.T) {
		data, err := client.FetchCompletion(ctx, []string{"1001"}, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Contains(t, data, "1001")

		rec := data["1001"]
		assert.True(t, rec.Form("e1", "a").Completed())
		assert.False(t, rec.Form("e1", "b").Completed())
		assert.True(t, rec.Form("e2", "c").Completed())
	})

	t.Run("all records when none given", func(t *testing.T) {
		data, err := client.FetchCompletion(ctx, nil, []string{"a"})
		require.NoError(t, err)
		assert.Len(t, data, 2)
		assert.False(t, data["1002"].Form("e1", "a").Completed())
	})

	t.Run("unknown record is empty", func(t *testing.T) {
		data, err := client.FetchCompletion(ctx, []string{"9999"}, nil)
		require.NoError(t, err)
		assert.True(t, data["9999"].Empty())
	})

	t.Run("fails when Redis is down", func(t *testing.T) {
		broken, err := NewClient(&redis.Options{
			Addr:        "localhost:9",
			DialTimeout: 50 * time.Millisecond,
			MaxRetries:  -1,
		}, "test-project")
		require.NoError(t, err)
		defer broken.Close()

		_, err = broken.FetchCompletion(ctx, []string{"1001"}, nil)
		assert.Error(t, err)
	})
}

func TestListRecords(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	records, err := client.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, client.SetStatus(ctx, "b", "e1", "a", StatusComplete))
	require.NoError(t, client.SetFieldValue(ctx, "a", "e1", 1, "weight", "70"))

	records, err = client.ListRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, records)
}

func TestFieldValues(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, err := client.GetFieldValue(ctx, "1001", "e1", 1, "weight")
	assert.True(t, IsNotFound(err))

	require.NoError(t, client.SetFieldValue(ctx, "1001", "e1", 1, "weight", "72.5"))

	val, err := client.GetFieldValue(ctx, "1001", "e1", 1, "weight")
	require.NoError(t, err)
	assert.Equal(t, "72.5", val)
}

func TestLocks(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	locked, err := client.IsLocked(ctx, "1001", "e1", "a", 1)
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, client.LockForm(ctx, "1001", "e1", "a", 1))
	require.NoError(t, client.LockForm(ctx, "1001", "e1", "a", 1))

	locked, err = client.IsLocked(ctx, "1001", "e1", "a", 1)
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestComputeDenied(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	matrix, err := client.ComputeDenied(ctx, "arm_1", "1001")
	require.NoError(t, err)
	assert.Empty(t, matrix)

	require.NoError(t, client.DenyForm(ctx, "arm_1", "1001", "e2", "c"))
	matrix, err = client.ComputeDenied(ctx, "arm_1", "1001")
	require.NoError(t, err)
	assert.True(t, matrix.Denied("1001", "e2", "c"))
	assert.False(t, matrix.Denied("1001", "e1", "a"))

	t.Run("rejects malformed members", func(t *testing.T) {
		_, err := mr.SAdd(ConflictKey("test-project", "arm_1", "1002"), "garbage")
		require.NoError(t, err)
		_, err = client.ComputeDenied(ctx, "arm_1", "1002")
		assert.Error(t, err)
	})
}

func TestSubscribeStatusEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := client.SubscribeStatusEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, client.SetInstanceStatus(ctx, "1001", "e2", "c", 2, StatusUnverified))

	select {
	case evt := <-sub.Events():
		require.NotNil(t, evt)
		assert.Equal(t, "1001", evt.Record)
		assert.Equal(t, "e2", evt.Event)
		assert.Equal(t, "c", evt.Form)
		assert.Equal(t, 2, evt.Instance)
		assert.Equal(t, StatusUnverified, evt.Status)
		assert.NotZero(t, evt.ChangedAtMs)
	case <-ctx.Done():
		t.Fatal("timed out waiting for status event")
	}

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close(), "close is idempotent")
}
