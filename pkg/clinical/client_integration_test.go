//go:build integration

package clinical

import (
	"context"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container for testing.
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func TestClient_AgainstRealRedis(t *testing.T) {
	opts, err := redis.ParseURL(setupRedis(t))
	require.NoError(t, err)

	client, err := NewClient(opts, "integration")
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Ping(ctx))

	require.NoError(t, client.SetStatus(ctx, "1001", "e1", "a", StatusComplete))
	require.NoError(t, client.SetInstanceStatus(ctx, "1001", "e1", "b", 1, StatusComplete))
	require.NoError(t, client.SetInstanceStatus(ctx, "1001", "e1", "b", 2, StatusIncomplete))

	data, err := client.FetchCompletion(ctx, nil, []string{"a", "b"})
	require.NoError(t, err)
	require.Contains(t, data, "1001")
	assert.True(t, data["1001"].Form("e1", "a").Completed())
	assert.False(t, data["1001"].Form("e1", "b").Completed())
}
