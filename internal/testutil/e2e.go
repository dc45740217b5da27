//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// E2EEnvironment is an isolated end-to-end environment: a real Redis
// container and a project.yml in a temp directory.
type E2EEnvironment struct {
	T          *testing.T
	ConfigPath string
	RedisURL   string
	Store      *clinical.Client
	Ctx        context.Context
}

// SetupE2EEnvironment starts redis:7-alpine and writes projectYAML.
func SetupE2EEnvironment(t *testing.T, projectYAML string) *E2EEnvironment {
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	env := &E2EEnvironment{
		T:          t,
		ConfigPath: WriteProjectFile(t, projectYAML),
		RedisURL:   fmt.Sprintf("redis://%s:%s", host, port.Port()),
		Ctx:        ctx,
	}

	opts, err := redis.ParseURL(env.RedisURL)
	require.NoError(t, err)
	env.Store, err = clinical.NewClient(opts, SampleProject)
	require.NoError(t, err, "Failed to create store client")
	t.Cleanup(func() { env.Store.Close() })

	return env
}

// CompleteForms marks each (event, form) pair complete for record.
func (env *E2EEnvironment) CompleteForms(record string, pairs ...[2]string) {
	for _, p := range pairs {
		require.NoError(env.T, env.Store.SetStatus(env.Ctx, record, p[0], p[1], clinical.StatusComplete))
	}
}

// WaitForStatusEvent reads sub until an event for (record, form) arrives
// (up to 10 seconds).
func (env *E2EEnvironment) WaitForStatusEvent(sub *clinical.Subscription, record, form string) *clinical.StatusEvent {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case evt, ok := <-sub.Events():
			require.True(env.T, ok, "Subscription closed while waiting for %s/%s", record, form)
			if evt.Record == record && evt.Form == form {
				env.T.Logf("✓ Status event: record=%s form=%s status=%s", evt.Record, evt.Form, evt.Status)
				return evt
			}
		case <-timeout:
			require.Fail(env.T, fmt.Sprintf("No status event for %s/%s within 10 seconds", record, form))
			return nil
		}
	}
}
