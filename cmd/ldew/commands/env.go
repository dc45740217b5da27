package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/ldew/internal/config"
	"github.com/dyluth/ldew/internal/printer"
	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/redis/go-redis/v9"
)

const (
	defaultConfigPath = "project.yml"
	defaultRedisURL   = "redis://localhost:6379"
	defaultAddr       = ":8080"
)

var (
	configPath string
	redisURL   string
)

// firstNonEmpty returns the flag value, then the environment, then the default.
func firstNonEmpty(flag, envKey, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return fallback
}

func resolvedConfigPath() string {
	return firstNonEmpty(configPath, "LDEW_CONFIG", defaultConfigPath)
}

// loadConfig loads project.yml, printing a formatted error on failure.
func loadConfig() (*config.ProjectConfig, string, error) {
	path := resolvedConfigPath()

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, printer.ErrorWithContext(
			"invalid project configuration",
			err.Error(),
			map[string]string{"Config": path},
			[]string{
				"Fix the file and validate it:\n  ldew check",
				"Point to another file:\n  ldew --config path/to/project.yml",
			},
		)
	}
	return cfg, path, nil
}

// connectStore opens the project's store and verifies Redis is reachable.
func connectStore(ctx context.Context, cfg *config.ProjectConfig) (*clinical.Client, error) {
	url := firstNonEmpty(redisURL, "REDIS_URL", defaultRedisURL)

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", url, err),
			[]string{"Use the redis://[user:password@]host:port[/db] form"},
		)
	}

	store, err := clinical.NewClient(opts, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", url),
			map[string]string{"Error": err.Error()},
			[]string{
				"Start Redis locally:\n  docker run -p 6379:6379 redis:7-alpine",
				"Point to a running server:\n  export REDIS_URL=redis://host:6379",
			},
		)
	}

	return store, nil
}
