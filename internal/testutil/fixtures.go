// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/ldew/internal/config"
	"github.com/dyluth/ldew/pkg/clinical"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// SampleProject is the project ID of SampleProjectYAML.
const SampleProject = "pid-42"

// SampleProjectYAML is a small study: one arm, three events, one exception
// form, value copy on vitals and auto-lock for monitors.
const SampleProjectYAML = `version: "1.0"
project_id: pid-42
base_url: https://redcap.example.org/redcap_v14
arms:
  - name: arm_1
    events:
      - id: baseline
        forms: [consent, demographics, adverse_events]
      - id: week_1
        forms: [vitals, labs]
      - id: week_2
        forms: [vitals, adverse_events]
exceptions: [adverse_events]
roles_to_lock: [monitor]
fdec:
  enabled: true
copy_values:
  - form: vitals
    field: weight
`

// NewStore returns a clinical client backed by an in-process miniredis.
// Both are closed when the test ends.
func NewStore(t *testing.T) (*clinical.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client, err := clinical.NewClient(&redis.Options{Addr: mr.Addr()}, SampleProject)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

// SampleConfig parses SampleProjectYAML.
func SampleConfig(t *testing.T) *config.ProjectConfig {
	t.Helper()

	cfg, err := config.Parse([]byte(SampleProjectYAML))
	require.NoError(t, err)
	return cfg
}

// WriteProjectFile writes contents as project.yml in a fresh temp dir and
// returns its path.
func WriteProjectFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "project.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}
