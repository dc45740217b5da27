package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	prevNoColor := color.NoColor
	color.NoColor = true

	var out, errOut bytes.Buffer
	restore := SetOutput(&out, &errOut)
	t.Cleanup(func() {
		restore()
		color.NoColor = prevNoColor
	})
	return &out, &errOut
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		_, errOut := capture(t)

		err := Error("Config invalid", "project.yml failed validation", nil)
		require.Error(t, err)
		assert.Equal(t, "Config invalid", err.Error())
		assert.Equal(t, "Config invalid\n\nproject.yml failed validation\n", errOut.String())
	})

	t.Run("single suggestion is printed bare", func(t *testing.T) {
		_, errOut := capture(t)

		Error("Config invalid", "Explanation", []string{"Fix the arm name"})
		assert.True(t, strings.HasSuffix(errOut.String(), "\nFix the arm name\n"))
		assert.NotContains(t, errOut.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		_, errOut := capture(t)

		Error("Redis unreachable", "Explanation", []string{"Start Redis", "Set REDIS_URL"})
		assert.Contains(t, errOut.String(), "Either:\n  1. Start Redis\n  2. Set REDIS_URL\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	_, errOut := capture(t)

	err := ErrorWithContext("Status write failed", "", map[string]string{
		"Record": "1001",
		"Form":   "consent",
	}, nil)
	require.Error(t, err)
	assert.Equal(t, "Status write failed", err.Error())
	assert.Contains(t, errOut.String(), "  Form: consent\n  Record: 1001\n")
}

func TestSuccessAndWarningPrefixes(t *testing.T) {
	out, _ := capture(t)

	Success("saved\n")
	Success("✓ already prefixed\n")
	Warning("careful\n")

	assert.Equal(t, "✓ saved\n✓ already prefixed\n⚠️  careful\n", out.String())
}

func TestAccess(t *testing.T) {
	capture(t)
	assert.Equal(t, "denied", Access(true))
	assert.Equal(t, "ok", Access(false))
}
