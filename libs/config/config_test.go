package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringFallback(t *testing.T) {
	t.Setenv("SLOTFINDER_TEST_STRING", "")
	assert.Equal(t, "fallback", String("SLOTFINDER_TEST_STRING", "fallback"))

	t.Setenv("SLOTFINDER_TEST_STRING", " value ")
	assert.Equal(t, "value", String("SLOTFINDER_TEST_STRING", "fallback"))
}

func TestRequiredString(t *testing.T) {
	t.Setenv("SLOTFINDER_TEST_REQUIRED", "")
	_, err := RequiredString("SLOTFINDER_TEST_REQUIRED")
	require.Error(t, err)

	t.Setenv("SLOTFINDER_TEST_REQUIRED", "postgres://x")
	got, err := RequiredString("SLOTFINDER_TEST_REQUIRED")
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", got)
}

func TestPort(t *testing.T) {
	t.Setenv("SLOTFINDER_TEST_PORT", "70000")
	_, err := Port("SLOTFINDER_TEST_PORT", "8080")
	require.Error(t, err)

	t.Setenv("SLOTFINDER_TEST_PORT", "")
	p, err := Port("SLOTFINDER_TEST_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("SLOTFINDER_TEST_INT", "42")
	t.Setenv("SLOTFINDER_TEST_BOOL", "off")
	t.Setenv("SLOTFINDER_TEST_DUR", "90")
	t.Setenv("SLOTFINDER_TEST_LIST", "a, ,b")

	assert.Equal(t, 42, Int("SLOTFINDER_TEST_INT", 1))
	assert.False(t, Bool("SLOTFINDER_TEST_BOOL", true))
	assert.Equal(t, 90*time.Second, Duration("SLOTFINDER_TEST_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, List("SLOTFINDER_TEST_LIST", ""))

	t.Setenv("SLOTFINDER_TEST_DUR", "2m")
	assert.Equal(t, 2*time.Minute, Duration("SLOTFINDER_TEST_DUR", time.Second))

	t.Setenv("SLOTFINDER_TEST_INT", "nope")
	assert.Equal(t, 7, Int("SLOTFINDER_TEST_INT", 7))
}
