package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticDirectory_ExplicitEntryWins(t *testing.T) {
	dir := NewStaticDirectory(map[string]string{"7": "seven@example.com"}, "fallback@example.com")

	addr, err := dir.EmailFor(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, "seven@example.com", addr)
}

func TestStaticDirectory_FallsBackToDefault(t *testing.T) {
	dir := NewStaticDirectory(map[string]string{"7": "seven@example.com"}, "fallback@example.com")

	addr, err := dir.EmailFor(t.Context(), 42)
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", addr)
}

func TestStaticDirectory_EmptyEntryFallsBack(t *testing.T) {
	dir := NewStaticDirectory(map[string]string{"7": ""}, "fallback@example.com")

	addr, err := dir.EmailFor(t.Context(), 7)
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", addr)
}

func TestStaticDirectory_NoAddressConfigured(t *testing.T) {
	dir := NewStaticDirectory(nil, "")

	_, err := dir.EmailFor(t.Context(), 7)
	assert.ErrorContains(t, err, "no email address configured for user 7")
}
