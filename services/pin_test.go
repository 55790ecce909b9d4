package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomPin(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pin, err := RandomPin()
		require.NoError(t, err)
		assert.True(t, validPinFormat(pin), "pin %q should be 6 digits", pin)
		seen[pin] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestPinMatches(t *testing.T) {
	assert.True(t, pinMatches("483920", "483920"))
	assert.False(t, pinMatches("483920", "000000"))
	assert.False(t, pinMatches("483920", "48392"))
	assert.False(t, pinMatches("483920", ""))
}

func TestValidPinFormat(t *testing.T) {
	assert.True(t, validPinFormat("000123"))
	assert.False(t, validPinFormat("12345"))
	assert.False(t, validPinFormat("12345a"))
	assert.False(t, validPinFormat("1234567"))
}
