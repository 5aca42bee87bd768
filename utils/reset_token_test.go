package utils

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateResetToken(t *testing.T) {
	first, err := GenerateResetToken()
	require.NoError(t, err)
	second, err := GenerateResetToken()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	_, err = hex.DecodeString(first)
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyResetToken(t *testing.T) {
	raw, err := GenerateResetToken()
	require.NoError(t, err)
	stored := HashResetToken(raw)

	// the stored hash is not the raw token
	assert.NotEqual(t, raw, stored)
	assert.Len(t, stored, 64)

	assert.True(t, VerifyResetToken(raw, stored))
	assert.False(t, VerifyResetToken("deadbeef", stored))
	// a leaked hash must not verify as a token
	assert.False(t, VerifyResetToken(stored, stored))
}

func TestResetTokenExpired(t *testing.T) {
	now := time.Now().UTC()

	assert.True(t, ResetTokenExpired(now.Add(-time.Second), now))
	assert.False(t, ResetTokenExpired(now.Add(time.Hour), now))
	// expiry exactly at now is still valid
	assert.False(t, ResetTokenExpired(now, now))
}
