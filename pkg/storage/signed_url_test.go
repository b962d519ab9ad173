package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expiresAt, err := signer.Generate("backup-2026-08.json")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	path, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "backup-2026-08.json", path)
	assert.Equal(t, expiresAt.Unix(), parsedExpiry.Unix())
}

func TestSignedURLTamperedSignature(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("backup.json")
	require.NoError(t, err)

	_, _, err = signer.Parse(token + "a")
	require.Error(t, err)
}

func TestSignedURLWrongSecret(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("backup.json")
	require.NoError(t, err)

	other := NewSignedURLSigner("another", time.Minute)
	_, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestSignedURLExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.ttl = -time.Minute
	token, _, err := signer.Generate("backup.json")
	require.NoError(t, err)

	_, _, err = signer.Parse(token)
	require.Error(t, err)
}
