package cryptox

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	s, err := NewSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return s
}

func TestSealOpen_RoundTrip(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("access_token", []byte("eyJhbGciOi..."))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "eyJhbGciOi")

	plain, err := s.Open("access_token", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("eyJhbGciOi..."), plain)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	s := testSealer(t)

	a, err := s.Seal("did", []byte("did:plc:alice"))
	require.NoError(t, err)
	b, err := s.Seal("did", []byte("did:plc:alice"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestOpen_WrongNameFails(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("access_token", []byte("token"))
	require.NoError(t, err)

	_, err = s.Open("refresh_token", sealed)
	require.Error(t, err)
}

func TestOpen_TamperedOrShort(t *testing.T) {
	s := testSealer(t)

	sealed, err := s.Seal("server", []byte("bsky.social"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open("server", sealed)
	require.Error(t, err)

	_, err = s.Open("server", []byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestNewSealer_RejectsShortKey(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	require.Error(t, err)
}

func TestLoadOrCreateKey_CreatesThenReuses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "biru.key")

	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestLoadOrCreateKey_RejectsWrongLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "biru.key")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))

	_, err := LoadOrCreateKey(path)
	require.Error(t, err)
}
