package auth

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGeneratedKey(t *testing.T, key string) {
	t.Helper()
	raw, err := hex.DecodeString(key)
	require.NoError(t, err, "key must be hex encoded")
	require.Len(t, raw, 32)
}

func keyFileMode(t *testing.T, dir string) os.FileMode {
	t.Helper()
	info, err := os.Stat(filepath.Join(dir, secretFileName))
	require.NoError(t, err)
	return info.Mode().Perm()
}

func TestLoadOrCreateSecret_GeneratesAndPersists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	key, err := LoadOrCreateSecret(dir)
	require.NoError(t, err)
	requireGeneratedKey(t, key)
	assert.Equal(t, os.FileMode(0600), keyFileMode(t, dir))

	again, err := LoadOrCreateSecret(dir)
	require.NoError(t, err)
	assert.Equal(t, key, again, "second load must reuse the stored key")
}

func TestLoadOrCreateSecret_ReadsExistingFile(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content string
		want    string
	}{
		"as written":  {content: "0123abcd", want: "0123abcd"},
		"hand edited": {content: "  dev-signing-key\n", want: "dev-signing-key"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, secretFileName), []byte(tt.content), 0600))

			key, err := LoadOrCreateSecret(dir)
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestLoadOrCreateSecret_ReplacesBlankFile(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{"empty": "", "whitespace": "\n \n"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, secretFileName), []byte(content), 0600))

			key, err := LoadOrCreateSecret(dir)
			require.NoError(t, err)
			requireGeneratedKey(t, key)
		})
	}
}

func TestLoadOrCreateSecret_CreatesMissingConfigDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "switchboard")

	_, err := LoadOrCreateSecret(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestRotateSecret_InvalidatesIssuedCredentials(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	original, err := LoadOrCreateSecret(dir)
	require.NoError(t, err)

	token, err := NewJWTVerifier(original, "switchboard", time.Hour).Issue(Principal{ID: "u1", Role: "driver"})
	require.NoError(t, err)

	rotated, err := RotateSecret(dir)
	require.NoError(t, err)
	requireGeneratedKey(t, rotated)
	assert.NotEqual(t, original, rotated)
	assert.Equal(t, os.FileMode(0600), keyFileMode(t, dir))

	stored, err := LoadOrCreateSecret(dir)
	require.NoError(t, err)
	assert.Equal(t, rotated, stored)

	_, err = NewJWTVerifier(rotated, "switchboard", time.Hour).Verify(t.Context(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
