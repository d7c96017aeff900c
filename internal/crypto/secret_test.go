package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testBox(t *testing.T) *Box {
	t.Helper()
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	box, err := NewBox(key)
	require.NoError(t, err)
	return box
}

func TestSealOpenRoundTrip(t *testing.T) {
	box := testBox(t)

	ciphertext, err := box.Seal("sk-super-secret-value")
	require.NoError(t, err)
	require.NotEqual(t, "sk-super-secret-value", ciphertext)
	require.True(t, IsSealed(ciphertext))

	plaintext, err := box.Open(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "sk-super-secret-value", plaintext)
}

func TestSealEmptyPassesThrough(t *testing.T) {
	box := testBox(t)

	ciphertext, err := box.Seal("")
	require.NoError(t, err)
	require.Equal(t, "", ciphertext)
}

func TestOpenPassesUnsealedThroughAsPlaintext(t *testing.T) {
	box := testBox(t)

	plaintext, err := box.Open("not-encrypted")
	require.NoError(t, err)
	require.Equal(t, "not-encrypted", plaintext)
}

func TestOpenRejectsCorruptCiphertext(t *testing.T) {
	box := testBox(t)

	_, err := box.Open("enc:not-valid-base64!!!")
	require.Error(t, err)
}

func TestNewBoxRejectsWrongKeySize(t *testing.T) {
	_, err := NewBox([]byte("too-short"))
	require.Error(t, err)
}

func TestLoadOrCreateKeyFileGeneratesThenReuses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".encryption_key")

	key1, err := LoadOrCreateKeyFile(path)
	require.NoError(t, err)
	require.Len(t, key1, KeySize)

	key2, err := LoadOrCreateKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, key1, key2)
}
