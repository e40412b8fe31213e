package omemo

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptMessageRoundTrip(t *testing.T) {
	plaintext := []byte("this is the OMEMO-encrypted chat body")

	ciphertext, key, iv, err := EncryptMessage(rand.Reader, plaintext)
	require.NoError(t, err)
	require.Len(t, ciphertext, len(plaintext))

	got, err := DecryptMessage(ciphertext, key, iv)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptMessageRejectsTamperedTag(t *testing.T) {
	plaintext := []byte("hello")
	ciphertext, key, iv, err := EncryptMessage(rand.Reader, plaintext)
	require.NoError(t, err)

	key[31] ^= 0x01
	_, err = DecryptMessage(ciphertext, key, iv)
	require.Error(t, err)
}

func TestDecryptMessageRejectsTamperedCiphertext(t *testing.T) {
	plaintext := []byte("hello, world, this is longer than one block")
	ciphertext, key, iv, err := EncryptMessage(rand.Reader, plaintext)
	require.NoError(t, err)

	ciphertext[0] ^= 0x01
	_, err = DecryptMessage(ciphertext, key, iv)
	require.Error(t, err)
}

func TestEncryptMessageEmptyPlaintext(t *testing.T) {
	ciphertext, key, iv, err := EncryptMessage(rand.Reader, nil)
	require.NoError(t, err)
	require.Empty(t, ciphertext)

	got, err := DecryptMessage(ciphertext, key, iv)
	require.NoError(t, err)
	require.Empty(t, got)
}
