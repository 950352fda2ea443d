package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("some-shared-secret")
	assert.Len(t, key, 16)

	// Same secret, same key; stability matters for data at rest.
	assert.Equal(t, key, DeriveKey("some-shared-secret"))
	assert.NotEqual(t, key, DeriveKey("another-secret"))

	// Hex digest characters only.
	for _, b := range key {
		assert.True(t, (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f'))
	}
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewCBCEncryptor(DeriveKey("secret"))
	require.NoError(t, err)

	plaintext := []byte("Jane Doe has submitted new Fever symptom")
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "Jane Doe")
	assert.Zero(t, len(ciphertext)%16)

	got, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptRandomizesIV(t *testing.T) {
	enc, err := NewCBCEncryptor(DeriveKey("secret"))
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same message"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("same message"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, err := NewCBCEncryptor(DeriveKey("secret"))
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = enc.Decrypt(make([]byte, 48))
	assert.Error(t, err)
}

func TestNewCBCEncryptorBadKey(t *testing.T) {
	_, err := NewCBCEncryptor([]byte("tooshort"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}
