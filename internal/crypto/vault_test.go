package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	secret := []byte(`{"access_token": "tok"}`)

	sealed, err := Seal(secret, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "access_token")

	opened, err := Open(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secret, opened)
}

func TestOpenWrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right")
	require.NoError(t, err)

	_, err = Open(sealed, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestOpenGarbage(t *testing.T) {
	_, err := Open([]byte("!!not base64!!"), "pw")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	// Valid base64 but far too short to hold a nonce
	_, err = Open([]byte("AAAA"), "pw")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDeriveKeyIsStable(t *testing.T) {
	assert.Equal(t, DeriveKey("pw"), DeriveKey("pw"))
	assert.NotEqual(t, DeriveKey("pw"), DeriveKey("pw2"))
	assert.Len(t, DeriveKey(""), 32)
}

func TestSealIsNonDeterministic(t *testing.T) {
	a, err := Seal([]byte("secret"), "pw")
	require.NoError(t, err)
	b, err := Seal([]byte("secret"), "pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
