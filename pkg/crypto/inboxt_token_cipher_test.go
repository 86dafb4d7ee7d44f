package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipherRoundTrip(t *testing.T) {
	c, err := NewTokenCipher("a-jwt-secret-that-is-not-32-bytes")
	require.NoError(t, err)

	sealed, err := c.Seal("ya29.access-token")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "ya29")

	opened, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", opened)
}

func TestTokenCipherPlaintextPassthrough(t *testing.T) {
	c, err := NewTokenCipher(strings.Repeat("k", 32))
	require.NoError(t, err)

	got, err := c.Open("1//legacy-refresh-token")
	require.NoError(t, err)
	assert.Equal(t, "1//legacy-refresh-token", got)

	empty, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTokenCipherWrongKey(t *testing.T) {
	a, err := NewTokenCipher("key-a")
	require.NoError(t, err)
	b, err := NewTokenCipher("key-b")
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = b.Open(sealedPrefix + "!!notbase64")
	assert.ErrorIs(t, err, ErrInvalidSealed)

	_, err = NewTokenCipher("")
	assert.ErrorIs(t, err, ErrMissingKey)
}
