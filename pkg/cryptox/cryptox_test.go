package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	require.ErrorIs(t, VerifyPassword("wrong password", hash), ErrPasswordMismatch)

	t.Run("same password hashes differently", func(t *testing.T) {
		again, err := HashPassword("correct horse battery staple")
		require.NoError(t, err)
		require.NotEqual(t, hash, again)
	})

	t.Run("malformed hash errors", func(t *testing.T) {
		require.Error(t, VerifyPassword("anything", "not-a-phc-string"))
	})
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	a, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	b, err := GenerateToken(TokenSize256)
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NotContains(t, a, "+")
	require.NotContains(t, a, "/")
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, FingerprintToken("abc"), FingerprintToken("abc"))
	require.NotEqual(t, FingerprintToken("abc"), FingerprintToken("abd"))
}

func TestConstantTimeEquals(t *testing.T) {
	t.Parallel()

	require.True(t, ConstantTimeEquals("token", "token"))
	require.False(t, ConstantTimeEquals("token", "other"))
	require.False(t, ConstantTimeEquals("token", "token-longer"))
}

func TestGenerateNumericCode(t *testing.T) {
	t.Parallel()

	code, err := GenerateNumericCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		require.True(t, r >= '0' && r <= '9')
	}
}

func TestGeneratePassword(t *testing.T) {
	t.Parallel()

	a, err := GeneratePassword()
	require.NoError(t, err)
	b, err := GeneratePassword()
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.GreaterOrEqual(t, len(a), 12)
}
