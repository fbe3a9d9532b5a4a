package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	require.NotEqual(t, "hunter22", hash)

	require.True(t, VerifyPassword(hash, "hunter22"))
	require.False(t, VerifyPassword(hash, "hunter23"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := sha256.Sum256([]byte("a secret"))

	encrypted, err := Encrypt([]byte("payload"), key[:])
	require.NoError(t, err)

	decrypted, err := Decrypt(encrypted, key[:])
	require.NoError(t, err)
	require.Equal(t, "payload", string(decrypted))

	otherKey := sha256.Sum256([]byte("another secret"))
	_, err = Decrypt(encrypted, otherKey[:])
	require.Error(t, err)
}

func TestGenerateCode(t *testing.T) {
	_, err := GenerateCode(0)
	require.Error(t, err)

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(12)
		require.NoError(t, err)
		require.Len(t, code, 12)
		for _, r := range code {
			require.Contains(t, codeAlphabet, string(r))
		}
		seen[code] = struct{}{}
	}
	require.Len(t, seen, 50)
}
