package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerCipher_RoundTrip(t *testing.T) {
	cipher, err := NewAnswerCipher("server-secret")
	require.NoError(t, err)

	for _, secret := range []string{"flag", "", "with spaces and symbols !@#$%", "ünïcödé"} {
		encrypted, err := cipher.Encrypt(secret)
		require.NoError(t, err)
		assert.NotContains(t, string(encrypted), secret)

		decrypted, err := cipher.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, secret, decrypted)
	}
}

func TestAnswerCipher_NonDeterministic(t *testing.T) {
	cipher, err := NewAnswerCipher("server-secret")
	require.NoError(t, err)

	a, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b) // fresh nonce per encryption
}

func TestAnswerCipher_TamperedCiphertext(t *testing.T) {
	cipher, err := NewAnswerCipher("server-secret")
	require.NoError(t, err)

	encrypted, err := cipher.Encrypt("flag")
	require.NoError(t, err)
	encrypted[len(encrypted)-1] ^= 0xff

	_, err = cipher.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestAnswerCipher_WrongKey(t *testing.T) {
	a, err := NewAnswerCipher("secret-a")
	require.NoError(t, err)
	b, err := NewAnswerCipher("secret-b")
	require.NoError(t, err)

	encrypted, err := a.Encrypt("flag")
	require.NoError(t, err)
	_, err = b.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestAnswerCipher_ShortCiphertext(t *testing.T) {
	cipher, err := NewAnswerCipher("server-secret")
	require.NoError(t, err)

	_, err = cipher.Decrypt([]byte("tiny"))
	assert.Error(t, err)
}

func TestFormatPracticeAnswer(t *testing.T) {
	assert.Equal(t, "ctf{flag}", FormatPracticeAnswer("ctf", "flag"))
	assert.Equal(t, "x{}", FormatPracticeAnswer("x", ""))
}
