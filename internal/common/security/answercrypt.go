package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// AnswerCipher encrypts question answers at rest with AES-256-GCM. The key
// is the SHA-256 of the server answer secret; each encryption draws a fresh
// nonce which is stored as a prefix of the ciphertext.
type AnswerCipher struct {
	aead cipher.AEAD
}

func NewAnswerCipher(secret string) (*AnswerCipher, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("security.NewAnswerCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security.NewAnswerCipher: %w", err)
	}
	return &AnswerCipher{aead: aead}, nil
}

func (c *AnswerCipher) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security.AnswerCipher.Encrypt nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt fails on tampered ciphertext or a wrong key. Callers must treat a
// failure here as an internal fault, not as a wrong answer.
func (c *AnswerCipher) Decrypt(data []byte) (string, error) {
	if len(data) < c.aead.NonceSize() {
		return "", fmt.Errorf("security.AnswerCipher.Decrypt: ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:c.aead.NonceSize()], data[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("security.AnswerCipher.Decrypt: %w", err)
	}
	return string(plaintext), nil
}

// FormatPracticeAnswer wraps the stored secret into the input format practice
// submissions are checked against: PREFIX{secret}.
func FormatPracticeAnswer(prefix, secret string) string {
	return prefix + "{" + secret + "}"
}
