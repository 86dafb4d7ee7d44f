// Package crypto seals OAuth tokens before they are written to the database.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values written by TokenCipher. Rows without it were stored in
// plaintext by the web client and are passed through unchanged.
const sealedPrefix = "enc:v1:"

var (
	ErrMissingKey       = errors.New("token encryption key is empty")
	ErrInvalidSealed    = errors.New("invalid sealed token")
	ErrDecryptionFailed = errors.New("token decryption failed")
)

// TokenCipher seals and opens tokens with AES-256-GCM.
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher derives a 256-bit key from secret with SHA-256 unless it already is 32 bytes.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}
	key := []byte(secret)
	if len(key) != 32 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenCipher{gcm: gcm}, nil
}

// Seal encrypts token. Empty input stays empty.
func (c *TokenCipher) Seal(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := c.gcm.Seal(nonce, nonce, []byte(token), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a sealed token; values without the sealed prefix are returned as is.
func (c *TokenCipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSealed, err)
	}
	n := c.gcm.NonceSize()
	if len(data) < n+c.gcm.Overhead() {
		return "", ErrInvalidSealed
	}
	plain, err := c.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
