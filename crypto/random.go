package crypto

import (
	"crypto/rand"
	"fmt"
)

const (
	// KeySize is the size of AES-256 message and group keys.
	KeySize = 32
	// SaltSize is the size of per-message group salts. It must equal KeySize.
	SaltSize = KeySize
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// GenerateKey creates a new random AES-256 key.
func GenerateKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// GenerateSalt creates a new random per-message salt.
func GenerateSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}
