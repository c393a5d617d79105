package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrKeySize is returned when a symmetric key has the wrong length.
var ErrKeySize = errors.New("symmetric key must be 32 bytes")

// EncryptAES encrypts plaintext with AES-256-GCM under key.
// The returned slice is nonce || ciphertext || tag. Empty plaintext is allowed.
func EncryptAES(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// WrapKey encrypts a symmetric key to the holder of pub using RSA-OAEP with SHA-256.
func WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("no public key for wrapping")
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		NewLogger("WrapKey").WithError(err, "rsa", "wrap").Warn("Key wrapping failed")
		return nil, fmt.Errorf("failed to wrap key: %w", err)
	}
	return wrapped, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
