package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
)

// ErrDecrypt is returned for every symmetric or asymmetric decryption failure.
var ErrDecrypt = errors.New("decryption failed")

// DecryptAES decrypts data produced by EncryptAES.
func DecryptAES(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short (%d bytes)", ErrDecrypt, len(data))
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: message authentication failed", ErrDecrypt)
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// UnwrapKey recovers a symmetric key wrapped with WrapKey.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("no private key for unwrapping")
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		NewLogger("UnwrapKey").WithFields(SecureFieldHash(wrapped, "wrapped")).Warn("Key unwrapping failed")
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return key, nil
}
