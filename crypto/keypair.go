package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// DefaultRSABits is the modulus size used for identity keys.
const DefaultRSABits = 2048

// ErrInvalidKey is returned when encoded key material cannot be parsed.
var ErrInvalidKey = errors.New("invalid key")

// KeyPair is an RSA identity key pair together with its key id.
type KeyPair struct {
	ID      string
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a new random RSA key pair.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	logger := NewLogger("GenerateKeyPair").WithField("bits", bits)
	logger.Debug("Generating RSA key pair")

	private, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		logger.WithError(err, "rsa", "generate").Error("Key generation failed")
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	id, err := KeyID(&private.PublicKey)
	if err != nil {
		return nil, err
	}

	logger.WithField("key_id", id).Debug("RSA key pair generated")
	return &KeyPair{ID: id, Public: &private.PublicKey, Private: private}, nil
}

// KeyID computes the wire identifier of a public key: the hex encoded first
// 8 bytes of SHA-256 over its PKIX encoding.
func KeyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:8]), nil
}

// GroupKeyID computes the wire identifier of a symmetric group key in the
// same form as KeyID.
func GroupKeyID(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// EncodePublicKey returns the base64 PKIX encoding of pub.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePublicKey parses a base64 PKIX RSA public key.
func DecodePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", ErrInvalidKey)
	}
	return pub, nil
}

// EncodePrivateKey returns the base64 PKCS#8 encoding of priv.
func EncodePrivateKey(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}
	defer ZeroBytes(der)
	return base64.StdEncoding.EncodeToString(der), nil
}

// DecodePrivateKey parses a base64 PKCS#8 RSA private key into a KeyPair.
func DecodePrivateKey(encoded string) (*KeyPair, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer ZeroBytes(der)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	private, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA private key", ErrInvalidKey)
	}

	id, err := KeyID(&private.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{ID: id, Public: &private.PublicKey, Private: private}, nil
}
