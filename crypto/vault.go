package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the number of iterations for passphrase key derivation
	PBKDF2Iterations = 100000
	// VaultVersion is the current sealed format version
	VaultVersion = 1
	// VaultSaltSize is the size of the PBKDF2 salt
	VaultSaltSize = 32
)

// ErrVaultOpen is returned when sealed data cannot be opened.
var ErrVaultOpen = errors.New("vault: cannot open sealed data")

// Vault seals secrets at rest with an AES-256-GCM key derived from a passphrase.
// Sealed format: [version:2][nonce:12][ciphertext+tag:N]
type Vault struct {
	key [32]byte
}

// NewVaultSalt generates a fresh PBKDF2 salt to be stored next to sealed data.
func NewVaultSalt() ([]byte, error) {
	return RandomBytes(VaultSaltSize)
}

// NewVault derives the sealing key from passphrase and salt. The passphrase
// slice is wiped before returning.
func NewVault(passphrase, salt []byte) (*Vault, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("vault passphrase cannot be empty")
	}
	if len(salt) != VaultSaltSize {
		return nil, fmt.Errorf("invalid vault salt size: got %d, want %d", len(salt), VaultSaltSize)
	}

	v := &Vault{}
	derived := pbkdf2.Key(passphrase, salt, PBKDF2Iterations, 32, sha256.New)
	copy(v.key[:], derived)

	SecureWipe(derived)
	SecureWipe(passphrase)
	return v, nil
}

// Seal encrypts plaintext for storage.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 2, 2+len(nonce)+len(plaintext)+gcm.Overhead())
	binary.BigEndian.PutUint16(out[0:2], VaultVersion)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < 2+nonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrVaultOpen, len(sealed))
	}

	version := binary.BigEndian.Uint16(sealed[0:2])
	if version != VaultVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrVaultOpen, version)
	}

	nonce := sealed[2 : 2+nonceSize]
	plaintext, err := gcm.Open(nil, nonce, sealed[2+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted data", ErrVaultOpen)
	}
	return plaintext, nil
}

// Close wipes the derived key. The Vault must not be used afterwards.
func (v *Vault) Close() error {
	ZeroBytes(v.key[:])
	return nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
