// Package crypto implements the cryptographic primitives of the xotalk client engine.
//
// The package is stateless beyond the key material passed in: it generates RSA key
// pairs and symmetric keys, wraps and unwraps symmetric keys with RSA-OAEP, encrypts
// and decrypts payloads with AES-256-GCM and applies per-message group salts.
//
// # Key Material
//
// Identity keys are 2048 bit RSA key pairs. A key is referenced on the wire by its
// key id, the hex encoding of the first 8 bytes of the SHA-256 digest of the PKIX
// encoded public key:
//
//	keys, err := crypto.GenerateKeyPair(crypto.DefaultRSABits)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("key id:", keys.ID)
//
// Message keys are 32 byte AES keys, generated per message for peer recipients and
// shared per group for group recipients.
//
// # Ciphertext Format
//
// EncryptAES returns nonce || ciphertext || tag. DecryptAES reports every failure as
// ErrDecrypt so callers cannot distinguish a wrong key from tampered data.
//
// # Group Salts
//
// Group messages are encrypted under the group key XOR a fresh per-message salt of the
// same length. ApplySalt never mutates its input and rejects salts of the wrong length
// with ErrSaltLength:
//
//	messageKey, err := crypto.ApplySalt(groupKey, salt)
//
// # At-Rest Sealing
//
// Vault derives an AES key from a passphrase with PBKDF2 and seals secrets such as SRP
// credentials and private keys before they are written to storage.
//
// # Logging
//
// NewLogger returns a structured logrus helper. Secret values must only be logged
// through SecureFieldHash, which emits a short preview and the length.
package crypto
