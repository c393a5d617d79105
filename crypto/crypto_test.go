package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRSABits keeps key generation fast in tests.
const testRSABits = 1024

func TestAESRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	for _, size := range []int{0, 1, 4096, 65536} {
		plaintext, err := RandomBytes(size)
		require.NoError(t, err)

		ciphertext, err := EncryptAES(key, plaintext)
		require.NoError(t, err)
		assert.Len(t, ciphertext, size+12+16)

		decrypted, err := DecryptAES(key, ciphertext)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, decrypted), "size %d round trip mismatch", size)
	}
}

func TestAESWrongKeyFails(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()

	ciphertext, err := EncryptAES(key, []byte("hello"))
	require.NoError(t, err)

	_, err = DecryptAES(other, ciphertext)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestAESRejectsShortKey(t *testing.T) {
	_, err := EncryptAES(make([]byte, 16), []byte("x"))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestAESTruncatedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	_, err := DecryptAES(key, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestWrapUnwrap(t *testing.T) {
	kp, err := GenerateKeyPair(testRSABits)
	require.NoError(t, err)
	key, _ := GenerateKey()

	wrapped, err := WrapKey(kp.Public, key)
	require.NoError(t, err)

	unwrapped, err := UnwrapKey(kp.Private, wrapped)
	require.NoError(t, err)
	assert.Equal(t, key, unwrapped)
}

func TestUnwrapWithWrongKey(t *testing.T) {
	kp1, err := GenerateKeyPair(testRSABits)
	require.NoError(t, err)
	kp2, err := GenerateKeyPair(testRSABits)
	require.NoError(t, err)
	key, _ := GenerateKey()

	wrapped, err := WrapKey(kp1.Public, key)
	require.NoError(t, err)

	_, err = UnwrapKey(kp2.Private, wrapped)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestWrapWithoutKey(t *testing.T) {
	_, err := WrapKey(nil, []byte("k"))
	assert.Error(t, err)
}

func TestKeyEncodingRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(testRSABits)
	require.NoError(t, err)
	assert.Len(t, kp.ID, 16)

	pubEncoded, err := EncodePublicKey(kp.Public)
	require.NoError(t, err)
	pub, err := DecodePublicKey(pubEncoded)
	require.NoError(t, err)
	id, err := KeyID(pub)
	require.NoError(t, err)
	assert.Equal(t, kp.ID, id)

	privEncoded, err := EncodePrivateKey(kp.Private)
	require.NoError(t, err)
	decoded, err := DecodePrivateKey(privEncoded)
	require.NoError(t, err)
	assert.Equal(t, kp.ID, decoded.ID)
}

func TestDecodeInvalidKeys(t *testing.T) {
	_, err := DecodePublicKey("not base64!")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecodePublicKey("AAAA")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DecodePrivateKey("AAAA")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestApplySaltIsSelfInverse(t *testing.T) {
	key, _ := GenerateKey()
	salt, _ := GenerateSalt()
	original := append([]byte(nil), key...)

	salted, err := ApplySalt(key, salt)
	require.NoError(t, err)
	assert.NotEqual(t, key, salted)

	restored, err := ApplySalt(salted, salt)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
	assert.Equal(t, original, key, "input key must not be mutated")
}

func TestApplySaltRejectsMismatchedLength(t *testing.T) {
	key, _ := GenerateKey()
	original := append([]byte(nil), key...)

	_, err := ApplySalt(key, make([]byte, SaltSize-1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSaltLength))
	assert.Equal(t, original, key)
}

func TestSecureFieldHash(t *testing.T) {
	fields := SecureFieldHash([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}, "secret")
	assert.Equal(t, "0102030405060708...", fields["secret_preview"])
	assert.Equal(t, 9, fields["secret_size"])

	fields = SecureFieldHash(nil, "empty")
	assert.Equal(t, "nil", fields["empty_preview"])
}

func TestSecureWipe(t *testing.T) {
	data := []byte{1, 2, 3}
	require.NoError(t, SecureWipe(data))
	assert.Equal(t, []byte{0, 0, 0}, data)
	assert.Error(t, SecureWipe(nil))
}

func TestGroupKeyID(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	assert.Len(t, GroupKeyID(a), 16)
	assert.Equal(t, GroupKeyID(a), GroupKeyID(append([]byte(nil), a...)))
	assert.NotEqual(t, GroupKeyID(a), GroupKeyID(b))
}
