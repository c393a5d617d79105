package crypto

import (
	"errors"
	"fmt"
)

// ErrSaltLength is returned when a salt does not match the key length.
var ErrSaltLength = errors.New("salt length does not match key length")

// ApplySalt returns key XOR salt as a new slice. The operation is its own
// inverse. key is never mutated, including on error.
func ApplySalt(key, salt []byte) ([]byte, error) {
	if len(key) != len(salt) {
		return nil, fmt.Errorf("%w: key %d bytes, salt %d bytes", ErrSaltLength, len(key), len(salt))
	}
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ salt[i]
	}
	return out, nil
}
