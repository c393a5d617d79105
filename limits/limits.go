// Package limits provides centralized size limits for the xotalk client engine.
// This ensures consistent validation across the codec, the wire layer and storage.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageBody is the largest plaintext message body accepted for encryption (1MB).
	MaxMessageBody = 1024 * 1024

	// MaxAttachmentDescriptor is the largest serialized attachment descriptor.
	// Descriptors are small JSON documents; anything larger is malformed.
	MaxAttachmentDescriptor = 16 * 1024

	// EncryptionOverhead is the AES-GCM overhead: a 12 byte nonce prefix plus the 16 byte tag.
	EncryptionOverhead = 12 + 16

	// MaxEncryptedBody is the maximum body ciphertext size after encryption overhead.
	MaxEncryptedBody = MaxMessageBody + EncryptionOverhead

	// MaxFrameSize is the absolute maximum for a single RPC frame read from the relay.
	// This prevents memory exhaustion from a misbehaving server (8MB).
	MaxFrameSize = 8 * 1024 * 1024

	// MaxAttachmentSize is the largest attachment blob moved by the default
	// HTTP mover.
	MaxAttachmentSize = 256 * 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided where content is required
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates data against the specified maximum size.
// Empty data is rejected; use ValidateBody for payloads that may be empty.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateBody validates a plaintext message body. Empty bodies are allowed:
// a message may consist of an attachment only.
func ValidateBody(body []byte) error {
	if len(body) > MaxMessageBody {
		return fmt.Errorf("%w: body size %d exceeds limit %d", ErrMessageTooLarge, len(body), MaxMessageBody)
	}
	return nil
}

// ValidateEncryptedBody validates a received body ciphertext before decryption.
func ValidateEncryptedBody(ciphertext []byte) error {
	if len(ciphertext) == 0 {
		return ErrMessageEmpty
	}
	if len(ciphertext) > MaxEncryptedBody {
		return fmt.Errorf("%w: encrypted size %d exceeds limit %d", ErrMessageTooLarge, len(ciphertext), MaxEncryptedBody)
	}
	return nil
}

// ValidateAttachmentDescriptor validates a serialized attachment descriptor.
func ValidateAttachmentDescriptor(descriptor []byte) error {
	return ValidateMessageSize(descriptor, MaxAttachmentDescriptor)
}

// ValidateFrame validates a raw wire frame against MaxFrameSize.
// All relay-received data should pass this check before decoding.
func ValidateFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrMessageEmpty
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrMessageTooLarge, len(frame), MaxFrameSize)
	}
	return nil
}
