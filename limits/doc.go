// Package limits provides centralized size constants and validation functions
// for the xotalk client engine.
//
// # Size Hierarchy
//
//   - MaxMessageBody (1MB): plaintext body limit enforced before encryption.
//     Empty bodies are valid (attachment-only messages).
//
//   - MaxEncryptedBody: MaxMessageBody plus the AES-GCM nonce and tag.
//
//   - MaxAttachmentDescriptor (16KB): limit for the JSON attachment descriptor.
//
//   - MaxFrameSize (8MB): the absolute maximum for a single frame received from
//     the relay. All network-received data is validated against this limit before
//     it is decoded.
//
// # Validation Functions
//
//	if err := limits.ValidateBody(body); err != nil {
//	    // ErrMessageTooLarge
//	}
//
// Errors wrap ErrMessageEmpty or ErrMessageTooLarge with the actual and maximum
// sizes, so callers can branch with errors.Is.
package limits
