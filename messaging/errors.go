package messaging

import "errors"

var (
	// ErrNoEncryptionKey is returned when no key is available to encrypt for
	// or decrypt from a contact.
	ErrNoEncryptionKey = errors.New("no key for encryption")
	// ErrUnknownContact is returned when a delivery references a contact that
	// is not known locally.
	ErrUnknownContact = errors.New("unknown contact")
	// ErrUnknownMessage is returned when an outgoing update references no
	// local message.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrInvalidText is returned for outgoing text that is not valid UTF-8.
	ErrInvalidText = errors.New("message text is not valid UTF-8")
)
