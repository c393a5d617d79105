package store

import (
	"context"
	"errors"

	"github.com/opd-ai/xotalk/model"
)

// ErrNotFound is returned when a lookup finds no record.
var ErrNotFound = errors.New("store: not found")

// Store persists contacts, messages and private keys.
type Store interface {
	// LoadSelf returns the local identity.
	LoadSelf(ctx context.Context) (*model.Contact, error)
	// FindContact returns the contact of the given kind whose Key() is key.
	FindContact(ctx context.Context, kind model.Kind, key string) (*model.Contact, error)
	// ListContacts returns all contacts of a kind ordered by id.
	ListContacts(ctx context.Context, kind model.Kind) ([]*model.Contact, error)
	// SaveContact inserts or updates a contact. New contacts get an id assigned.
	SaveContact(ctx context.Context, contact *model.Contact) error

	// FindMessageByTag returns the message with the local tag.
	FindMessageByTag(ctx context.Context, tag string) (*model.ClientMessage, error)
	// FindMessageByID returns the message with the server-assigned id.
	FindMessageByID(ctx context.Context, messageID string) (*model.ClientMessage, error)
	// SaveMessage inserts or updates a message keyed by its tag.
	SaveMessage(ctx context.Context, message *model.ClientMessage) error
	// PendingMessages returns outgoing messages awaiting a delivery request.
	PendingMessages(ctx context.Context) ([]*model.ClientMessage, error)
	// UnseenMessages returns incoming messages not yet marked seen.
	UnseenMessages(ctx context.Context) ([]*model.ClientMessage, error)
	// ListMessages returns the messages of one conversation in creation order.
	ListMessages(ctx context.Context, conversationKey string) ([]*model.ClientMessage, error)

	// SavePrivateKey stores a private key under its key id.
	SavePrivateKey(ctx context.Context, key *model.PrivateKey) error
	// LoadPrivateKey returns the private key with keyID.
	LoadPrivateKey(ctx context.Context, keyID string) (*model.PrivateKey, error)

	Close() error
}
