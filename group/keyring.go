package group

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/store"
	"github.com/sirupsen/logrus"
)

// ErrNoPublicKey is returned when no public key is known for a client.
var ErrNoPublicKey = errors.New("no public key for client")

// Keyring resolves key material from the store, fetching missing public keys
// from the relay.
type Keyring struct {
	store  store.Store
	source rpc.Source
}

// NewKeyring creates a keyring. source may be nil, in which case missing keys
// are never fetched.
func NewKeyring(st store.Store, source rpc.Source) *Keyring {
	return &Keyring{store: st, source: source}
}

// PrivateKey loads and decodes the local private key with keyID.
func (k *Keyring) PrivateKey(ctx context.Context, keyID string) (*rsa.PrivateKey, error) {
	stored, err := k.store.LoadPrivateKey(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", keyID, err)
	}
	pair, err := crypto.DecodePrivateKey(stored.Key)
	if err != nil {
		return nil, fmt.Errorf("private key %s: %w", keyID, err)
	}
	return pair.Private, nil
}

// PublicKey returns the current public key of clientID together with its key
// id. The local identity is resolved from the self contact.
func (k *Keyring) PublicKey(ctx context.Context, clientID string) (*model.Key, *rsa.PublicKey, error) {
	self, err := k.store.LoadSelf(ctx)
	if err == nil && self.Key() == clientID {
		return decode(self.MustSelf().PublicKey, clientID)
	}

	contact, err := k.store.FindContact(ctx, model.KindPeer, clientID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w %s: %v", ErrNoPublicKey, clientID, err)
	}
	peer := contact.MustPeer()
	wanted := ""
	if peer.Presence != nil {
		wanted = peer.Presence.KeyID
	}
	if peer.PublicKey != nil && (wanted == "" || peer.PublicKey.KeyID == wanted) {
		return decode(peer.PublicKey, clientID)
	}
	if wanted == "" {
		return nil, nil, fmt.Errorf("%w %s", ErrNoPublicKey, clientID)
	}

	key, err := k.Fetch(ctx, contact, wanted)
	if err != nil {
		return nil, nil, err
	}
	return decode(key, clientID)
}

// Fetch retrieves key keyID of the peer contact from the relay and stores it.
func (k *Keyring) Fetch(ctx context.Context, contact *model.Contact, keyID string) (*model.Key, error) {
	peer := contact.MustPeer()
	if k.source == nil {
		return nil, fmt.Errorf("%w %s", ErrNoPublicKey, peer.ClientID)
	}
	srv, err := k.source.Server()
	if err != nil {
		return nil, err
	}
	key, err := srv.GetKey(ctx, peer.ClientID, keyID)
	if err != nil {
		return nil, fmt.Errorf("fetch key %s of %s: %w", keyID, peer.ClientID, err)
	}
	pub, err := crypto.DecodePublicKey(key.Key)
	if err != nil {
		return nil, err
	}
	if id, err := crypto.KeyID(pub); err != nil || id != keyID {
		logrus.WithFields(logrus.Fields{
			"function":  "Fetch",
			"client_id": peer.ClientID,
			"key_id":    keyID,
		}).Warn("Fetched key does not match its id")
		return nil, fmt.Errorf("%w: key id mismatch for %s", crypto.ErrInvalidKey, peer.ClientID)
	}

	key.ClientID = peer.ClientID
	peer.PublicKey = key
	if err := k.store.SaveContact(ctx, contact); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function":  "Fetch",
		"client_id": peer.ClientID,
		"key_id":    keyID,
	}).Info("Stored refreshed public key")
	return key, nil
}

func decode(key *model.Key, clientID string) (*model.Key, *rsa.PublicKey, error) {
	if key == nil || key.Key == "" {
		return nil, nil, fmt.Errorf("%w %s", ErrNoPublicKey, clientID)
	}
	pub, err := crypto.DecodePublicKey(key.Key)
	if err != nil {
		return nil, nil, err
	}
	return key, pub, nil
}
