package contactsync

import (
	"context"
	"errors"
	"time"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/store"
	"github.com/sirupsen/logrus"
)

const defaultRSABits = crypto.DefaultRSABits

// publishSelf makes sure the local identity has a key pair, then publishes
// the public key and the current presence.
func (c *Coordinator) publishSelf(ctx context.Context, srv rpc.Server) error {
	self, err := c.store.LoadSelf(ctx)
	if err != nil {
		return err
	}
	if err := c.ensureKeyPair(ctx, self, false); err != nil {
		return err
	}
	sd := self.MustSelf()
	if err := srv.UpdateKey(ctx, sd.PublicKey); err != nil {
		return err
	}
	return srv.UpdatePresence(ctx, sd.Presence)
}

// ensureKeyPair generates and stores a key pair for self when it has none, its
// private key is missing, or force is set. self is saved when changed.
func (c *Coordinator) ensureKeyPair(ctx context.Context, self *model.Contact, force bool) error {
	sd := self.MustSelf()
	if !force && sd.KeyID != "" && sd.PublicKey != nil {
		_, err := c.store.LoadPrivateKey(ctx, sd.KeyID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	pair, err := crypto.GenerateKeyPair(c.RSABits)
	if err != nil {
		return err
	}
	priv, err := crypto.EncodePrivateKey(pair.Private)
	if err != nil {
		return err
	}
	pub, err := crypto.EncodePublicKey(pair.Public)
	if err != nil {
		return err
	}
	if err := c.store.SavePrivateKey(ctx, &model.PrivateKey{KeyID: pair.ID, Key: priv, Created: time.Now()}); err != nil {
		return err
	}

	sd.KeyID = pair.ID
	sd.PublicKey = &model.Key{ClientID: sd.ClientID, KeyID: pair.ID, Key: pub}
	if sd.Presence == nil {
		sd.Presence = &model.Presence{}
	}
	sd.Presence.ClientID = sd.ClientID
	sd.Presence.KeyID = pair.ID
	if err := c.store.SaveContact(ctx, self); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "ensureKeyPair",
		"key_id":   pair.ID,
		"bits":     c.RSABits,
	}).Info("Generated identity key pair")
	return nil
}

// RegenerateKeyPair replaces the identity key pair and publishes it. Older
// private keys stay in the store so that messages wrapped for them can still
// be read.
func (c *Coordinator) RegenerateKeyPair(ctx context.Context) error {
	self, err := c.store.LoadSelf(ctx)
	if err != nil {
		return err
	}
	if err := c.ensureKeyPair(ctx, self, true); err != nil {
		return err
	}
	srv, err := c.source.Server()
	if err != nil {
		// published with the next sync
		return nil
	}
	return c.publishSelf(ctx, srv)
}

// SetPresence merges update into the local presence and sends it to the relay
// when connected. The key id is always the current one.
func (c *Coordinator) SetPresence(ctx context.Context, update *model.Presence) error {
	self, err := c.store.LoadSelf(ctx)
	if err != nil {
		return err
	}
	sd := self.MustSelf()
	if sd.Presence == nil {
		sd.Presence = &model.Presence{}
	}
	sd.Presence.Merge(update)
	sd.Presence.ClientID = sd.ClientID
	sd.Presence.KeyID = sd.KeyID
	sd.Presence.Timestamp = time.Now()
	if err := c.store.SaveContact(ctx, self); err != nil {
		return err
	}
	c.notify(self)

	srv, err := c.source.Server()
	if err != nil {
		return nil
	}
	return srv.UpdatePresence(ctx, sd.Presence)
}
