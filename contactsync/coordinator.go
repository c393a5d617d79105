package contactsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/xotalk/group"
	"github.com/opd-ai/xotalk/listener"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/store"
	"github.com/sirupsen/logrus"
)

// ErrUnknownGroup is returned for member updates of groups not known locally.
var ErrUnknownGroup = errors.New("unknown group")

// ContactListener is called with a copy of every changed contact.
type ContactListener func(contact *model.Contact)

// Coordinator applies relay contact records to the store.
type Coordinator struct {
	store  store.Store
	source rpc.Source
	keys   *group.KeyManager

	// RSABits is the size of generated identity keys.
	RSABits int

	contacts *listener.Registry[ContactListener]
}

// NewCoordinator creates a Coordinator. km decrypts and renews group keys.
func NewCoordinator(st store.Store, source rpc.Source, km *group.KeyManager) *Coordinator {
	return &Coordinator{
		store:    st,
		source:   source,
		keys:     km,
		RSABits:  defaultRSABits,
		contacts: listener.NewRegistry[ContactListener](),
	}
}

// AddContactListener registers l for contact changes.
func (c *Coordinator) AddContactListener(l ContactListener) listener.Handle {
	return c.contacts.Add(l)
}

// RemoveContactListener unregisters a contact listener.
func (c *Coordinator) RemoveContactListener(h listener.Handle) bool {
	return c.contacts.Remove(h)
}

func (c *Coordinator) notify(contact *model.Contact) {
	c.contacts.Each(func(l ContactListener) { l(contact.Clone()) })
}

// Sync publishes the local key and presence and then performs a full resync
// of presences, relationships, groups and group members. Every step is
// attempted; the returned error joins the failures.
func (c *Coordinator) Sync(ctx context.Context) error {
	srv, err := c.source.Server()
	if err != nil {
		return err
	}
	var errs []error
	fail := func(step string, err error) {
		logrus.WithFields(logrus.Fields{
			"function": "Sync",
			"step":     step,
			"error":    err.Error(),
		}).Warn("Sync step failed")
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
	}

	if err := c.publishSelf(ctx, srv); err != nil {
		fail("publish", err)
	}

	presences, err := srv.GetPresences(ctx, model.Epoch)
	if err != nil {
		fail(rpc.MethodGetPresences, err)
	}
	for _, p := range presences {
		if err := c.UpdatePresence(ctx, p); err != nil {
			fail(rpc.MethodGetPresences, err)
		}
	}

	relationships, err := srv.GetRelationships(ctx, model.Epoch)
	if err != nil {
		fail(rpc.MethodGetRelationships, err)
	}
	for _, r := range relationships {
		if err := c.UpdateRelationship(ctx, r); err != nil {
			fail(rpc.MethodGetRelationships, err)
		}
	}

	groups, err := srv.GetGroups(ctx, model.Epoch)
	if err != nil {
		fail(rpc.MethodGetGroups, err)
	}
	for _, g := range groups {
		if err := c.UpdateGroup(ctx, g); err != nil {
			fail(rpc.MethodGetGroups, err)
		}
	}

	known, err := c.store.ListContacts(ctx, model.KindGroup)
	if err != nil {
		fail("list groups", err)
	}
	for _, contact := range known {
		groupID := contact.Key()
		members, err := srv.GetGroupMembers(ctx, groupID, model.Epoch)
		if err != nil {
			fail(rpc.MethodGetGroupMembers+" "+groupID, err)
			continue
		}
		for _, m := range members {
			if err := c.UpdateGroupMember(ctx, m); err != nil {
				fail(rpc.MethodGetGroupMembers+" "+groupID, err)
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Sync",
		"presences":     len(presences),
		"relationships": len(relationships),
		"groups":        len(groups),
		"failures":      len(errs),
	}).Info("Contact sync finished")
	return errors.Join(errs...)
}

func (c *Coordinator) selfID(ctx context.Context) string {
	self, err := c.store.LoadSelf(ctx)
	if err != nil {
		return ""
	}
	return self.Key()
}

// UpdatePresence merges a presence record into the matching peer, creating
// the peer when it is unknown. A changed key id refreshes the peer's public
// key.
func (c *Coordinator) UpdatePresence(ctx context.Context, p *model.Presence) error {
	if p == nil || p.ClientID == "" {
		return nil
	}
	if p.ClientID == c.selfID(ctx) {
		return nil
	}
	contact, created, err := c.findOrCreatePeer(ctx, p.ClientID)
	if err != nil {
		return err
	}
	peer := contact.MustPeer()
	if peer.Presence == nil {
		peer.Presence = &model.Presence{ClientID: p.ClientID}
	}
	peer.Presence.Merge(p)

	keyChanged := false
	if keyID := peer.Presence.KeyID; keyID != "" && (peer.PublicKey == nil || peer.PublicKey.KeyID != keyID) {
		if _, err := c.keys.Keyring().Fetch(ctx, contact, keyID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "UpdatePresence",
				"client_id": p.ClientID,
				"key_id":    keyID,
				"error":     err.Error(),
			}).Warn("Failed to refresh public key")
		} else {
			keyChanged = true
		}
	}
	if err := c.store.SaveContact(ctx, contact); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "UpdatePresence",
		"client_id":   p.ClientID,
		"created":     created,
		"key_changed": keyChanged,
	}).Debug("Presence applied")
	c.notify(contact)
	if keyChanged {
		c.renewGroupsOf(ctx, p.ClientID)
	}
	return nil
}

// renewGroupsOf schedules renewal of every administered group in which
// clientID holds a key wrapped for an older public key.
func (c *Coordinator) renewGroupsOf(ctx context.Context, clientID string) {
	selfID := c.selfID(ctx)
	groups, err := c.store.ListContacts(ctx, model.KindGroup)
	if err != nil {
		return
	}
	for _, contact := range groups {
		g := contact.MustGroup()
		m, ok := g.Members[clientID]
		if !ok {
			continue
		}
		if reason := c.keys.ShouldRenew(ctx, selfID, g, m, m); reason != "" {
			c.keys.ScheduleRenewal(g.GroupID, reason)
		}
	}
}

func (c *Coordinator) findOrCreatePeer(ctx context.Context, clientID string) (*model.Contact, bool, error) {
	contact, err := c.store.FindContact(ctx, model.KindPeer, clientID)
	if err == nil {
		return contact, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	return model.NewPeer(clientID), true, nil
}

// UpdateRelationship applies a relationship record of the local identity.
func (c *Coordinator) UpdateRelationship(ctx context.Context, r *model.Relationship) error {
	if r == nil || r.OtherClientID == "" {
		return nil
	}
	if selfID := c.selfID(ctx); r.ClientID != "" && r.ClientID != selfID {
		logrus.WithFields(logrus.Fields{
			"function":  "UpdateRelationship",
			"client_id": r.ClientID,
		}).Warn("Ignoring relationship of another client")
		return nil
	}
	contact, _, err := c.findOrCreatePeer(ctx, r.OtherClientID)
	if err != nil {
		return err
	}
	peer := contact.MustPeer()
	if prev := peer.Relationship; prev != nil && r.LastChanged.Before(prev.LastChanged) {
		logrus.WithFields(logrus.Fields{
			"function":       "UpdateRelationship",
			"other":          r.OtherClientID,
			"state":          r.State,
			"previous_state": prev.State,
			"previous_time":  prev.LastChanged,
			"update_time":    r.LastChanged,
		}).Warn("Relationship update is older than the stored state")
	}
	rel := *r
	peer.Relationship = &rel
	if err := c.store.SaveContact(ctx, contact); err != nil {
		return err
	}
	c.notify(contact)
	return nil
}

// UpdateGroup merges group presence into the matching group contact,
// creating it when unknown.
func (c *Coordinator) UpdateGroup(ctx context.Context, g *model.GroupPresence) error {
	if g == nil || g.GroupID == "" {
		return nil
	}
	contact, err := c.store.FindContact(ctx, model.KindGroup, g.GroupID)
	if errors.Is(err, store.ErrNotFound) {
		contact = model.NewGroup(g.GroupID)
	} else if err != nil {
		return err
	}
	details := contact.MustGroup()
	if details.Presence == nil {
		details.Presence = &model.GroupPresence{GroupID: g.GroupID}
	}
	details.Presence.Merge(g)
	if details.Presence.State == model.GroupNone {
		details.GroupKey = nil
	}
	if err := c.store.SaveContact(ctx, contact); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "UpdateGroup",
		"group_id": g.GroupID,
		"state":    details.Presence.State,
	}).Debug("Group applied")
	c.notify(contact)
	return nil
}

// UpdateGroupMember stores a membership record. Records for the local
// identity update the group key; an administering identity may schedule a
// key renewal. Records of unknown groups are dropped.
func (c *Coordinator) UpdateGroupMember(ctx context.Context, m *model.GroupMember) error {
	if m == nil || m.GroupID == "" || m.ClientID == "" {
		return nil
	}
	contact, err := c.store.FindContact(ctx, model.KindGroup, m.GroupID)
	if errors.Is(err, store.ErrNotFound) {
		logrus.WithFields(logrus.Fields{
			"function":  "UpdateGroupMember",
			"group_id":  m.GroupID,
			"client_id": m.ClientID,
		}).Warn("Dropping member update for unknown group")
		return fmt.Errorf("%w: %s", ErrUnknownGroup, m.GroupID)
	} else if err != nil {
		return err
	}
	selfID := c.selfID(ctx)
	g := contact.MustGroup()
	if g.Members == nil {
		g.Members = make(map[string]*model.GroupMember)
	}

	var previous *model.GroupMember
	if p, ok := g.Members[m.ClientID]; ok {
		cp := *p
		previous = &cp
	}
	current := *m
	g.Members[m.ClientID] = &current

	if m.ClientID == selfID {
		// failures leave the key absent and are logged by DecryptForSelf
		_ = c.keys.DecryptForSelf(ctx, contact, &current)
	} else if peer, created, err := c.findOrCreatePeer(ctx, m.ClientID); err == nil && created {
		if err := c.store.SaveContact(ctx, peer); err != nil {
			return err
		}
	}

	if err := c.store.SaveContact(ctx, contact); err != nil {
		return err
	}
	c.notify(contact)

	if reason := c.keys.ShouldRenew(ctx, selfID, g, previous, &current); reason != "" {
		c.keys.ScheduleRenewal(m.GroupID, reason)
	}
	return nil
}
