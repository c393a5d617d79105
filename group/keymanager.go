package group

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/store"
	"github.com/sirupsen/logrus"
)

// Renewal reasons reported by ShouldRenew.
const (
	ReasonMemberJoined = "member joined"
	ReasonMissingKey   = "member has no group key"
	ReasonStaleKey     = "member key is stale"
	ReasonLocalKeyLost = "local group key missing"
)

var (
	// ErrNotAdmin is returned when a renewal is attempted by a non-admin.
	ErrNotAdmin = errors.New("not an admin of the group")
	// ErrGroupDeleted is returned when renewing a group that no longer exists.
	ErrGroupDeleted = errors.New("group deleted")
)

// DefaultRenewTimeout bounds a scheduled renewal.
const DefaultRenewTimeout = 60 * time.Second

// KeyManager decrypts group keys received for the local identity and
// distributes fresh keys when membership changes.
type KeyManager struct {
	store   store.Store
	source  rpc.Source
	exec    executor.Executor
	keyring *Keyring

	// Timeout bounds each scheduled renewal.
	Timeout time.Duration
	// OnRenewed, if set, is called after every scheduled renewal.
	OnRenewed func(groupID string, distributed int, err error)

	mu      sync.Mutex
	pending map[string]bool
	running map[string]bool
	rerun   map[string]bool
}

// NewKeyManager creates a KeyManager that runs scheduled renewals on exec.
func NewKeyManager(st store.Store, source rpc.Source, exec executor.Executor) *KeyManager {
	return &KeyManager{
		store:   st,
		source:  source,
		exec:    exec,
		keyring: NewKeyring(st, source),
		Timeout: DefaultRenewTimeout,
		pending: make(map[string]bool),
		running: make(map[string]bool),
		rerun:   make(map[string]bool),
	}
}

// Keyring returns the keyring used for key resolution.
func (km *KeyManager) Keyring() *Keyring {
	return km.keyring
}

// DecryptForSelf updates the group key of contact from member, the local
// identity's membership record. The contact is modified in place and not
// saved. A member that is not joined or carries no key clears the group key.
// On failure the group key is left absent and the error is returned.
func (km *KeyManager) DecryptForSelf(ctx context.Context, contact *model.Contact, member *model.GroupMember) error {
	g := contact.MustGroup()
	if member.State != model.MemberJoined || !member.HasGroupKey() {
		g.GroupKey = nil
		return nil
	}

	fields := logrus.Fields{
		"function": "DecryptForSelf",
		"group_id": g.GroupID,
		"key_id":   member.MemberKeyID,
	}
	key, err := km.unwrap(ctx, member)
	if err != nil {
		g.GroupKey = nil
		logrus.WithFields(fields).WithError(err).Warn("Failed to decrypt group key")
		return err
	}
	g.GroupKey = key
	logrus.WithFields(fields).Debug("Group key decrypted")
	return nil
}

func (km *KeyManager) unwrap(ctx context.Context, member *model.GroupMember) ([]byte, error) {
	priv, err := km.keyring.PrivateKey(ctx, member.MemberKeyID)
	if err != nil {
		return nil, err
	}
	wrapped, err := base64.StdEncoding.DecodeString(member.EncryptedGroupKey)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed group key: %v", crypto.ErrDecrypt, err)
	}
	key, err := crypto.UnwrapKey(priv, wrapped)
	if err != nil {
		return nil, err
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w: group key has %d bytes", crypto.ErrDecrypt, len(key))
	}
	return key, nil
}

// ShouldRenew reports why the local identity selfID has to renew the key of
// group after current replaced previous (nil for a new record). It returns
// the empty string when no renewal is needed.
func (km *KeyManager) ShouldRenew(ctx context.Context, selfID string, group *model.GroupDetails, previous, current *model.GroupMember) string {
	if !group.IsAdmin(selfID) {
		return ""
	}
	if group.Presence != nil && group.Presence.State == model.GroupNone {
		return ""
	}
	if current.State != model.MemberJoined {
		return ""
	}
	switch {
	case previous != nil && previous.State != model.MemberJoined:
		return ReasonMemberJoined
	case previous == nil:
		// A member first seen during a full sync may already hold the
		// current key; only the checks below apply to it then.
		if !current.HasGroupKey() || len(group.GroupKey) == 0 {
			return ReasonMemberJoined
		}
	}
	if !current.HasGroupKey() {
		return ReasonMissingKey
	}
	if len(group.GroupKey) == 0 {
		return ReasonLocalKeyLost
	}
	if keyID := km.currentKeyID(ctx, selfID, current.ClientID); keyID != "" && keyID != current.MemberKeyID {
		return ReasonStaleKey
	}
	return ""
}

// currentKeyID returns the key id clientID currently advertises, as far as
// the store knows it.
func (km *KeyManager) currentKeyID(ctx context.Context, selfID, clientID string) string {
	if clientID == selfID {
		self, err := km.store.LoadSelf(ctx)
		if err != nil {
			return ""
		}
		return self.MustSelf().KeyID
	}
	contact, err := km.store.FindContact(ctx, model.KindPeer, clientID)
	if err != nil {
		return ""
	}
	peer := contact.MustPeer()
	if peer.Presence != nil && peer.Presence.KeyID != "" {
		return peer.Presence.KeyID
	}
	if peer.PublicKey != nil {
		return peer.PublicKey.KeyID
	}
	return ""
}

// ScheduleRenewal posts a renewal of groupID to the executor unless one is
// already pending. A trigger arriving while a renewal runs schedules one more
// renewal after it finishes.
func (km *KeyManager) ScheduleRenewal(groupID, reason string) {
	km.mu.Lock()
	if km.pending[groupID] {
		km.mu.Unlock()
		return
	}
	km.pending[groupID] = true
	km.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "ScheduleRenewal",
		"group_id": groupID,
		"reason":   reason,
	}).Info("Group key renewal scheduled")
	km.exec.Execute(func() { km.runScheduled(groupID) })
}

// Pending reports whether a renewal of groupID is queued.
func (km *KeyManager) Pending(groupID string) bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.pending[groupID]
}

func (km *KeyManager) runScheduled(groupID string) {
	km.mu.Lock()
	delete(km.pending, groupID)
	if km.running[groupID] {
		km.rerun[groupID] = true
		km.mu.Unlock()
		return
	}
	km.running[groupID] = true
	km.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), km.Timeout)
	n, err := km.Renew(ctx, groupID)
	cancel()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runScheduled",
			"group_id": groupID,
			"error":    err.Error(),
		}).Warn("Group key renewal failed")
	}
	if km.OnRenewed != nil {
		km.OnRenewed(groupID, n, err)
	}

	km.mu.Lock()
	delete(km.running, groupID)
	again := km.rerun[groupID]
	delete(km.rerun, groupID)
	km.mu.Unlock()
	if again {
		km.ScheduleRenewal(groupID, "retriggered during renewal")
	}
}

// Renew generates a fresh group key, stores it locally and distributes it to
// every joined member with a known public key. It returns the number of
// members the key was delivered to. Members without a key, and members whose
// upload fails, are logged and skipped.
func (km *KeyManager) Renew(ctx context.Context, groupID string) (int, error) {
	srv, err := km.source.Server()
	if err != nil {
		return 0, err
	}
	self, err := km.store.LoadSelf(ctx)
	if err != nil {
		return 0, fmt.Errorf("renew %s: %w", groupID, err)
	}
	selfID := self.Key()

	contact, err := km.store.FindContact(ctx, model.KindGroup, groupID)
	if err != nil {
		return 0, fmt.Errorf("renew %s: %w", groupID, err)
	}
	g := contact.MustGroup()
	if g.Presence != nil && g.Presence.State == model.GroupNone {
		return 0, ErrGroupDeleted
	}
	if !g.IsAdmin(selfID) {
		return 0, ErrNotAdmin
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return 0, err
	}
	g.GroupKey = key

	members := g.JoinedMembers()
	sort.Slice(members, func(i, j int) bool { return members[i].ClientID < members[j].ClientID })

	distributed := 0
	for _, m := range members {
		fields := logrus.Fields{
			"function":  "Renew",
			"group_id":  groupID,
			"client_id": m.ClientID,
		}
		pubKey, pub, err := km.keyring.PublicKey(ctx, m.ClientID)
		if err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Skipping member without public key")
			continue
		}
		wrapped, err := crypto.WrapKey(pub, key)
		if err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Skipping member, key wrapping failed")
			continue
		}
		encoded := base64.StdEncoding.EncodeToString(wrapped)
		if err := srv.UpdateGroupKey(ctx, groupID, m.ClientID, pubKey.KeyID, encoded); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Failed to upload group key")
			continue
		}
		m.MemberKeyID = pubKey.KeyID
		m.EncryptedGroupKey = encoded
		distributed++
	}

	if err := km.store.SaveContact(ctx, contact); err != nil {
		return distributed, fmt.Errorf("renew %s: %w", groupID, err)
	}
	logrus.WithFields(logrus.Fields{
		"function":    "Renew",
		"group_id":    groupID,
		"members":     len(members),
		"distributed": distributed,
	}).Info("Group key renewed")
	return distributed, nil
}
