package model

import (
	"fmt"
	"time"
)

// Epoch is the "since" value that requests a full resync.
var Epoch = time.Unix(0, 0).UTC()

// Kind identifies a contact variant.
type Kind uint8

const (
	// KindSelf is the local identity.
	KindSelf Kind = iota + 1
	// KindPeer is another client.
	KindPeer
	// KindGroup is a group conversation.
	KindGroup
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSelf:
		return "self"
	case KindPeer:
		return "peer"
	case KindGroup:
		return "group"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Variant is the variant-specific part of a Contact. It is implemented only by
// *SelfDetails, *PeerDetails and *GroupDetails.
type Variant interface {
	Kind() Kind
	key() string
}

// Contact is an identity record owned by the local client.
type Contact struct {
	ID      int64
	Deleted bool
	Created time.Time
	Variant Variant
}

// Credentials is the SRP salt and secret of the local identity.
type Credentials struct {
	Salt   string `json:"salt"`
	Secret string `json:"secret"`
}

// SelfDetails holds the local identity.
type SelfDetails struct {
	ClientID    string
	Registered  bool
	Credentials *Credentials
	Presence    *Presence
	// KeyID references the current private key in the store.
	KeyID     string
	PublicKey *Key
}

// PeerDetails holds another client.
type PeerDetails struct {
	ClientID     string
	Presence     *Presence
	Relationship *Relationship
	PublicKey    *Key
}

// GroupDetails holds a group conversation.
type GroupDetails struct {
	GroupID  string
	Presence *GroupPresence
	Members  map[string]*GroupMember
	// GroupKey is present only after it has been received or generated locally.
	GroupKey []byte
}

// Kind implements Variant.
func (*SelfDetails) Kind() Kind { return KindSelf }

// Kind implements Variant.
func (*PeerDetails) Kind() Kind { return KindPeer }

// Kind implements Variant.
func (*GroupDetails) Kind() Kind { return KindGroup }

func (s *SelfDetails) key() string  { return s.ClientID }
func (p *PeerDetails) key() string  { return p.ClientID }
func (g *GroupDetails) key() string { return g.GroupID }

// NewSelf creates an unregistered self contact.
func NewSelf() *Contact {
	return &Contact{Created: time.Now(), Variant: &SelfDetails{Presence: &Presence{}}}
}

// NewPeer creates a peer contact for clientID.
func NewPeer(clientID string) *Contact {
	return &Contact{
		Created: time.Now(),
		Variant: &PeerDetails{
			ClientID: clientID,
			Presence: &Presence{ClientID: clientID},
		},
	}
}

// NewGroup creates a group contact for groupID.
func NewGroup(groupID string) *Contact {
	return &Contact{
		Created: time.Now(),
		Variant: &GroupDetails{
			GroupID:  groupID,
			Presence: &GroupPresence{GroupID: groupID},
			Members:  make(map[string]*GroupMember),
		},
	}
}

// Kind returns the variant kind.
func (c *Contact) Kind() Kind {
	if c.Variant == nil {
		return 0
	}
	return c.Variant.Kind()
}

// Key returns the client id for self and peer contacts and the group id for groups.
func (c *Contact) Key() string {
	if c.Variant == nil {
		return ""
	}
	return c.Variant.key()
}

// AsSelf returns the self details if c is the local identity.
func (c *Contact) AsSelf() (*SelfDetails, bool) {
	s, ok := c.Variant.(*SelfDetails)
	return s, ok
}

// AsPeer returns the peer details if c is a peer.
func (c *Contact) AsPeer() (*PeerDetails, bool) {
	p, ok := c.Variant.(*PeerDetails)
	return p, ok
}

// AsGroup returns the group details if c is a group.
func (c *Contact) AsGroup() (*GroupDetails, bool) {
	g, ok := c.Variant.(*GroupDetails)
	return g, ok
}

// MustSelf returns the self details or panics.
func (c *Contact) MustSelf() *SelfDetails {
	s, ok := c.AsSelf()
	if !ok {
		panic(fmt.Sprintf("model: contact %d is a %s contact, not self", c.ID, c.Kind()))
	}
	return s
}

// MustPeer returns the peer details or panics.
func (c *Contact) MustPeer() *PeerDetails {
	p, ok := c.AsPeer()
	if !ok {
		panic(fmt.Sprintf("model: contact %d is a %s contact, not peer", c.ID, c.Kind()))
	}
	return p
}

// MustGroup returns the group details or panics.
func (c *Contact) MustGroup() *GroupDetails {
	g, ok := c.AsGroup()
	if !ok {
		panic(fmt.Sprintf("model: contact %d is a %s contact, not group", c.ID, c.Kind()))
	}
	return g
}

// IsAdmin reports whether clientID administers the group.
func (g *GroupDetails) IsAdmin(clientID string) bool {
	if m, ok := g.Members[clientID]; ok && m.Role == RoleAdmin {
		return true
	}
	if g.Presence != nil {
		for _, admin := range g.Presence.Admins {
			if admin == clientID {
				return true
			}
		}
	}
	return false
}

// JoinedMembers returns the members whose state is joined.
func (g *GroupDetails) JoinedMembers() []*GroupMember {
	joined := make([]*GroupMember, 0, len(g.Members))
	for _, m := range g.Members {
		if m.State == MemberJoined {
			joined = append(joined, m)
		}
	}
	return joined
}
