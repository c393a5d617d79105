package model

import "time"

// Group states.
const (
	GroupExists = "exists"
	GroupNone   = "none"
)

// Member roles and states.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	MemberInvited = "invited"
	MemberJoined  = "joined"
	MemberNone    = "none"
)

// GroupPresence is the shared metadata of a group.
type GroupPresence struct {
	GroupID        string    `json:"groupId"`
	GroupName      string    `json:"groupName,omitempty"`
	GroupTag       string    `json:"groupTag,omitempty"`
	GroupAvatarURL string    `json:"groupAvatarUrl,omitempty"`
	State          string    `json:"state,omitempty"`
	Admins         []string  `json:"admins,omitempty"`
	LastChanged    time.Time `json:"lastChanged"`
}

// Merge copies every field that is set in update into g.
func (g *GroupPresence) Merge(update *GroupPresence) {
	if update == nil {
		return
	}
	if update.GroupID != "" {
		g.GroupID = update.GroupID
	}
	if update.GroupName != "" {
		g.GroupName = update.GroupName
	}
	if update.GroupTag != "" {
		g.GroupTag = update.GroupTag
	}
	if update.GroupAvatarURL != "" {
		g.GroupAvatarURL = update.GroupAvatarURL
	}
	if update.State != "" {
		g.State = update.State
	}
	if update.Admins != nil {
		g.Admins = append([]string(nil), update.Admins...)
	}
	if !update.LastChanged.IsZero() {
		g.LastChanged = update.LastChanged
	}
}

// GroupMember is one membership record per (group, client) pair. It carries the
// group key wrapped for that member and the id of the key used for wrapping.
type GroupMember struct {
	GroupID           string    `json:"groupId"`
	ClientID          string    `json:"clientId"`
	Role              string    `json:"role,omitempty"`
	State             string    `json:"state,omitempty"`
	MemberKeyID       string    `json:"memberKeyId,omitempty"`
	EncryptedGroupKey string    `json:"encryptedGroupKey,omitempty"`
	LastChanged       time.Time `json:"lastChanged"`
}

// HasGroupKey reports whether the member record carries a wrapped group key.
func (m *GroupMember) HasGroupKey() bool {
	return m.EncryptedGroupKey != "" && m.MemberKeyID != ""
}
