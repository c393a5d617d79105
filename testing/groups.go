package testing

import (
	"context"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
)

func (s *session) CreateGroup(ctx context.Context, group *model.GroupPresence) (string, error) {
	if err := s.begin(rpc.MethodCreateGroup, true); err != nil {
		return "", err
	}
	r := s.relay
	now := time.Now()
	g := *group
	g.GroupID = newID()
	g.State = model.GroupExists
	g.Admins = []string{s.clientID}
	g.LastChanged = now
	r.groups[g.GroupID] = &g

	m := &model.GroupMember{
		GroupID:     g.GroupID,
		ClientID:    s.clientID,
		Role:        model.RoleAdmin,
		State:       model.MemberJoined,
		LastChanged: now,
	}
	r.members[g.GroupID] = map[string]*model.GroupMember{s.clientID: m}

	var p pushes
	audience := []string{s.clientID}
	r.pushGroupLocked(&p, audience, &g)
	r.pushMemberLocked(&p, audience, m)
	r.mu.Unlock()
	p.run()
	return g.GroupID, nil
}

func (s *session) UpdateGroup(ctx context.Context, group *model.GroupPresence) error {
	if err := s.begin(rpc.MethodUpdateGroup, true); err != nil {
		return err
	}
	r := s.relay
	g, ok := r.groups[group.GroupID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !r.isAdminLocked(group.GroupID, s.clientID) {
		r.mu.Unlock()
		return ErrNotPermitted
	}
	update := *group
	update.Admins = nil
	update.State = ""
	g.Merge(&update)
	g.LastChanged = time.Now()

	var p pushes
	r.pushGroupLocked(&p, r.groupAudienceLocked(g.GroupID), g)
	r.mu.Unlock()
	p.run()
	return nil
}

// changeMember applies fn to the member record of clientID and pushes the
// result to the group. fn may create the record.
func (s *session) changeMember(method, groupID, clientID string, needAdmin bool, fn func(m *model.GroupMember) error) error {
	if err := s.begin(method, true); err != nil {
		return err
	}
	r := s.relay
	g, ok := r.groups[groupID]
	if !ok || g.State != model.GroupExists {
		r.mu.Unlock()
		return ErrNotFound
	}
	if needAdmin && !r.isAdminLocked(groupID, s.clientID) {
		r.mu.Unlock()
		return ErrNotPermitted
	}
	m, ok := r.members[groupID][clientID]
	if !ok {
		m = &model.GroupMember{GroupID: groupID, ClientID: clientID, Role: model.RoleMember}
	}
	if err := fn(m); err != nil {
		r.mu.Unlock()
		return err
	}
	m.LastChanged = time.Now()
	r.members[groupID][clientID] = m

	var p pushes
	audience := r.groupAudienceLocked(groupID)
	if m.State == model.MemberNone {
		audience = append(audience, clientID)
	}
	if m.State == model.MemberInvited {
		r.pushGroupLocked(&p, []string{clientID}, g)
	}
	r.pushMemberLocked(&p, audience, m)
	r.mu.Unlock()
	p.run()
	return nil
}

func (s *session) InviteGroupMember(ctx context.Context, groupID, clientID string) error {
	return s.changeMember(rpc.MethodInviteGroupMember, groupID, clientID, true, func(m *model.GroupMember) error {
		if m.State == model.MemberJoined {
			return ErrNotPermitted
		}
		m.State = model.MemberInvited
		return nil
	})
}

func (s *session) JoinGroup(ctx context.Context, groupID string) error {
	return s.changeMember(rpc.MethodJoinGroup, groupID, s.clientID, false, func(m *model.GroupMember) error {
		if m.State != model.MemberInvited {
			return ErrNotPermitted
		}
		m.State = model.MemberJoined
		return nil
	})
}

func (s *session) LeaveGroup(ctx context.Context, groupID string) error {
	return s.changeMember(rpc.MethodLeaveGroup, groupID, s.clientID, false, func(m *model.GroupMember) error {
		m.State = model.MemberNone
		m.EncryptedGroupKey = ""
		m.MemberKeyID = ""
		return nil
	})
}

func (s *session) RemoveGroupMember(ctx context.Context, groupID, clientID string) error {
	return s.changeMember(rpc.MethodRemoveGroupMember, groupID, clientID, true, func(m *model.GroupMember) error {
		m.State = model.MemberNone
		m.EncryptedGroupKey = ""
		m.MemberKeyID = ""
		return nil
	})
}

func (s *session) UpdateGroupKey(ctx context.Context, groupID, clientID, keyID, encryptedKey string) error {
	return s.changeMember(rpc.MethodUpdateGroupKey, groupID, clientID, true, func(m *model.GroupMember) error {
		if m.State != model.MemberJoined {
			return ErrNotPermitted
		}
		m.MemberKeyID = keyID
		m.EncryptedGroupKey = encryptedKey
		return nil
	})
}

func (s *session) DeleteGroup(ctx context.Context, groupID string) error {
	if err := s.begin(rpc.MethodDeleteGroup, true); err != nil {
		return err
	}
	r := s.relay
	g, ok := r.groups[groupID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !r.isAdminLocked(groupID, s.clientID) {
		r.mu.Unlock()
		return ErrNotPermitted
	}
	g.State = model.GroupNone
	g.LastChanged = time.Now()

	var p pushes
	r.pushGroupLocked(&p, r.groupAudienceLocked(groupID), g)
	r.mu.Unlock()
	p.run()
	return nil
}
