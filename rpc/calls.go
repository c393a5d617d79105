package rpc

import (
	"context"
	"time"

	"github.com/opd-ai/xotalk/model"
)

var _ Server = (*Proxy)(nil)

// Ping implements Server.
func (p *Proxy) Ping(ctx context.Context) error {
	return p.Call(ctx, MethodPing, nil)
}

// GenerateID implements Server.
func (p *Proxy) GenerateID(ctx context.Context) (string, error) {
	var id string
	err := p.Call(ctx, MethodGenerateID, &id)
	return id, err
}

// SRPRegister implements Server.
func (p *Proxy) SRPRegister(ctx context.Context, verifier, salt string) error {
	return p.Call(ctx, MethodSRPRegister, nil, verifier, salt)
}

// SRPPhase1 implements Server.
func (p *Proxy) SRPPhase1(ctx context.Context, clientID, publicA string) (string, error) {
	var b string
	err := p.Call(ctx, MethodSRPPhase1, &b, clientID, publicA)
	return b, err
}

// SRPPhase2 implements Server.
func (p *Proxy) SRPPhase2(ctx context.Context, clientProof string) (string, error) {
	var proof string
	err := p.Call(ctx, MethodSRPPhase2, &proof, clientProof)
	return proof, err
}

// Ready implements Server.
func (p *Proxy) Ready(ctx context.Context) error {
	return p.Call(ctx, MethodReady, nil)
}

// GetPresences implements Server.
func (p *Proxy) GetPresences(ctx context.Context, since time.Time) ([]*model.Presence, error) {
	var out []*model.Presence
	err := p.Call(ctx, MethodGetPresences, &out, since)
	return out, err
}

// GetRelationships implements Server.
func (p *Proxy) GetRelationships(ctx context.Context, since time.Time) ([]*model.Relationship, error) {
	var out []*model.Relationship
	err := p.Call(ctx, MethodGetRelationships, &out, since)
	return out, err
}

// GetGroups implements Server.
func (p *Proxy) GetGroups(ctx context.Context, since time.Time) ([]*model.GroupPresence, error) {
	var out []*model.GroupPresence
	err := p.Call(ctx, MethodGetGroups, &out, since)
	return out, err
}

// GetGroupMembers implements Server.
func (p *Proxy) GetGroupMembers(ctx context.Context, groupID string, since time.Time) ([]*model.GroupMember, error) {
	var out []*model.GroupMember
	err := p.Call(ctx, MethodGetGroupMembers, &out, groupID, since)
	return out, err
}

// UpdatePresence implements Server.
func (p *Proxy) UpdatePresence(ctx context.Context, presence *model.Presence) error {
	return p.Call(ctx, MethodUpdatePresence, nil, presence)
}

// UpdateKey implements Server.
func (p *Proxy) UpdateKey(ctx context.Context, key *model.Key) error {
	return p.Call(ctx, MethodUpdateKey, nil, key)
}

// GetKey implements Server.
func (p *Proxy) GetKey(ctx context.Context, clientID, keyID string) (*model.Key, error) {
	var key model.Key
	if err := p.Call(ctx, MethodGetKey, &key, clientID, keyID); err != nil {
		return nil, err
	}
	return &key, nil
}

// UpdateGroup implements Server.
func (p *Proxy) UpdateGroup(ctx context.Context, group *model.GroupPresence) error {
	return p.Call(ctx, MethodUpdateGroup, nil, group)
}

// UpdateGroupKey implements Server.
func (p *Proxy) UpdateGroupKey(ctx context.Context, groupID, clientID, keyID, encryptedKey string) error {
	return p.Call(ctx, MethodUpdateGroupKey, nil, groupID, clientID, keyID, encryptedKey)
}

// CreateGroup implements Server.
func (p *Proxy) CreateGroup(ctx context.Context, group *model.GroupPresence) (string, error) {
	var id string
	err := p.Call(ctx, MethodCreateGroup, &id, group)
	return id, err
}

// JoinGroup implements Server.
func (p *Proxy) JoinGroup(ctx context.Context, groupID string) error {
	return p.Call(ctx, MethodJoinGroup, nil, groupID)
}

// LeaveGroup implements Server.
func (p *Proxy) LeaveGroup(ctx context.Context, groupID string) error {
	return p.Call(ctx, MethodLeaveGroup, nil, groupID)
}

// InviteGroupMember implements Server.
func (p *Proxy) InviteGroupMember(ctx context.Context, groupID, clientID string) error {
	return p.Call(ctx, MethodInviteGroupMember, nil, groupID, clientID)
}

// RemoveGroupMember implements Server.
func (p *Proxy) RemoveGroupMember(ctx context.Context, groupID, clientID string) error {
	return p.Call(ctx, MethodRemoveGroupMember, nil, groupID, clientID)
}

// DeleteGroup implements Server.
func (p *Proxy) DeleteGroup(ctx context.Context, groupID string) error {
	return p.Call(ctx, MethodDeleteGroup, nil, groupID)
}

// DeliveryRequest implements Server.
func (p *Proxy) DeliveryRequest(ctx context.Context, message *model.Message, deliveries []*model.Delivery) ([]*model.Delivery, error) {
	var out []*model.Delivery
	err := p.Call(ctx, MethodDeliveryRequest, &out, message, deliveries)
	return out, err
}

// DeliveryAcknowledge implements Server.
func (p *Proxy) DeliveryAcknowledge(ctx context.Context, messageID, receiverID string) (*model.Delivery, error) {
	var d model.Delivery
	if err := p.Call(ctx, MethodDeliveryAcknowledge, &d, messageID, receiverID); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeliveryConfirm implements Server.
func (p *Proxy) DeliveryConfirm(ctx context.Context, messageID string) (*model.Delivery, error) {
	var d model.Delivery
	if err := p.Call(ctx, MethodDeliveryConfirm, &d, messageID); err != nil {
		return nil, err
	}
	return &d, nil
}

// GenerateToken implements Server.
func (p *Proxy) GenerateToken(ctx context.Context, purpose string, lifetimeSeconds int) (string, error) {
	var token string
	err := p.Call(ctx, MethodGenerateToken, &token, purpose, lifetimeSeconds)
	return token, err
}

// PairByToken implements Server.
func (p *Proxy) PairByToken(ctx context.Context, secret string) (bool, error) {
	var ok bool
	err := p.Call(ctx, MethodPairByToken, &ok, secret)
	return ok, err
}

// DepairClient implements Server.
func (p *Proxy) DepairClient(ctx context.Context, clientID string) error {
	return p.Call(ctx, MethodDepairClient, nil, clientID)
}

// BlockClient implements Server.
func (p *Proxy) BlockClient(ctx context.Context, clientID string) error {
	return p.Call(ctx, MethodBlockClient, nil, clientID)
}

// UnblockClient implements Server.
func (p *Proxy) UnblockClient(ctx context.Context, clientID string) error {
	return p.Call(ctx, MethodUnblockClient, nil, clientID)
}

// CreateFileForStorage implements Server.
func (p *Proxy) CreateFileForStorage(ctx context.Context, contentSize int64) (*model.FileHandles, error) {
	var h model.FileHandles
	if err := p.Call(ctx, MethodCreateFileForStorage, &h, contentSize); err != nil {
		return nil, err
	}
	return &h, nil
}
