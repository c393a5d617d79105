package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/opd-ai/xotalk/model"
)

// ErrNotConnected is returned by a Source when no connection is open.
var ErrNotConnected = errors.New("rpc: not connected")

// Method names of calls made by the client.
const (
	MethodPing                 = "ping"
	MethodGenerateID           = "generateId"
	MethodSRPRegister          = "srpRegister"
	MethodSRPPhase1            = "srpPhase1"
	MethodSRPPhase2            = "srpPhase2"
	MethodReady                = "ready"
	MethodGetPresences         = "getPresences"
	MethodGetRelationships     = "getRelationships"
	MethodGetGroups            = "getGroups"
	MethodGetGroupMembers      = "getGroupMembers"
	MethodUpdatePresence       = "updatePresence"
	MethodUpdateKey            = "updateKey"
	MethodGetKey               = "getKey"
	MethodUpdateGroup          = "updateGroup"
	MethodUpdateGroupKey       = "updateGroupKey"
	MethodCreateGroup          = "createGroup"
	MethodJoinGroup            = "joinGroup"
	MethodLeaveGroup           = "leaveGroup"
	MethodInviteGroupMember    = "inviteGroupMember"
	MethodRemoveGroupMember    = "removeGroupMember"
	MethodDeleteGroup          = "deleteGroup"
	MethodDeliveryRequest      = "deliveryRequest"
	MethodDeliveryAcknowledge  = "deliveryAcknowledge"
	MethodDeliveryConfirm      = "deliveryConfirm"
	MethodGenerateToken        = "generateToken"
	MethodPairByToken          = "pairByToken"
	MethodDepairClient         = "depairClient"
	MethodBlockClient          = "blockClient"
	MethodUnblockClient        = "unblockClient"
	MethodCreateFileForStorage = "createFileForStorage"
)

// Method names of pushes sent by the relay.
const (
	NotifyIncomingDelivery    = "incomingDelivery"
	NotifyOutgoingDelivery    = "outgoingDelivery"
	NotifyPresenceUpdated     = "presenceUpdated"
	NotifyRelationshipUpdated = "relationshipUpdated"
	NotifyGroupUpdated        = "groupUpdated"
	NotifyGroupMemberUpdated  = "groupMemberUpdated"
	NotifyAlertUser           = "alertUser"
)

// Server is the relay as seen from the client. Binary values (SRP numbers,
// verifier, salt) travel as lowercase hex strings.
type Server interface {
	Ping(ctx context.Context) error

	GenerateID(ctx context.Context) (string, error)
	SRPRegister(ctx context.Context, verifier, salt string) error
	SRPPhase1(ctx context.Context, clientID, publicA string) (string, error)
	SRPPhase2(ctx context.Context, clientProof string) (string, error)
	// Ready tells the relay that sync finished and deliveries may be pushed.
	Ready(ctx context.Context) error

	GetPresences(ctx context.Context, since time.Time) ([]*model.Presence, error)
	GetRelationships(ctx context.Context, since time.Time) ([]*model.Relationship, error)
	GetGroups(ctx context.Context, since time.Time) ([]*model.GroupPresence, error)
	GetGroupMembers(ctx context.Context, groupID string, since time.Time) ([]*model.GroupMember, error)

	UpdatePresence(ctx context.Context, presence *model.Presence) error
	UpdateKey(ctx context.Context, key *model.Key) error
	GetKey(ctx context.Context, clientID, keyID string) (*model.Key, error)

	UpdateGroup(ctx context.Context, group *model.GroupPresence) error
	UpdateGroupKey(ctx context.Context, groupID, clientID, keyID, encryptedKey string) error
	CreateGroup(ctx context.Context, group *model.GroupPresence) (string, error)
	JoinGroup(ctx context.Context, groupID string) error
	LeaveGroup(ctx context.Context, groupID string) error
	InviteGroupMember(ctx context.Context, groupID, clientID string) error
	RemoveGroupMember(ctx context.Context, groupID, clientID string) error
	DeleteGroup(ctx context.Context, groupID string) error

	DeliveryRequest(ctx context.Context, message *model.Message, deliveries []*model.Delivery) ([]*model.Delivery, error)
	DeliveryAcknowledge(ctx context.Context, messageID, receiverID string) (*model.Delivery, error)
	DeliveryConfirm(ctx context.Context, messageID string) (*model.Delivery, error)

	GenerateToken(ctx context.Context, purpose string, lifetimeSeconds int) (string, error)
	PairByToken(ctx context.Context, secret string) (bool, error)
	DepairClient(ctx context.Context, clientID string) error
	BlockClient(ctx context.Context, clientID string) error
	UnblockClient(ctx context.Context, clientID string) error

	CreateFileForStorage(ctx context.Context, contentSize int64) (*model.FileHandles, error)
}

// NotificationHandler receives relay pushes. Methods are called on the
// transport's read goroutine and must not block.
type NotificationHandler interface {
	IncomingDelivery(delivery *model.Delivery, message *model.Message)
	OutgoingDelivery(delivery *model.Delivery)
	PresenceUpdated(presence *model.Presence)
	RelationshipUpdated(relationship *model.Relationship)
	GroupUpdated(group *model.GroupPresence)
	GroupMemberUpdated(member *model.GroupMember)
	AlertUser(message string)
}

// Source yields the Server of the current connection.
type Source interface {
	Server() (Server, error)
}

// StaticSource is a Source that always returns the same Server.
type StaticSource struct {
	S Server
}

// Server implements Source.
func (s StaticSource) Server() (Server, error) {
	if s.S == nil {
		return nil, ErrNotConnected
	}
	return s.S, nil
}
