package testing

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/srp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushLog struct {
	mu       sync.Mutex
	incoming []*model.Delivery
	outgoing []*model.Delivery
	members  []*model.GroupMember
	groups   []*model.GroupPresence
	rels     []*model.Relationship
	alerts   []string
}

func (l *pushLog) IncomingDelivery(d *model.Delivery, m *model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.incoming = append(l.incoming, d)
}

func (l *pushLog) OutgoingDelivery(d *model.Delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outgoing = append(l.outgoing, d)
}

func (l *pushLog) PresenceUpdated(*model.Presence) {}

func (l *pushLog) RelationshipUpdated(r *model.Relationship) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rels = append(l.rels, r)
}

func (l *pushLog) GroupUpdated(g *model.GroupPresence) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.groups = append(l.groups, g)
}

func (l *pushLog) GroupMemberUpdated(m *model.GroupMember) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.members = append(l.members, m)
}

func (l *pushLog) AlertUser(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, msg)
}

// register performs registration and login on a fresh connection.
func register(t *testing.T, relay *SimulatedRelay, log *pushLog) (rpc.Server, string) {
	t.Helper()
	ctx := context.Background()
	srv, err := relay.Connector().Connect(ctx, log, nil)
	require.NoError(t, err)

	id, err := srv.GenerateID(ctx)
	require.NoError(t, err)
	salt := []byte("0123456789abcdef0123456789abcdef")
	verifier := srp.Verifier(srp.RFC5054Group2048, salt, id, "secret")
	require.NoError(t, srv.SRPRegister(ctx, hex.EncodeToString(verifier), hex.EncodeToString(salt)))

	login(t, srv, id, salt, "secret")
	return srv, id
}

func login(t *testing.T, srv rpc.Server, id string, salt []byte, secret string) {
	t.Helper()
	ctx := context.Background()
	client, err := srp.NewClient(srp.RFC5054Group2048, salt, id, secret)
	require.NoError(t, err)
	B, err := srv.SRPPhase1(ctx, id, hex.EncodeToString(client.PublicA()))
	require.NoError(t, err)
	b, err := hex.DecodeString(B)
	require.NoError(t, err)
	m1, err := client.ProcessChallenge(b)
	require.NoError(t, err)
	m2hex, err := srv.SRPPhase2(ctx, hex.EncodeToString(m1))
	require.NoError(t, err)
	m2, err := hex.DecodeString(m2hex)
	require.NoError(t, err)
	require.NoError(t, client.VerifyServerProof(m2))
}

func TestRegisterAndLogin(t *testing.T) {
	relay := NewSimulatedRelay()
	_, id := register(t, relay, &pushLog{})
	assert.True(t, relay.IsRegistered(id))
	assert.Equal(t, 1, relay.CallCount(rpc.MethodSRPRegister))
}

func TestCallsRequireLogin(t *testing.T) {
	relay := NewSimulatedRelay()
	srv, err := relay.Connector().Connect(context.Background(), &pushLog{}, nil)
	require.NoError(t, err)
	_, err = srv.GetPresences(context.Background(), model.Epoch)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestWrongSecretFailsPhase2(t *testing.T) {
	relay := NewSimulatedRelay()
	srv, id := register(t, relay, &pushLog{})
	_ = srv

	ctx := context.Background()
	other, err := relay.Connector().Connect(ctx, &pushLog{}, nil)
	require.NoError(t, err)
	client, _ := srp.NewClient(srp.RFC5054Group2048, []byte("0123456789abcdef0123456789abcdef"), id, "wrong")
	B, err := other.SRPPhase1(ctx, id, hex.EncodeToString(client.PublicA()))
	require.NoError(t, err)
	b, _ := hex.DecodeString(B)
	m1, err := client.ProcessChallenge(b)
	require.NoError(t, err)
	_, err = other.SRPPhase2(ctx, hex.EncodeToString(m1))
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestFailNextAndFailConnect(t *testing.T) {
	relay := NewSimulatedRelay()
	boom := errors.New("boom")
	relay.FailConnect(boom)
	c := relay.Connector()

	_, err := c.Connect(context.Background(), &pushLog{}, nil)
	assert.ErrorIs(t, err, boom)

	srv, err := c.Connect(context.Background(), &pushLog{}, nil)
	require.NoError(t, err)
	relay.FailNext(rpc.MethodGenerateID, boom)
	_, err = srv.GenerateID(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = srv.GenerateID(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Dials())
}

func TestDisconnectCallsClosedOnce(t *testing.T) {
	relay := NewSimulatedRelay()
	c := relay.Connector()
	var calls []error
	srv, err := c.Connect(context.Background(), &pushLog{}, func(err error) { calls = append(calls, err) })
	require.NoError(t, err)

	require.NoError(t, c.Disconnect())
	relay.DropConnections(errors.New("late"))
	assert.Equal(t, []error{nil}, calls)

	assert.ErrorIs(t, srv.Ping(context.Background()), rpc.ErrClosed)
}

func TestDeliveryRoundTrip(t *testing.T) {
	relay := NewSimulatedRelay()
	aliceLog, bobLog := &pushLog{}, &pushLog{}
	alice, _ := register(t, relay, aliceLog)
	bob, bobID := register(t, relay, bobLog)
	ctx := context.Background()

	// bob is not ready, so the delivery is queued
	accepted, err := alice.DeliveryRequest(ctx, &model.Message{MessageTag: "t1", Body: "ct"},
		[]*model.Delivery{{MessageTag: "t1", ReceiverID: bobID, State: model.DeliveryNew}})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, model.DeliveryDelivering, accepted[0].State)
	messageID := accepted[0].MessageID
	assert.NotEmpty(t, messageID)
	assert.Empty(t, bobLog.incoming)

	require.NoError(t, bob.Ready(ctx))
	require.Len(t, bobLog.incoming, 1)
	assert.Equal(t, messageID, bobLog.incoming[0].MessageID)

	_, err = bob.DeliveryConfirm(ctx, messageID)
	require.NoError(t, err)
	require.Len(t, aliceLog.outgoing, 1)
	assert.Equal(t, model.DeliveryDelivered, aliceLog.outgoing[0].State)
	assert.Equal(t, "t1", aliceLog.outgoing[0].MessageTag)

	d, err := alice.DeliveryAcknowledge(ctx, messageID, bobID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryConfirmed, d.State)

	log := relay.GetDeliveryLog()
	require.Len(t, log, 1)
	assert.False(t, log[0].Pushed)
	assert.Equal(t, bobID, log[0].ReceiverID)
}

func TestGroupLifecycle(t *testing.T) {
	relay := NewSimulatedRelay()
	adminLog, memberLog := &pushLog{}, &pushLog{}
	admin, _ := register(t, relay, adminLog)
	member, memberID := register(t, relay, memberLog)
	ctx := context.Background()

	groupID, err := admin.CreateGroup(ctx, &model.GroupPresence{GroupName: "team"})
	require.NoError(t, err)
	require.NoError(t, admin.InviteGroupMember(ctx, groupID, memberID))
	require.NoError(t, member.JoinGroup(ctx, groupID))

	err = member.UpdateGroupKey(ctx, groupID, memberID, "k", "wrapped")
	assert.ErrorIs(t, err, ErrNotPermitted)

	require.NoError(t, admin.UpdateGroupKey(ctx, groupID, memberID, "k", "wrapped"))
	m, ok := relay.Member(groupID, memberID)
	require.True(t, ok)
	assert.Equal(t, "wrapped", m.EncryptedGroupKey)

	memberLog.mu.Lock()
	last := memberLog.members[len(memberLog.members)-1]
	memberLog.mu.Unlock()
	assert.Equal(t, "k", last.MemberKeyID)

	members, err := member.GetGroupMembers(ctx, groupID, model.Epoch)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, admin.DeleteGroup(ctx, groupID))
	groups, err := member.GetGroups(ctx, model.Epoch)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, model.GroupNone, groups[0].State)
}

func TestPairByToken(t *testing.T) {
	relay := NewSimulatedRelay()
	aliceLog, bobLog := &pushLog{}, &pushLog{}
	alice, aliceID := register(t, relay, aliceLog)
	bob, bobID := register(t, relay, bobLog)
	ctx := context.Background()

	token, err := alice.GenerateToken(ctx, "pair", 3600)
	require.NoError(t, err)

	ok, err := alice.PairByToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = bob.PairByToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	rels, err := alice.GetRelationships(ctx, model.Epoch)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, bobID, rels[0].OtherClientID)
	assert.Equal(t, model.RelationshipRelated, rels[0].State)
	require.Len(t, bobLog.rels, 1)
	assert.Equal(t, aliceID, bobLog.rels[0].OtherClientID)

	ok, err = bob.PairByToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)
}
