package xotalk

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	testsim "github.com/opd-ai/xotalk/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 10 * time.Second

func waitActive(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == StateActive }, eventually, 10*time.Millisecond)
}

func clientID(t *testing.T, c *Client) string {
	t.Helper()
	self, err := c.Self(context.Background())
	require.NoError(t, err)
	return self.Key()
}

func findContact(c *Client, kind model.Kind, key string) *model.Contact {
	contacts, err := c.Contacts(context.Background(), kind)
	if err != nil {
		return nil
	}
	for _, contact := range contacts {
		if contact.Key() == key {
			return contact
		}
	}
	return nil
}

// offer sends v without blocking the listener's executor.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

// pair activates both clients and pairs them through a token of alice.
func pair(t *testing.T, alice, bob *Client) (string, string) {
	t.Helper()
	ctx := context.Background()
	alice.Activate()
	bob.Activate()
	waitActive(t, alice)
	waitActive(t, bob)
	aliceID, bobID := clientID(t, alice), clientID(t, bob)

	token, err := alice.GenerateToken(ctx, "pairing", time.Minute)
	require.NoError(t, err)
	ok, err := bob.PairByToken(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)

	related := func(c *Client, other string) func() bool {
		return func() bool {
			contact := findContact(c, model.KindPeer, other)
			if contact == nil {
				return false
			}
			peer := contact.MustPeer()
			return peer.Relationship != nil && peer.Relationship.State == model.RelationshipRelated &&
				peer.PublicKey != nil
		}
	}
	require.Eventually(t, related(alice, bobID), eventually, 10*time.Millisecond)
	require.Eventually(t, related(bob, aliceID), eventually, 10*time.Millisecond)
	return aliceID, bobID
}

func TestMessageBetweenPairedClients(t *testing.T) {
	relay := testsim.NewSimulatedRelay()
	alice, _ := newSerialClient(t, relay)
	bob, _ := newSerialClient(t, relay)
	aliceID, bobID := pair(t, alice, bob)

	received := make(chan *model.ClientMessage, 4)
	bob.AddMessageListener(func(msg *model.ClientMessage, isNew bool) {
		if isNew && msg.Incoming {
			offer(received, msg)
		}
	})
	var lastUnseen atomic.Int64
	lastUnseen.Store(-1)
	bob.AddUnseenListener(func(msgs []*model.ClientMessage) { lastUnseen.Store(int64(len(msgs))) })

	sent, err := alice.SendMessage(context.Background(), bobID, "hello bob", nil)
	require.NoError(t, err)
	assert.Equal(t, bobID, sent.ConversationKey)

	var msg *model.ClientMessage
	select {
	case msg = <-received:
	case <-time.After(eventually):
		t.Fatal("message not received")
	}
	assert.Equal(t, "hello bob", msg.Text)
	assert.Equal(t, aliceID, msg.SenderKey)
	assert.False(t, msg.Seen)

	require.Eventually(t, func() bool {
		msgs, err := alice.Messages(context.Background(), bobID)
		if err != nil || len(msgs) != 1 || msgs[0].Delivery == nil {
			return false
		}
		state := msgs[0].Delivery.State
		return state == model.DeliveryDelivered || state == model.DeliveryConfirmed
	}, eventually, 10*time.Millisecond)

	pending, err := bob.Unseen(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, bob.MarkAsSeen(context.Background(), msg.Tag))
	pending, err = bob.Unseen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Eventually(t, func() bool { return lastUnseen.Load() == 0 }, eventually, 10*time.Millisecond)
}

func TestMessagesQueueWhileOffline(t *testing.T) {
	relay := testsim.NewSimulatedRelay()
	alice, _ := newSerialClient(t, relay)
	bob, _ := newSerialClient(t, relay)
	_, bobID := pair(t, alice, bob)

	alice.Deactivate()
	require.Eventually(t, func() bool { return alice.State() == StateInactive }, eventually, 10*time.Millisecond)

	_, err := alice.SendMessage(context.Background(), bobID, "written offline", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, len(relay.GetDeliveryLog()))

	received := make(chan string, 1)
	bob.AddMessageListener(func(msg *model.ClientMessage, isNew bool) {
		if isNew && msg.Incoming {
			offer(received, msg.Text)
		}
	})
	alice.Activate()
	select {
	case text := <-received:
		assert.Equal(t, "written offline", text)
	case <-time.After(eventually):
		t.Fatal("queued message not delivered after activation")
	}
}

func TestSendToUnknownContactFails(t *testing.T) {
	alice, _ := newSerialClient(t, testsim.NewSimulatedRelay())
	_, err := alice.SendMessage(context.Background(), "nobody", "hi", nil)
	assert.Error(t, err)
}

func TestRelayOperationsNeedConnection(t *testing.T) {
	alice, _ := newSerialClient(t, testsim.NewSimulatedRelay())
	ctx := context.Background()

	_, err := alice.GenerateToken(ctx, "pairing", time.Minute)
	assert.ErrorIs(t, err, rpc.ErrNotConnected)
	_, err = alice.CreateGroup(ctx, "friends")
	assert.ErrorIs(t, err, rpc.ErrNotConnected)
	assert.ErrorIs(t, alice.BlockContact(ctx, "someone"), rpc.ErrNotConnected)

	_, err = alice.GenerateToken(ctx, "pairing", time.Millisecond)
	assert.Error(t, err)
}

func TestPresenceIsKeptWhileOffline(t *testing.T) {
	relay := testsim.NewSimulatedRelay()
	alice, _ := newSerialClient(t, relay)
	bob, _ := newSerialClient(t, relay)
	aliceID, _ := pair(t, alice, bob)

	alice.Deactivate()
	require.Eventually(t, func() bool { return alice.State() == StateInactive }, eventually, 10*time.Millisecond)
	require.NoError(t, alice.SetPresence(context.Background(), &model.Presence{ClientName: "Alice"}))

	alice.Activate()
	require.Eventually(t, func() bool {
		contact := findContact(bob, model.KindPeer, aliceID)
		if contact == nil {
			return false
		}
		p := contact.MustPeer().Presence
		return p != nil && p.ClientName == "Alice"
	}, eventually, 10*time.Millisecond)
}

func TestBlockAndDepair(t *testing.T) {
	relay := testsim.NewSimulatedRelay()
	alice, _ := newSerialClient(t, relay)
	bob, _ := newSerialClient(t, relay)
	_, bobID := pair(t, alice, bob)
	ctx := context.Background()

	state := func() string {
		contact := findContact(alice, model.KindPeer, bobID)
		if contact == nil || contact.MustPeer().Relationship == nil {
			return ""
		}
		return contact.MustPeer().Relationship.State
	}

	require.NoError(t, alice.BlockContact(ctx, bobID))
	require.Eventually(t, func() bool { return state() == model.RelationshipBlocked }, eventually, 10*time.Millisecond)
	require.NoError(t, alice.UnblockContact(ctx, bobID))
	require.NoError(t, alice.DepairContact(ctx, bobID))
	require.Eventually(t, func() bool { return state() == model.RelationshipNone }, eventually, 10*time.Millisecond)
}

func TestGroupConversation(t *testing.T) {
	relay := testsim.NewSimulatedRelay()
	alice, _ := newSerialClient(t, relay)
	bob, _ := newSerialClient(t, relay)
	_, bobID := pair(t, alice, bob)
	ctx := context.Background()

	groupID, err := alice.CreateGroup(ctx, "hikers")
	require.NoError(t, err)
	hasKey := func(c *Client) func() bool {
		return func() bool {
			contact := findContact(c, model.KindGroup, groupID)
			return contact != nil && len(contact.MustGroup().GroupKey) > 0
		}
	}
	require.Eventually(t, hasKey(alice), eventually, 10*time.Millisecond)

	require.NoError(t, alice.InviteGroupMember(ctx, groupID, bobID))
	require.Eventually(t, func() bool { return findContact(bob, model.KindGroup, groupID) != nil }, eventually, 10*time.Millisecond)
	require.NoError(t, bob.JoinGroup(ctx, groupID))
	require.Eventually(t, hasKey(bob), eventually, 10*time.Millisecond)

	received := make(chan string, 1)
	bob.AddMessageListener(func(msg *model.ClientMessage, isNew bool) {
		if isNew && msg.Incoming {
			offer(received, msg.Text)
		}
	})
	_, err = alice.SendMessage(ctx, groupID, "summit at dawn", nil)
	require.NoError(t, err)
	select {
	case text := <-received:
		assert.Equal(t, "summit at dawn", text)
	case <-time.After(eventually):
		t.Fatal("group message not received")
	}

	require.NoError(t, bob.LeaveGroup(ctx, groupID))
	require.NoError(t, alice.DeleteGroup(ctx, groupID))
	require.Eventually(t, func() bool {
		contact := findContact(alice, model.KindGroup, groupID)
		return contact != nil && contact.MustGroup().Presence.State == model.GroupNone
	}, eventually, 10*time.Millisecond)
}

func TestRegenerateKeyPairPublishes(t *testing.T) {
	relay := testsim.NewSimulatedRelay()
	alice, _ := newSerialClient(t, relay)
	bob, _ := newSerialClient(t, relay)
	aliceID, _ := pair(t, alice, bob)

	before, err := alice.Self(context.Background())
	require.NoError(t, err)
	require.NoError(t, alice.RegenerateKeyPair(context.Background()))
	after, err := alice.Self(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, before.MustSelf().KeyID, after.MustSelf().KeyID)

	require.Eventually(t, func() bool {
		contact := findContact(bob, model.KindPeer, aliceID)
		return contact != nil && contact.MustPeer().PublicKey != nil &&
			contact.MustPeer().PublicKey.KeyID == after.MustSelf().KeyID
	}, eventually, 10*time.Millisecond)
}
