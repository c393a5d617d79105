package store

import (
	"context"
	"testing"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryContacts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.LoadSelf(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	self := model.NewSelf()
	require.NoError(t, s.SaveContact(ctx, self))
	assert.NotZero(t, self.ID)

	peer := model.NewPeer("p1")
	require.NoError(t, s.SaveContact(ctx, peer))
	group := model.NewGroup("g1")
	require.NoError(t, s.SaveContact(ctx, group))

	loaded, err := s.LoadSelf(ctx)
	require.NoError(t, err)
	assert.Equal(t, self.ID, loaded.ID)

	found, err := s.FindContact(ctx, model.KindPeer, "p1")
	require.NoError(t, err)
	assert.Equal(t, peer.ID, found.ID)

	_, err = s.FindContact(ctx, model.KindGroup, "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	groups, err := s.ListContacts(ctx, model.KindGroup)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g1", groups[0].Key())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	peer := model.NewPeer("p1")
	require.NoError(t, s.SaveContact(ctx, peer))

	loaded, err := s.FindContact(ctx, model.KindPeer, "p1")
	require.NoError(t, err)
	loaded.MustPeer().Presence.ClientName = "changed"

	again, err := s.FindContact(ctx, model.KindPeer, "p1")
	require.NoError(t, err)
	assert.Empty(t, again.MustPeer().Presence.ClientName)
}

func TestMemoryMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Unix(1000, 0)

	out := &model.ClientMessage{
		Tag: "t1", ConversationKey: "p1", Created: base,
		Delivery: &model.Delivery{State: model.DeliveryNew},
	}
	in := &model.ClientMessage{
		Tag: "t2", MessageID: "m2", ConversationKey: "p1", Incoming: true, Created: base.Add(time.Second),
		Delivery: &model.Delivery{State: model.DeliveryDelivering},
	}
	require.NoError(t, s.SaveMessage(ctx, in))
	require.NoError(t, s.SaveMessage(ctx, out))

	pending, err := s.PendingMessages(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t1", pending[0].Tag)

	unseen, err := s.UnseenMessages(ctx)
	require.NoError(t, err)
	require.Len(t, unseen, 1)
	assert.Equal(t, "t2", unseen[0].Tag)

	byID, err := s.FindMessageByID(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "t2", byID.Tag)

	_, err = s.FindMessageByID(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	conv, err := s.ListMessages(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "t1", conv[0].Tag)
	assert.Equal(t, "t2", conv[1].Tag)
}

func TestMemoryPrivateKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	_, err := s.LoadPrivateKey(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SavePrivateKey(ctx, &model.PrivateKey{KeyID: "k", Key: "pkcs8"}))
	k, err := s.LoadPrivateKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "pkcs8", k.Key)
}
