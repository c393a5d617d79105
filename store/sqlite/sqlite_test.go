package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xotalk.db")
	s, err := Open(context.Background(), path, []byte("passphrase"))
	require.NoError(t, err)
	return s, path
}

func TestContactsPersistAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	self := model.NewSelf()
	sd := self.MustSelf()
	sd.ClientID = "me"
	sd.Registered = true
	sd.Credentials = &model.Credentials{Salt: "aa", Secret: "bb"}
	require.NoError(t, s.SaveContact(ctx, self))
	assert.NotZero(t, self.ID)

	group := model.NewGroup("g1")
	gd := group.MustGroup()
	gd.GroupKey = []byte{1, 2, 3}
	gd.Members["me"] = &model.GroupMember{GroupID: "g1", ClientID: "me", Role: model.RoleAdmin, State: model.MemberJoined}
	require.NoError(t, s.SaveContact(ctx, group))
	require.NoError(t, s.Close())

	s, err := Open(ctx, path, []byte("passphrase"))
	require.NoError(t, err)
	defer s.Close()

	loaded, err := s.LoadSelf(ctx)
	require.NoError(t, err)
	assert.Equal(t, self.ID, loaded.ID)
	assert.Equal(t, "me", loaded.MustSelf().ClientID)
	assert.Equal(t, "bb", loaded.MustSelf().Credentials.Secret)

	g, err := s.FindContact(ctx, model.KindGroup, "g1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, g.MustGroup().GroupKey)
	assert.True(t, g.MustGroup().IsAdmin("me"))
}

func TestWrongPassphraseCannotRead(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.SaveContact(ctx, model.NewPeer("p1")))
	require.NoError(t, s.Close())

	s, err := Open(ctx, path, []byte("other"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.FindContact(ctx, model.KindPeer, "p1")
	assert.ErrorIs(t, err, crypto.ErrVaultOpen)
}

func TestContactUpdateKeepsID(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	self := model.NewSelf()
	require.NoError(t, s.SaveContact(ctx, self))
	id := self.ID

	self.MustSelf().ClientID = "assigned"
	require.NoError(t, s.SaveContact(ctx, self))
	assert.Equal(t, id, self.ID)

	found, err := s.FindContact(ctx, model.KindSelf, "assigned")
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	all, err := s.ListContacts(ctx, model.KindSelf)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	base := time.Unix(1700000000, 0).UTC()
	out := &model.ClientMessage{
		Tag: "t1", ConversationKey: "p1", Text: "hello", Created: base,
		Delivery: &model.Delivery{State: model.DeliveryNew, ReceiverID: "p1"},
		Upload:   &model.Upload{TransferID: "u1", Key: []byte{9, 9}},
	}
	in := &model.ClientMessage{
		Tag: "t2", MessageID: "m2", ConversationKey: "p1", Incoming: true, Text: "hi", Created: base.Add(time.Second),
		Delivery: &model.Delivery{State: model.DeliveryDelivering},
	}
	require.NoError(t, s.SaveMessage(ctx, out))
	require.NoError(t, s.SaveMessage(ctx, in))

	pending, err := s.PendingMessages(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "hello", pending[0].Text)
	assert.Equal(t, []byte{9, 9}, pending[0].Upload.Key)

	unseen, err := s.UnseenMessages(ctx)
	require.NoError(t, err)
	require.Len(t, unseen, 1)

	in.Seen = true
	require.NoError(t, s.SaveMessage(ctx, in))
	unseen, err = s.UnseenMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, unseen)

	byID, err := s.FindMessageByID(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "t2", byID.Tag)
	assert.True(t, base.Add(time.Second).Equal(byID.Created))

	_, err = s.FindMessageByTag(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	conv, err := s.ListMessages(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "t1", conv[0].Tag)
}

func TestPrivateKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	_, err := s.LoadPrivateKey(ctx, "k1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.SavePrivateKey(ctx, &model.PrivateKey{KeyID: "k1", Key: "secret"}))
	k, err := s.LoadPrivateKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "secret", k.Key)
}

func TestInvalidUTF8DoesNotBreakReads(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	base := time.Unix(1700000000, 0).UTC()
	bad := &model.ClientMessage{
		Tag: "t1", MessageID: "m1", ConversationKey: "p1", Incoming: true, Text: "\xff\xfehi", Created: base,
		Delivery: &model.Delivery{State: model.DeliveryDelivering},
	}
	good := &model.ClientMessage{
		Tag: "t2", MessageID: "m2", ConversationKey: "p1", Incoming: true, Text: "hello", Created: base.Add(time.Second),
		Delivery: &model.Delivery{State: model.DeliveryDelivering},
	}
	require.NoError(t, s.SaveMessage(ctx, bad))
	require.NoError(t, s.SaveMessage(ctx, good))

	unseen, err := s.UnseenMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, unseen, 2)

	byID, err := s.FindMessageByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "\xff\xfehi", byID.Text)

	conv, err := s.ListMessages(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, conv, 2)
}
