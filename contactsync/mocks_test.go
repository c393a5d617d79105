package contactsync

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	testsim "github.com/opd-ai/xotalk/testing"
)

// mockServer serves canned sync lists. Unimplemented methods panic through
// the nil embedded interface.
type mockServer struct {
	rpc.Server

	mu            sync.Mutex
	presences     []*model.Presence
	relationships []*model.Relationship
	groups        []*model.GroupPresence
	members       map[string][]*model.GroupMember
	memberErrors  map[string]error
	keys          map[string]*model.Key

	publishedKeys     []*model.Key
	publishedPresence []*model.Presence
	groupKeyUploads   []string
	since             []time.Time
}

func newMockServer() *mockServer {
	return &mockServer{
		members:      make(map[string][]*model.GroupMember),
		memberErrors: make(map[string]error),
		keys:         make(map[string]*model.Key),
	}
}

func (m *mockServer) UpdateKey(ctx context.Context, key *model.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.publishedKeys = append(m.publishedKeys, &cp)
	return nil
}

func (m *mockServer) UpdatePresence(ctx context.Context, presence *model.Presence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *presence
	m.publishedPresence = append(m.publishedPresence, &cp)
	return nil
}

func (m *mockServer) GetPresences(ctx context.Context, since time.Time) ([]*model.Presence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	return m.presences, nil
}

func (m *mockServer) GetRelationships(ctx context.Context, since time.Time) ([]*model.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	return m.relationships, nil
}

func (m *mockServer) GetGroups(ctx context.Context, since time.Time) ([]*model.GroupPresence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	return m.groups, nil
}

func (m *mockServer) GetGroupMembers(ctx context.Context, groupID string, since time.Time) ([]*model.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	if err := m.memberErrors[groupID]; err != nil {
		return nil, err
	}
	return m.members[groupID], nil
}

func (m *mockServer) GetKey(ctx context.Context, clientID, keyID string) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[clientID+"/"+keyID]
	if !ok {
		return nil, testsim.ErrNotFound
	}
	cp := *key
	return &cp, nil
}

func (m *mockServer) UpdateGroupKey(ctx context.Context, groupID, clientID, keyID, encryptedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groupKeyUploads = append(m.groupKeyUploads, groupID+"/"+clientID)
	return nil
}

func (m *mockServer) uploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.groupKeyUploads...)
}
