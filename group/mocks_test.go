package group

import (
	"context"
	"sync"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	testsim "github.com/opd-ai/xotalk/testing"
)

type groupKeyCall struct {
	GroupID      string
	ClientID     string
	KeyID        string
	EncryptedKey string
}

// mockServer records group key uploads and serves published keys. Methods
// not overridden panic through the nil embedded interface.
type mockServer struct {
	rpc.Server

	mu        sync.Mutex
	uploads   []groupKeyCall
	keys      map[string]*model.Key
	keyLookup int
	failFor   map[string]error
}

func newMockServer() *mockServer {
	return &mockServer{
		keys:    make(map[string]*model.Key),
		failFor: make(map[string]error),
	}
}

func (m *mockServer) UpdateGroupKey(ctx context.Context, groupID, clientID, keyID, encryptedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[clientID]; err != nil {
		return err
	}
	m.uploads = append(m.uploads, groupKeyCall{groupID, clientID, keyID, encryptedKey})
	return nil
}

func (m *mockServer) GetKey(ctx context.Context, clientID, keyID string) (*model.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyLookup++
	key, ok := m.keys[clientID+"/"+keyID]
	if !ok {
		return nil, testsim.ErrNotFound
	}
	copied := *key
	return &copied, nil
}

func (m *mockServer) calls() []groupKeyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]groupKeyCall(nil), m.uploads...)
}
