package store

import (
	"context"
	"sort"
	"sync"

	"github.com/opd-ai/xotalk/model"
)

// Memory is an in-memory Store.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	contacts map[int64]*model.Contact
	messages map[string]*model.ClientMessage
	keys     map[string]*model.PrivateKey
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		contacts: make(map[int64]*model.Contact),
		messages: make(map[string]*model.ClientMessage),
		keys:     make(map[string]*model.PrivateKey),
	}
}

// LoadSelf implements Store.
func (m *Memory) LoadSelf(ctx context.Context) (*model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.sortedContacts() {
		if c.Kind() == model.KindSelf {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// FindContact implements Store.
func (m *Memory) FindContact(ctx context.Context, kind model.Kind, key string) (*model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.sortedContacts() {
		if c.Kind() == kind && c.Key() == key {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// ListContacts implements Store.
func (m *Memory) ListContacts(ctx context.Context, kind model.Kind) ([]*model.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Contact
	for _, c := range m.sortedContacts() {
		if c.Kind() == kind {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// SaveContact implements Store.
func (m *Memory) SaveContact(ctx context.Context, contact *model.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if contact.ID == 0 {
		m.nextID++
		contact.ID = m.nextID
	} else if contact.ID > m.nextID {
		m.nextID = contact.ID
	}
	m.contacts[contact.ID] = contact.Clone()
	return nil
}

func (m *Memory) sortedContacts() []*model.Contact {
	out := make([]*model.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindMessageByTag implements Store.
func (m *Memory) FindMessageByTag(ctx context.Context, tag string) (*model.ClientMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if msg, ok := m.messages[tag]; ok {
		return msg.Clone(), nil
	}
	return nil, ErrNotFound
}

// FindMessageByID implements Store.
func (m *Memory) FindMessageByID(ctx context.Context, messageID string) (*model.ClientMessage, error) {
	if messageID == "" {
		return nil, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages {
		if msg.MessageID == messageID {
			return msg.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// SaveMessage implements Store.
func (m *Memory) SaveMessage(ctx context.Context, message *model.ClientMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.Tag] = message.Clone()
	return nil
}

// PendingMessages implements Store.
func (m *Memory) PendingMessages(ctx context.Context) ([]*model.ClientMessage, error) {
	return m.filterMessages(func(msg *model.ClientMessage) bool { return msg.IsPendingDelivery() }), nil
}

// UnseenMessages implements Store.
func (m *Memory) UnseenMessages(ctx context.Context) ([]*model.ClientMessage, error) {
	return m.filterMessages(func(msg *model.ClientMessage) bool { return msg.Incoming && !msg.Seen }), nil
}

// ListMessages implements Store.
func (m *Memory) ListMessages(ctx context.Context, conversationKey string) ([]*model.ClientMessage, error) {
	return m.filterMessages(func(msg *model.ClientMessage) bool { return msg.ConversationKey == conversationKey }), nil
}

func (m *Memory) filterMessages(keep func(*model.ClientMessage) bool) []*model.ClientMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ClientMessage
	for _, msg := range m.messages {
		if keep(msg) {
			out = append(out, msg.Clone())
		}
	}
	SortMessages(out)
	return out
}

// SavePrivateKey implements Store.
func (m *Memory) SavePrivateKey(ctx context.Context, key *model.PrivateKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := *key
	m.keys[key.KeyID] = &k
	return nil
}

// LoadPrivateKey implements Store.
func (m *Memory) LoadPrivateKey(ctx context.Context, keyID string) (*model.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[keyID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *k
	return &out, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

// SortMessages orders messages by creation time, then tag.
func SortMessages(msgs []*model.ClientMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Created.Equal(msgs[j].Created) {
			return msgs[i].Tag < msgs[j].Tag
		}
		return msgs[i].Created.Before(msgs[j].Created)
	})
}
