package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/store"
)

// FindMessageByTag implements store.Store.
func (s *Store) FindMessageByTag(ctx context.Context, tag string) (*model.ClientMessage, error) {
	return s.queryMessage(ctx, `SELECT data FROM messages WHERE tag = ?`, tag)
}

// FindMessageByID implements store.Store.
func (s *Store) FindMessageByID(ctx context.Context, messageID string) (*model.ClientMessage, error) {
	if messageID == "" {
		return nil, store.ErrNotFound
	}
	return s.queryMessage(ctx, `SELECT data FROM messages WHERE message_id = ? LIMIT 1`, messageID)
}

func (s *Store) queryMessage(ctx context.Context, query string, args ...any) (*model.ClientMessage, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	var msg model.ClientMessage
	if err := s.open(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SaveMessage implements store.Store.
func (s *Store) SaveMessage(ctx context.Context, message *model.ClientMessage) error {
	data, err := s.seal(message)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO messages (tag, message_id, conversation, pending, unseen, created, data)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		message.Tag,
		message.MessageID,
		message.ConversationKey,
		boolInt(message.IsPendingDelivery()),
		boolInt(message.Incoming && !message.Seen),
		message.Created.UnixNano(),
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// PendingMessages implements store.Store.
func (s *Store) PendingMessages(ctx context.Context) ([]*model.ClientMessage, error) {
	return s.queryMessages(ctx, `SELECT data FROM messages WHERE pending = 1 ORDER BY created, tag`)
}

// UnseenMessages implements store.Store.
func (s *Store) UnseenMessages(ctx context.Context) ([]*model.ClientMessage, error) {
	return s.queryMessages(ctx, `SELECT data FROM messages WHERE unseen = 1 ORDER BY created, tag`)
}

// ListMessages implements store.Store.
func (s *Store) ListMessages(ctx context.Context, conversationKey string) ([]*model.ClientMessage, error) {
	return s.queryMessages(ctx, `SELECT data FROM messages WHERE conversation = ? ORDER BY created, tag`, conversationKey)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]*model.ClientMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []*model.ClientMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var msg model.ClientMessage
		if err := s.open(data, &msg); err != nil {
			return nil, err
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// SavePrivateKey implements store.Store.
func (s *Store) SavePrivateKey(ctx context.Context, key *model.PrivateKey) error {
	data, err := s.seal(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO private_keys (key_id, data) VALUES (?, ?)`, key.KeyID, data); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	return nil
}

// LoadPrivateKey implements store.Store.
func (s *Store) LoadPrivateKey(ctx context.Context, keyID string) (*model.PrivateKey, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM private_keys WHERE key_id = ?`, keyID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query private key: %w", err)
	}
	var key model.PrivateKey
	if err := s.open(data, &key); err != nil {
		return nil, err
	}
	return &key, nil
}
