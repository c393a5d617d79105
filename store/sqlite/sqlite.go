// Package sqlite implements store.Store on an embedded SQLite database.
//
// Lookup columns (kind, key, tag, message id, flags) are stored in the clear.
// Every record body is CBOR encoded and sealed with a crypto.Vault derived
// from the passphrase given to Open; the vault salt lives in the meta table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/store"
)

const driverName = "sqlite"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		name TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind INTEGER NOT NULL,
		key TEXT NOT NULL,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		tag TEXT PRIMARY KEY,
		message_id TEXT NOT NULL DEFAULT '',
		conversation TEXT NOT NULL,
		pending INTEGER NOT NULL DEFAULT 0,
		unseen INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL,
		data BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS private_keys (
		key_id TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_contacts_kind_key ON contacts(kind, key)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation, created)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(pending)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unseen ON messages(unseen)`,
}

// Store is a store.Store backed by SQLite.
type Store struct {
	db    *sql.DB
	vault *crypto.Vault
	enc   cbor.EncMode
	dec   cbor.DecMode
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database. The passphrase slice is wiped.
func Open(ctx context.Context, path string, passphrase []byte) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx, passphrase); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context, passphrase []byte) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "init",
				"error":    err.Error(),
			}).Warn("Failed to create index")
		}
	}

	salt, err := s.vaultSalt(ctx)
	if err != nil {
		return err
	}
	vault, err := crypto.NewVault(passphrase, salt)
	if err != nil {
		return fmt.Errorf("failed to derive vault key: %w", err)
	}
	s.vault = vault

	s.enc, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	// strings from the relay are stored as received and may hold invalid UTF-8
	s.dec, err = cbor.DecOptions{UTF8: cbor.UTF8DecodeInvalid}.DecMode()
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return nil
}

func (s *Store) vaultSalt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = 'vault_salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read vault salt: %w", err)
	}
	salt, err = crypto.NewVaultSalt()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO meta (name, value) VALUES ('vault_salt', ?)`, salt); err != nil {
		return nil, fmt.Errorf("failed to store vault salt: %w", err)
	}
	return salt, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.vault != nil {
		s.vault.Close()
	}
	return s.db.Close()
}

func (s *Store) seal(v any) ([]byte, error) {
	plain, err := s.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	defer crypto.ZeroBytes(plain)
	return s.vault.Seal(plain)
}

func (s *Store) open(data []byte, v any) error {
	plain, err := s.vault.Open(data)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(plain)
	if err := s.dec.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
