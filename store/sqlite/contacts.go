package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/store"
)

type contactRow struct {
	Deleted bool
	Created time.Time
	Kind    model.Kind
	Self    *model.SelfDetails
	Peer    *model.PeerDetails
	Group   *model.GroupDetails
}

func toRow(c *model.Contact) (*contactRow, error) {
	row := &contactRow{Deleted: c.Deleted, Created: c.Created, Kind: c.Kind()}
	switch v := c.Variant.(type) {
	case *model.SelfDetails:
		row.Self = v
	case *model.PeerDetails:
		row.Peer = v
	case *model.GroupDetails:
		row.Group = v
	default:
		return nil, fmt.Errorf("contact %d has no variant", c.ID)
	}
	return row, nil
}

func (r *contactRow) contact(id int64) (*model.Contact, error) {
	c := &model.Contact{ID: id, Deleted: r.Deleted, Created: r.Created}
	switch {
	case r.Self != nil:
		c.Variant = r.Self
	case r.Peer != nil:
		c.Variant = r.Peer
	case r.Group != nil:
		if r.Group.Members == nil {
			r.Group.Members = make(map[string]*model.GroupMember)
		}
		c.Variant = r.Group
	default:
		return nil, fmt.Errorf("contact %d has no variant", id)
	}
	return c, nil
}

// LoadSelf implements store.Store.
func (s *Store) LoadSelf(ctx context.Context) (*model.Contact, error) {
	return s.queryContact(ctx, `SELECT id, data FROM contacts WHERE kind = ? ORDER BY id LIMIT 1`, model.KindSelf)
}

// FindContact implements store.Store.
func (s *Store) FindContact(ctx context.Context, kind model.Kind, key string) (*model.Contact, error) {
	return s.queryContact(ctx, `SELECT id, data FROM contacts WHERE kind = ? AND key = ? ORDER BY id LIMIT 1`, kind, key)
}

func (s *Store) queryContact(ctx context.Context, query string, args ...any) (*model.Contact, error) {
	var id int64
	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contact: %w", err)
	}
	var row contactRow
	if err := s.open(data, &row); err != nil {
		return nil, err
	}
	return row.contact(id)
}

// ListContacts implements store.Store.
func (s *Store) ListContacts(ctx context.Context, kind model.Kind) ([]*model.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM contacts WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	var out []*model.Contact
	for rows.Next() {
		var id int64
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		var row contactRow
		if err := s.open(data, &row); err != nil {
			return nil, err
		}
		c, err := row.contact(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveContact implements store.Store.
func (s *Store) SaveContact(ctx context.Context, contact *model.Contact) error {
	row, err := toRow(contact)
	if err != nil {
		return err
	}
	data, err := s.seal(row)
	if err != nil {
		return err
	}

	if contact.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO contacts (kind, key, data) VALUES (?, ?, ?)`,
			contact.Kind(), contact.Key(), data)
		if err != nil {
			return fmt.Errorf("failed to insert contact: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read contact id: %w", err)
		}
		contact.ID = id
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO contacts (id, kind, key, data) VALUES (?, ?, ?, ?)`,
		contact.ID, contact.Kind(), contact.Key(), data)
	if err != nil {
		return fmt.Errorf("failed to save contact: %w", err)
	}
	return nil
}
