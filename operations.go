package xotalk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/transfer"
	"github.com/sirupsen/logrus"
)

// do runs fn on the executor and waits for it. The caller's context bounds
// both the wait and the work.
func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.closed.Load() {
		return ErrClosed
	}
	done := make(chan error, 1)
	c.exec.Execute(func() {
		if err := ctx.Err(); err != nil {
			done <- err
			return
		}
		done <- fn(ctx)
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// call runs fn against the open connection on the executor. It fails with
// rpc.ErrNotConnected unless the client is logged in.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context, srv rpc.Server) error) error {
	c.touch()
	return c.do(ctx, func(ctx context.Context) error {
		srv, err := c.Server()
		if err != nil {
			return err
		}
		return fn(ctx, srv)
	})
}

// SendMessage stores a message for the contact with key contactKey and
// delivers it once the client is active. upload may be nil.
func (c *Client) SendMessage(ctx context.Context, contactKey, text string, upload *model.Upload) (*model.ClientMessage, error) {
	var msg *model.ClientMessage
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		msg, err = c.messages.Compose(ctx, contactKey, text, upload)
		return err
	})
	if err != nil {
		return nil, err
	}
	// a deactivated client keeps the message queued until Activate
	if c.State() != StateInactive {
		c.Wake()
	} else {
		c.touch()
	}
	c.RequestDelivery()
	return msg, nil
}

// RequestDelivery queues a delivery pass for every pending outgoing message.
// It does nothing unless the client is active.
func (c *Client) RequestDelivery() {
	c.post(c.flush)
}

// MarkAsSeen marks the incoming message with tag as seen.
func (c *Client) MarkAsSeen(ctx context.Context, tag string) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.messages.MarkAsSeen(ctx, tag)
	})
}

// Unseen returns the incoming messages not yet marked seen.
func (c *Client) Unseen(ctx context.Context) ([]*model.ClientMessage, error) {
	var unseen []*model.ClientMessage
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		unseen, err = c.messages.Unseen(ctx)
		return err
	})
	return unseen, err
}

// Messages returns the messages of the conversation with key in creation
// order.
func (c *Client) Messages(ctx context.Context, key string) ([]*model.ClientMessage, error) {
	var msgs []*model.ClientMessage
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		msgs, err = c.store.ListMessages(ctx, key)
		return err
	})
	return msgs, err
}

// Self returns a copy of the local identity.
func (c *Client) Self(ctx context.Context) (*model.Contact, error) {
	var self *model.Contact
	err := c.do(ctx, func(ctx context.Context) error {
		s, err := c.store.LoadSelf(ctx)
		if err == nil {
			self = s.Clone()
		}
		return err
	})
	return self, err
}

// Contacts returns the stored contacts of kind.
func (c *Client) Contacts(ctx context.Context, kind model.Kind) ([]*model.Contact, error) {
	var contacts []*model.Contact
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		contacts, err = c.store.ListContacts(ctx, kind)
		return err
	})
	return contacts, err
}

// SetPresence merges update into the local presence. It is published at once
// when connected and with the next sync otherwise.
func (c *Client) SetPresence(ctx context.Context, update *model.Presence) error {
	c.touch()
	return c.do(ctx, func(ctx context.Context) error {
		return c.contacts.SetPresence(ctx, update)
	})
}

// RegenerateKeyPair replaces the identity key pair.
func (c *Client) RegenerateKeyPair(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.contacts.RegenerateKeyPair(ctx)
	})
}

// GenerateToken asks the relay for a pairing token valid for lifetime.
func (c *Client) GenerateToken(ctx context.Context, purpose string, lifetime time.Duration) (string, error) {
	if lifetime < time.Second {
		return "", fmt.Errorf("token lifetime %s below one second", lifetime)
	}
	var token string
	err := c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		var err error
		token, err = srv.GenerateToken(ctx, purpose, int(lifetime/time.Second))
		return err
	})
	return token, err
}

// PairByToken pairs with the client that generated secret. The resulting
// relationship arrives as a push.
func (c *Client) PairByToken(ctx context.Context, secret string) (bool, error) {
	var ok bool
	err := c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		var err error
		ok, err = srv.PairByToken(ctx, secret)
		return err
	})
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"function": "PairByToken",
			"paired":   ok,
		}).Info("Pairing finished")
	}
	return ok, err
}

// DepairContact ends the relationship with clientID.
func (c *Client) DepairContact(ctx context.Context, clientID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.DepairClient(ctx, clientID)
	})
}

// BlockContact blocks clientID.
func (c *Client) BlockContact(ctx context.Context, clientID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.BlockClient(ctx, clientID)
	})
}

// UnblockContact lifts a block of clientID.
func (c *Client) UnblockContact(ctx context.Context, clientID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.UnblockClient(ctx, clientID)
	})
}

// CreateGroup creates a group administered by the local identity and returns
// its id. The group and its first member arrive as pushes.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	var groupID string
	err := c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		var err error
		groupID, err = srv.CreateGroup(ctx, &model.GroupPresence{GroupName: name})
		return err
	})
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"function": "CreateGroup",
		"group_id": groupID,
	}).Info("Group created")
	return groupID, nil
}

// UpdateGroup publishes changed group presence fields.
func (c *Client) UpdateGroup(ctx context.Context, g *model.GroupPresence) error {
	if g == nil || g.GroupID == "" {
		return errors.New("update group: missing group id")
	}
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.UpdateGroup(ctx, g)
	})
}

// InviteGroupMember invites clientID into groupID.
func (c *Client) InviteGroupMember(ctx context.Context, groupID, clientID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.InviteGroupMember(ctx, groupID, clientID)
	})
}

// JoinGroup accepts an invitation into groupID.
func (c *Client) JoinGroup(ctx context.Context, groupID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.JoinGroup(ctx, groupID)
	})
}

// LeaveGroup leaves groupID.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.LeaveGroup(ctx, groupID)
	})
}

// RemoveGroupMember removes clientID from groupID.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, clientID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.RemoveGroupMember(ctx, groupID, clientID)
	})
}

// DeleteGroup deletes groupID.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	return c.call(ctx, func(ctx context.Context, srv rpc.Server) error {
		return srv.DeleteGroup(ctx, groupID)
	})
}

// Transfers returns a snapshot of every attachment transfer.
func (c *Client) Transfers() []transfer.Transfer {
	return c.transfers.Registry().List()
}

// CancelTransfer stops a pending or running transfer.
func (c *Client) CancelTransfer(id string) bool {
	return c.transfers.Cancel(id)
}
