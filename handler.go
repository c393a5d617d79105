package xotalk

import (
	"context"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
)

// pushHandler queues relay pushes of one connection onto the executor.
// Pushes of a replaced connection are dropped.
type pushHandler struct {
	client *Client
	gen    uint64
}

var _ rpc.NotificationHandler = (*pushHandler)(nil)

func (h *pushHandler) run(method string, fn func(ctx context.Context) error) {
	c := h.client
	c.post(func() {
		if h.gen != c.generation {
			logrus.WithFields(logrus.Fields{
				"function": "pushHandler.run",
				"method":   method,
			}).Debug("Dropping push of a closed connection")
			return
		}
		if err := fn(c.ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "pushHandler.run",
				"method":   method,
				"error":    err.Error(),
			}).Warn("Push not applied")
		}
	})
}

func (h *pushHandler) IncomingDelivery(d *model.Delivery, m *model.Message) {
	h.run(rpc.NotifyIncomingDelivery, func(ctx context.Context) error {
		return h.client.messages.UpdateIncomingDelivery(ctx, d, m)
	})
}

func (h *pushHandler) OutgoingDelivery(d *model.Delivery) {
	h.run(rpc.NotifyOutgoingDelivery, func(ctx context.Context) error {
		return h.client.messages.UpdateOutgoingDelivery(ctx, d)
	})
}

func (h *pushHandler) PresenceUpdated(p *model.Presence) {
	h.run(rpc.NotifyPresenceUpdated, func(ctx context.Context) error {
		return h.client.contacts.UpdatePresence(ctx, p)
	})
}

func (h *pushHandler) RelationshipUpdated(r *model.Relationship) {
	h.run(rpc.NotifyRelationshipUpdated, func(ctx context.Context) error {
		return h.client.contacts.UpdateRelationship(ctx, r)
	})
}

func (h *pushHandler) GroupUpdated(g *model.GroupPresence) {
	h.run(rpc.NotifyGroupUpdated, func(ctx context.Context) error {
		return h.client.contacts.UpdateGroup(ctx, g)
	})
}

func (h *pushHandler) GroupMemberUpdated(m *model.GroupMember) {
	h.run(rpc.NotifyGroupMemberUpdated, func(ctx context.Context) error {
		return h.client.contacts.UpdateGroupMember(ctx, m)
	})
}

func (h *pushHandler) AlertUser(message string) {
	h.run(rpc.NotifyAlertUser, func(ctx context.Context) error {
		h.client.alertListeners.Each(func(l AlertListener) { l(message) })
		return nil
	})
}
