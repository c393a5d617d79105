package testing

import (
	"context"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
)

func (s *session) DeliveryRequest(ctx context.Context, message *model.Message, deliveries []*model.Delivery) ([]*model.Delivery, error) {
	if err := s.begin(rpc.MethodDeliveryRequest, true); err != nil {
		return nil, err
	}
	r := s.relay
	now := time.Now()

	stored := &storedMessage{
		message:    &model.Message{},
		deliveries: make(map[string]*model.Delivery),
	}
	*stored.message = *message
	stored.message.MessageID = newID()
	stored.message.SenderID = s.clientID
	stored.message.TimeSent = now
	messageID := stored.message.MessageID

	var p pushes
	accepted := make([]*model.Delivery, 0, len(deliveries))
	route := func(d *model.Delivery, receiverID string) {
		rd := *d
		rd.MessageID = messageID
		rd.SenderID = s.clientID
		rd.ReceiverID = receiverID
		rd.State = model.DeliveryDelivering
		rd.TimeAccepted = now
		rd.TimeChanged = now
		stored.deliveries[receiverID] = &rd

		targets := r.readyLocked(receiverID)
		if len(targets) == 0 {
			r.queued[receiverID] = append(r.queued[receiverID], messageID)
		}
		for _, target := range targets {
			target, dc, mc := target, rd, *stored.message
			p.add(func() { target.handler.IncomingDelivery(&dc, &mc) })
		}
		r.deliveryLog = append(r.deliveryLog, DeliveryRecord{
			MessageID:  messageID,
			SenderID:   s.clientID,
			ReceiverID: receiverID,
			GroupID:    d.GroupID,
			Size:       len(message.Body),
			Pushed:     len(targets) > 0,
			Timestamp:  now,
		})
	}

	for _, d := range deliveries {
		if d.GroupID != "" {
			for _, memberID := range r.groupAudienceLocked(d.GroupID) {
				if memberID == s.clientID {
					continue
				}
				if m := r.members[d.GroupID][memberID]; m.State != model.MemberJoined {
					continue
				}
				route(d, memberID)
			}
		} else {
			route(d, d.ReceiverID)
		}

		out := *d
		out.MessageID = messageID
		out.SenderID = s.clientID
		out.State = model.DeliveryDelivering
		out.TimeAccepted = now
		out.TimeChanged = now
		accepted = append(accepted, &out)
	}
	r.messages[messageID] = stored
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "DeliveryRequest",
		"message_id": messageID,
		"sender":     s.clientID,
		"deliveries": len(stored.deliveries),
	}).Info("Simulated delivery accepted")

	p.run()
	return accepted, nil
}

func (s *session) DeliveryConfirm(ctx context.Context, messageID string) (*model.Delivery, error) {
	if err := s.begin(rpc.MethodDeliveryConfirm, true); err != nil {
		return nil, err
	}
	r := s.relay
	stored, ok := r.messages[messageID]
	if !ok || stored.deliveries[s.clientID] == nil {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	d := stored.deliveries[s.clientID]
	d.State = model.DeliveryDelivered
	d.TimeChanged = time.Now()

	var p pushes
	for _, target := range r.onlineLocked(d.SenderID) {
		target, dc := target, *d
		p.add(func() { target.handler.OutgoingDelivery(&dc) })
	}
	out := *d
	r.mu.Unlock()
	p.run()
	return &out, nil
}

func (s *session) DeliveryAcknowledge(ctx context.Context, messageID, receiverID string) (*model.Delivery, error) {
	if err := s.begin(rpc.MethodDeliveryAcknowledge, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()
	stored, ok := s.relay.messages[messageID]
	if !ok || stored.message.SenderID != s.clientID {
		return nil, ErrNotFound
	}
	d, ok := stored.deliveries[receiverID]
	if !ok {
		return nil, ErrNotFound
	}
	if d.State == model.DeliveryDelivered {
		d.State = model.DeliveryConfirmed
		d.TimeChanged = time.Now()
	}
	out := *d
	return &out, nil
}
