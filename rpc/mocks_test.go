package rpc

import (
	"context"
	"sync"

	"github.com/opd-ai/xotalk/model"
)

// loopback answers requests sent through a Proxy using a handler function.
type loopback struct {
	codec   Codec
	proxy   *Proxy
	respond func(f *Frame) (any, *Error)

	mu     sync.Mutex
	frames []*Frame
}

func newLoopback(codec Codec, handler NotificationHandler, respond func(f *Frame) (any, *Error)) *loopback {
	l := &loopback{codec: codec, respond: respond}
	l.proxy = NewProxy(codec, l.send, handler, 0)
	return l
}

func (l *loopback) send(_ context.Context, data []byte) error {
	f, err := l.codec.Decode(data)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.frames = append(l.frames, f)
	l.mu.Unlock()
	if !f.IsRequest() || f.ID == nil || l.respond == nil {
		return nil
	}
	result, rpcErr := l.respond(f)
	resp, err := l.codec.EncodeResponse(*f.ID, result, rpcErr)
	if err != nil {
		return err
	}
	go l.proxy.HandleFrame(resp)
	return nil
}

func (l *loopback) sent() []*Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Frame(nil), l.frames...)
}

type recordingHandler struct {
	mu        sync.Mutex
	incoming  []*model.Delivery
	messages  []*model.Message
	outgoing  []*model.Delivery
	presences []*model.Presence
	relations []*model.Relationship
	groups    []*model.GroupPresence
	members   []*model.GroupMember
	alerts    []string
}

func (h *recordingHandler) IncomingDelivery(d *model.Delivery, m *model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.incoming = append(h.incoming, d)
	h.messages = append(h.messages, m)
}

func (h *recordingHandler) OutgoingDelivery(d *model.Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outgoing = append(h.outgoing, d)
}

func (h *recordingHandler) PresenceUpdated(p *model.Presence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.presences = append(h.presences, p)
}

func (h *recordingHandler) RelationshipUpdated(r *model.Relationship) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relations = append(h.relations, r)
}

func (h *recordingHandler) GroupUpdated(g *model.GroupPresence) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groups = append(h.groups, g)
}

func (h *recordingHandler) GroupMemberUpdated(m *model.GroupMember) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members = append(h.members, m)
}

func (h *recordingHandler) AlertUser(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, msg)
}
