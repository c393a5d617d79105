package rpc

import (
	"github.com/opd-ai/xotalk/model"
	"github.com/sirupsen/logrus"
)

func (p *Proxy) dispatch(f *Frame) *Error {
	logrus.WithFields(logrus.Fields{
		"function": "dispatch",
		"method":   f.Method,
	}).Debug("Received push")

	if f.Method == MethodPing {
		return nil
	}
	if p.handler == nil {
		return &Error{Code: CodeMethodNotFound, Message: "no handler for " + f.Method}
	}

	switch f.Method {
	case NotifyIncomingDelivery:
		var d model.Delivery
		var m model.Message
		if err := decodeParams(f, &d, &m); err != nil {
			return err
		}
		p.handler.IncomingDelivery(&d, &m)
	case NotifyOutgoingDelivery:
		var d model.Delivery
		if err := decodeParams(f, &d); err != nil {
			return err
		}
		p.handler.OutgoingDelivery(&d)
	case NotifyPresenceUpdated:
		var pr model.Presence
		if err := decodeParams(f, &pr); err != nil {
			return err
		}
		p.handler.PresenceUpdated(&pr)
	case NotifyRelationshipUpdated:
		var r model.Relationship
		if err := decodeParams(f, &r); err != nil {
			return err
		}
		p.handler.RelationshipUpdated(&r)
	case NotifyGroupUpdated:
		var g model.GroupPresence
		if err := decodeParams(f, &g); err != nil {
			return err
		}
		p.handler.GroupUpdated(&g)
	case NotifyGroupMemberUpdated:
		var gm model.GroupMember
		if err := decodeParams(f, &gm); err != nil {
			return err
		}
		p.handler.GroupMemberUpdated(&gm)
	case NotifyAlertUser:
		var msg string
		if err := decodeParams(f, &msg); err != nil {
			return err
		}
		p.handler.AlertUser(msg)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"method":   f.Method,
		}).Warn("Unknown push method")
		return &Error{Code: CodeMethodNotFound, Message: "unknown method " + f.Method}
	}
	return nil
}
