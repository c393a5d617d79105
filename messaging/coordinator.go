package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/listener"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/store"
	"github.com/sirupsen/logrus"
)

// DefaultRequestTimeout bounds the acknowledgement calls posted by the
// coordinator.
const DefaultRequestTimeout = 60 * time.Second

// MessageListener is called for every stored message change. isNew is true
// for the first time a message is stored.
type MessageListener func(msg *model.ClientMessage, isNew bool)

// UnseenListener is called with the complete set of unseen incoming messages.
type UnseenListener func(unseen []*model.ClientMessage)

// TransferAgent moves attachment blobs. Both calls return once the transfer
// is registered; completion is reported by the agent itself.
type TransferAgent interface {
	RequestUpload(upload *model.Upload) error
	RegisterDownload(download *model.Download) error
}

// Coordinator turns local messages into delivery requests and applies
// relay-side delivery updates to them.
type Coordinator struct {
	store     store.Store
	source    rpc.Source
	exec      executor.Executor
	codec     *Codec
	transfers TransferAgent

	// Timeout bounds acknowledgement calls run on the executor.
	Timeout time.Duration

	messages *listener.Registry[MessageListener]
	unseen   *listener.Registry[UnseenListener]
}

// NewCoordinator creates a Coordinator. transfers may be nil, in which case
// attachments are encrypted and described but no blobs are moved.
func NewCoordinator(st store.Store, source rpc.Source, exec executor.Executor, codec *Codec, transfers TransferAgent) *Coordinator {
	return &Coordinator{
		store:     st,
		source:    source,
		exec:      exec,
		codec:     codec,
		transfers: transfers,
		Timeout:   DefaultRequestTimeout,
		messages:  listener.NewRegistry[MessageListener](),
		unseen:    listener.NewRegistry[UnseenListener](),
	}
}

// AddMessageListener registers l for message changes.
func (c *Coordinator) AddMessageListener(l MessageListener) listener.Handle {
	return c.messages.Add(l)
}

// RemoveMessageListener unregisters a message listener.
func (c *Coordinator) RemoveMessageListener(h listener.Handle) bool {
	return c.messages.Remove(h)
}

// AddUnseenListener registers l for unseen set changes.
func (c *Coordinator) AddUnseenListener(l UnseenListener) listener.Handle {
	return c.unseen.Add(l)
}

// RemoveUnseenListener unregisters an unseen listener.
func (c *Coordinator) RemoveUnseenListener(h listener.Handle) bool {
	return c.unseen.Remove(h)
}

// Compose stores a new outgoing message for the contact with key contactKey
// and queues it for the next delivery pass. upload may be nil.
func (c *Coordinator) Compose(ctx context.Context, contactKey, text string, upload *model.Upload) (*model.ClientMessage, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidText
	}
	contact, err := c.conversation(ctx, contactKey)
	if err != nil {
		return nil, err
	}
	self, err := c.store.LoadSelf(ctx)
	if err != nil {
		return nil, err
	}

	msg := &model.ClientMessage{
		Tag:             uuid.NewString(),
		ConversationKey: contact.Key(),
		SenderKey:       self.Key(),
		Text:            text,
		Seen:            true,
		Delivery:        &model.Delivery{State: model.DeliveryNew, SenderID: self.Key()},
		Created:         c.exec.Clock().Now(),
	}
	if upload != nil {
		if upload.TransferID == "" {
			upload.TransferID = uuid.NewString()
		}
		msg.Upload = upload
	}
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Compose",
		"tag":          msg.Tag,
		"conversation": msg.ConversationKey,
		"attachment":   upload != nil,
	}).Debug("Outgoing message queued")
	c.notify(msg, true)
	return msg, nil
}

func (c *Coordinator) conversation(ctx context.Context, key string) (*model.Contact, error) {
	if contact, err := c.store.FindContact(ctx, model.KindPeer, key); err == nil {
		return contact, nil
	}
	contact, err := c.store.FindContact(ctx, model.KindGroup, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	return contact, nil
}

// RequestDelivery sends every queued outgoing message. Failures are logged per
// message and leave it queued; the number of accepted messages is returned.
func (c *Coordinator) RequestDelivery(ctx context.Context) (int, error) {
	srv, err := c.source.Server()
	if err != nil {
		return 0, err
	}
	pending, err := c.store.PendingMessages(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, msg := range pending {
		if err := c.deliver(ctx, srv, msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":     "RequestDelivery",
				"tag":          msg.Tag,
				"conversation": msg.ConversationKey,
				"error":        err.Error(),
			}).Warn("Delivery request failed, message stays queued")
			continue
		}
		sent++
	}
	if len(pending) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "RequestDelivery",
			"pending":  len(pending),
			"sent":     sent,
		}).Info("Delivery pass finished")
	}
	return sent, nil
}

func (c *Coordinator) deliver(ctx context.Context, srv rpc.Server, msg *model.ClientMessage) error {
	contact, err := c.conversation(ctx, msg.ConversationKey)
	if err != nil {
		return err
	}

	if msg.Upload != nil && msg.Upload.FileID == "" {
		handles, err := srv.CreateFileForStorage(ctx, msg.Upload.ContentSize)
		if err != nil {
			return fmt.Errorf("create file for storage: %w", err)
		}
		msg.Upload.FileID = handles.FileID
		msg.Upload.UploadURL = handles.UploadURL
		msg.Attachment = &model.AttachmentDescriptor{
			URL:          handles.DownloadURL,
			ContentSize:  msg.Upload.ContentSize,
			MediaType:    msg.Upload.MediaType,
			MimeType:     msg.Upload.MimeType,
			AspectRatio:  msg.Upload.AspectRatio,
			FileName:     msg.Upload.FileName,
			AttachmentID: handles.FileID,
		}
		if err := c.store.SaveMessage(ctx, msg); err != nil {
			return err
		}
	}

	if err := c.codec.Encrypt(ctx, contact, msg); err != nil {
		return err
	}
	msg.Message.TimeSent = c.exec.Clock().Now()

	accepted, err := srv.DeliveryRequest(ctx, msg.Message, []*model.Delivery{msg.Delivery})
	if err != nil {
		return err
	}
	for _, d := range accepted {
		if d.MessageTag != "" && d.MessageTag != msg.Tag {
			continue
		}
		msg.Delivery.UpdateWith(d)
		if d.MessageID != "" {
			msg.MessageID = d.MessageID
			msg.Message.MessageID = d.MessageID
		}
	}
	if msg.Delivery.State == model.DeliveryNew {
		msg.Delivery.State = model.DeliveryDelivering
	}
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return err
	}

	if msg.Upload != nil && c.transfers != nil {
		if err := c.transfers.RequestUpload(msg.Upload); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "deliver",
				"tag":         msg.Tag,
				"transfer_id": msg.Upload.TransferID,
				"error":       err.Error(),
			}).Warn("Failed to request attachment upload")
		}
	}
	c.notify(msg, false)
	return nil
}

// UpdateOutgoingDelivery applies a relay update to a sent message, looked up
// by tag first and message id second. Deliveries that reached the delivered
// state are acknowledged in the background.
func (c *Coordinator) UpdateOutgoingDelivery(ctx context.Context, d *model.Delivery) error {
	msg, err := c.findOutgoing(ctx, d)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "UpdateOutgoingDelivery",
			"tag":        d.MessageTag,
			"message_id": d.MessageID,
		}).Warn("Dropping update for unknown message")
		return err
	}

	msg.Delivery.UpdateWith(d)
	if d.MessageID != "" {
		msg.MessageID = d.MessageID
	}
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	c.notify(msg, false)

	if d.State == model.DeliveryDelivered {
		messageID, receiverID := msg.MessageID, d.ReceiverID
		c.post("DeliveryAcknowledge", func(ctx context.Context, srv rpc.Server) (*model.Delivery, error) {
			return srv.DeliveryAcknowledge(ctx, messageID, receiverID)
		}, msg.Tag)
	}
	return nil
}

func (c *Coordinator) findOutgoing(ctx context.Context, d *model.Delivery) (*model.ClientMessage, error) {
	if d.MessageTag != "" {
		if msg, err := c.store.FindMessageByTag(ctx, d.MessageTag); err == nil && !msg.Incoming {
			return msg, nil
		}
	}
	if d.MessageID != "" {
		if msg, err := c.store.FindMessageByID(ctx, d.MessageID); err == nil && !msg.Incoming {
			return msg, nil
		}
	}
	return nil, ErrUnknownMessage
}

// UpdateIncomingDelivery stores a received message, creating it on first
// sight. Deliveries from unknown senders or for unknown groups are dropped.
// A delivery still in the delivering state is confirmed in the background.
func (c *Coordinator) UpdateIncomingDelivery(ctx context.Context, d *model.Delivery, m *model.Message) error {
	fields := logrus.Fields{
		"function":   "UpdateIncomingDelivery",
		"message_id": d.MessageID,
		"sender":     d.SenderID,
		"group_id":   d.GroupID,
	}
	if d.MessageID == "" || m == nil {
		logrus.WithFields(fields).Warn("Dropping incomplete delivery")
		return ErrUnknownMessage
	}
	if _, err := c.store.FindContact(ctx, model.KindPeer, d.SenderID); err != nil {
		logrus.WithFields(fields).Warn("Dropping delivery from unknown sender")
		return fmt.Errorf("%w: sender %s", ErrUnknownContact, d.SenderID)
	}
	var groupContact *model.Contact
	if d.GroupID != "" {
		g, err := c.store.FindContact(ctx, model.KindGroup, d.GroupID)
		if err != nil {
			logrus.WithFields(fields).Warn("Dropping delivery for unknown group")
			return fmt.Errorf("%w: group %s", ErrUnknownContact, d.GroupID)
		}
		groupContact = g
	}

	msg, err := c.store.FindMessageByID(ctx, d.MessageID)
	isNew := false
	switch {
	case errors.Is(err, store.ErrNotFound):
		isNew = true
		conversation := d.SenderID
		if groupContact != nil {
			conversation = groupContact.Key()
		}
		msg = &model.ClientMessage{
			Tag:             uuid.NewString(),
			MessageID:       d.MessageID,
			ConversationKey: conversation,
			SenderKey:       d.SenderID,
			Incoming:        true,
			Delivery:        &model.Delivery{},
			Created:         c.exec.Clock().Now(),
		}
	case err != nil:
		return err
	}

	msg.Delivery.UpdateWith(d)
	decrypt := isNew || msg.Message == nil || msg.Unreadable
	msg.Message = m
	if decrypt {
		if err := c.codec.Decrypt(ctx, groupContact, msg); err == nil && msg.Attachment != nil {
			msg.Download = download(msg.Attachment)
		}
	}
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return err
	}

	if decrypt && msg.Download != nil && c.transfers != nil {
		if err := c.transfers.RegisterDownload(msg.Download); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Failed to register attachment download")
		}
	}
	if d.State == model.DeliveryDelivering {
		messageID := d.MessageID
		c.post("DeliveryConfirm", func(ctx context.Context, srv rpc.Server) (*model.Delivery, error) {
			return srv.DeliveryConfirm(ctx, messageID)
		}, msg.Tag)
	}

	logrus.WithFields(fields).WithField("new", isNew).Debug("Incoming delivery applied")
	c.notify(msg, isNew)
	c.publishUnseen(ctx)
	return nil
}

func download(a *model.AttachmentDescriptor) *model.Download {
	key, err := b64.DecodeString(a.EncryptionKey)
	if err != nil {
		key = nil
	}
	return &model.Download{
		TransferID:  uuid.NewString(),
		URL:         a.URL,
		ContentSize: a.ContentSize,
		MediaType:   a.MediaType,
		MimeType:    a.MimeType,
		FileName:    a.FileName,
		Key:         key,
	}
}

// post runs an acknowledgement call on the executor and merges its result
// into the message with tag. Failures are logged only.
func (c *Coordinator) post(name string, call func(ctx context.Context, srv rpc.Server) (*model.Delivery, error), tag string) {
	c.exec.Execute(func() {
		fields := logrus.Fields{"function": name, "tag": tag}
		srv, err := c.source.Server()
		if err != nil {
			logrus.WithFields(fields).WithError(err).Debug("Skipping acknowledgement, not connected")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
		defer cancel()

		result, err := call(ctx, srv)
		if err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Acknowledgement failed")
			return
		}
		if result == nil {
			return
		}
		msg, err := c.store.FindMessageByTag(ctx, tag)
		if err != nil {
			return
		}
		if msg.Delivery == nil {
			msg.Delivery = &model.Delivery{}
		}
		msg.Delivery.UpdateWith(result)
		if err := c.store.SaveMessage(ctx, msg); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Failed to store acknowledged state")
			return
		}
		c.notify(msg, false)
	})
}

// MarkAsSeen marks the incoming message with tag as seen and republishes the
// unseen set.
func (c *Coordinator) MarkAsSeen(ctx context.Context, tag string) error {
	msg, err := c.store.FindMessageByTag(ctx, tag)
	if err != nil {
		return err
	}
	if msg.Seen {
		return nil
	}
	msg.Seen = true
	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	c.notify(msg, false)
	c.publishUnseen(ctx)
	return nil
}

// Unseen returns the unseen incoming messages.
func (c *Coordinator) Unseen(ctx context.Context) ([]*model.ClientMessage, error) {
	return c.store.UnseenMessages(ctx)
}

func (c *Coordinator) publishUnseen(ctx context.Context) {
	unseen, err := c.store.UnseenMessages(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "publishUnseen",
			"error":    err.Error(),
		}).Warn("Failed to load unseen messages")
		return
	}
	c.unseen.Each(func(l UnseenListener) { l(unseen) })
}

func (c *Coordinator) notify(msg *model.ClientMessage, isNew bool) {
	c.messages.Each(func(l MessageListener) { l(msg.Clone(), isNew) })
}
