package messaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/group"
	"github.com/opd-ai/xotalk/limits"
	"github.com/opd-ai/xotalk/model"
	"github.com/sirupsen/logrus"
)

var b64 = base64.StdEncoding

// Codec encrypts outgoing and decrypts incoming messages.
type Codec struct {
	keys *group.Keyring
}

// NewCodec creates a Codec resolving key material through keys.
func NewCodec(keys *group.Keyring) *Codec {
	return &Codec{keys: keys}
}

// Encrypt fills msg.Message and the key fields of msg.Delivery for the
// conversation contact. If msg carries an attachment descriptor, a fresh
// content key is attached to it (and to msg.Upload) before encryption.
func (c *Codec) Encrypt(ctx context.Context, conversation *model.Contact, msg *model.ClientMessage) error {
	if err := limits.ValidateBody([]byte(msg.Text)); err != nil {
		return err
	}
	if msg.Delivery == nil {
		msg.Delivery = &model.Delivery{State: model.DeliveryNew}
	}
	wire := &model.Message{MessageTag: msg.Tag}

	var key []byte
	switch v := conversation.Variant.(type) {
	case *model.PeerDetails:
		k, err := c.peerKey(ctx, v.ClientID, msg.Delivery)
		if err != nil {
			return err
		}
		key = k
	case *model.GroupDetails:
		k, salt, err := groupKey(v)
		if err != nil {
			return err
		}
		key = k
		wire.Salt = b64.EncodeToString(salt)
		msg.Delivery.GroupID = v.GroupID
		msg.Delivery.ReceiverID = ""
		msg.Delivery.KeyID = crypto.GroupKeyID(v.GroupKey)
		msg.Delivery.KeyCiphertext = ""
	default:
		return fmt.Errorf("%w: cannot send to %s contact", ErrUnknownContact, conversation.Kind())
	}
	defer crypto.ZeroBytes(key)

	body, err := crypto.EncryptAES(key, []byte(msg.Text))
	if err != nil {
		return err
	}
	wire.Body = b64.EncodeToString(body)

	if msg.Attachment != nil {
		sealed, err := sealAttachment(key, msg)
		if err != nil {
			return err
		}
		wire.Attachment = sealed
	}

	msg.Delivery.MessageTag = msg.Tag
	msg.Message = wire
	return nil
}

func (c *Codec) peerKey(ctx context.Context, clientID string, delivery *model.Delivery) ([]byte, error) {
	meta, pub, err := c.keys.PublicKey(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEncryptionKey, err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.WrapKey(pub, key)
	if err != nil {
		return nil, err
	}
	delivery.ReceiverID = clientID
	delivery.KeyID = meta.KeyID
	delivery.KeyCiphertext = b64.EncodeToString(wrapped)
	return key, nil
}

func groupKey(g *model.GroupDetails) ([]byte, []byte, error) {
	if len(g.GroupKey) == 0 {
		return nil, nil, fmt.Errorf("%w: group %s", ErrNoEncryptionKey, g.GroupID)
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	key, err := crypto.ApplySalt(g.GroupKey, salt)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

func sealAttachment(key []byte, msg *model.ClientMessage) (string, error) {
	contentKey, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	descriptor := *msg.Attachment
	descriptor.EncryptionKey = b64.EncodeToString(contentKey)
	plain, err := json.Marshal(&descriptor)
	if err != nil {
		return "", err
	}
	if err := limits.ValidateAttachmentDescriptor(plain); err != nil {
		return "", err
	}
	sealed, err := crypto.EncryptAES(key, plain)
	if err != nil {
		return "", err
	}
	msg.Attachment = &descriptor
	if msg.Upload != nil {
		msg.Upload.Key = contentKey
	}
	return b64.EncodeToString(sealed), nil
}

// Decrypt recovers the text and attachment of msg from its wire Message and
// Delivery. group is the group contact for group messages and nil otherwise.
// On failure msg is marked unreadable and the error is returned.
func (c *Codec) Decrypt(ctx context.Context, group *model.Contact, msg *model.ClientMessage) error {
	err := c.decrypt(ctx, group, msg)
	if err != nil {
		msg.Text = model.UnreadableText
		msg.Unreadable = true
		msg.Attachment = nil
		msg.Download = nil
		logrus.WithFields(logrus.Fields{
			"function":   "Decrypt",
			"message_id": msg.MessageID,
			"sender":     msg.SenderKey,
			"error":      err.Error(),
		}).Warn("Message is unreadable")
	}
	return err
}

func (c *Codec) decrypt(ctx context.Context, group *model.Contact, msg *model.ClientMessage) error {
	if msg.Message == nil || msg.Delivery == nil {
		return fmt.Errorf("%w: missing payload", crypto.ErrDecrypt)
	}
	key, err := c.transportKey(ctx, group, msg.Delivery)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(key)

	if msg.Message.Salt != "" {
		salt, err := b64.DecodeString(msg.Message.Salt)
		if err != nil {
			return fmt.Errorf("%w: malformed salt", crypto.ErrDecrypt)
		}
		salted, err := crypto.ApplySalt(key, salt)
		if err != nil {
			return err
		}
		crypto.ZeroBytes(key)
		key = salted
	}

	text, err := open(key, msg.Message.Body)
	if err != nil {
		return err
	}
	if err := limits.ValidateBody(text); err != nil {
		return err
	}
	if !utf8.Valid(text) {
		return fmt.Errorf("%w: body is not valid UTF-8", crypto.ErrDecrypt)
	}

	var attachment *model.AttachmentDescriptor
	if msg.Message.Attachment != "" {
		plain, err := open(key, msg.Message.Attachment)
		if err != nil {
			return err
		}
		attachment = &model.AttachmentDescriptor{}
		if err := json.Unmarshal(plain, attachment); err != nil {
			return fmt.Errorf("%w: malformed attachment: %v", crypto.ErrDecrypt, err)
		}
	}

	msg.Text = string(text)
	msg.Unreadable = false
	msg.Attachment = attachment
	return nil
}

func (c *Codec) transportKey(ctx context.Context, group *model.Contact, d *model.Delivery) ([]byte, error) {
	if group != nil {
		g := group.MustGroup()
		if len(g.GroupKey) == 0 {
			return nil, fmt.Errorf("%w: group %s", ErrNoEncryptionKey, g.GroupID)
		}
		// deliveries without a key id predate group key ids
		if d.KeyID != "" && d.KeyID != crypto.GroupKeyID(g.GroupKey) {
			return nil, fmt.Errorf("%w: group %s key %s is not the current one", ErrNoEncryptionKey, g.GroupID, d.KeyID)
		}
		return append([]byte(nil), g.GroupKey...), nil
	}
	if d.KeyID == "" || d.KeyCiphertext == "" {
		return nil, fmt.Errorf("%w: delivery carries no key", ErrNoEncryptionKey)
	}
	priv, err := c.keys.PrivateKey(ctx, d.KeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEncryptionKey, err)
	}
	wrapped, err := b64.DecodeString(d.KeyCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed key ciphertext", crypto.ErrDecrypt)
	}
	return crypto.UnwrapKey(priv, wrapped)
}

func open(key []byte, encoded string) ([]byte, error) {
	sealed, err := b64.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", crypto.ErrDecrypt)
	}
	if err := limits.ValidateEncryptedBody(sealed); err != nil {
		return nil, err
	}
	return crypto.DecryptAES(key, sealed)
}
