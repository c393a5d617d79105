package model

import "time"

// Delivery states.
const (
	DeliveryNew        = "new"
	DeliveryDelivering = "delivering"
	DeliveryDelivered  = "delivered"
	DeliveryConfirmed  = "confirmed"
	DeliveryFailed     = "failed"
	DeliveryAborted    = "aborted"
)

// IsTerminalDeliveryState reports whether no further transitions follow state.
func IsTerminalDeliveryState(state string) bool {
	switch state {
	case DeliveryDelivered, DeliveryConfirmed, DeliveryFailed, DeliveryAborted:
		return true
	}
	return false
}

// Message is the immutable ciphertext payload of a message as exchanged with
// the relay. Body and Attachment are base64 AES ciphertexts; Salt is the base64
// group salt, empty for peer messages.
type Message struct {
	MessageID  string    `json:"messageId,omitempty"`
	MessageTag string    `json:"messageTag,omitempty"`
	SenderID   string    `json:"senderId,omitempty"`
	Body       string    `json:"body"`
	Attachment string    `json:"attachment,omitempty"`
	Salt       string    `json:"salt,omitempty"`
	TimeSent   time.Time `json:"timeSent"`
}

// Delivery is the per-recipient transport envelope of a message.
type Delivery struct {
	MessageID     string    `json:"messageId,omitempty"`
	MessageTag    string    `json:"messageTag,omitempty"`
	SenderID      string    `json:"senderId,omitempty"`
	ReceiverID    string    `json:"receiverId,omitempty"`
	GroupID       string    `json:"groupId,omitempty"`
	State         string    `json:"state"`
	KeyID         string    `json:"keyId,omitempty"`
	KeyCiphertext string    `json:"keyCiphertext,omitempty"`
	TimeAccepted  time.Time `json:"timeAccepted"`
	TimeChanged   time.Time `json:"timeChanged"`
}

// UpdateWith merges the server-side view of a delivery into d. Identifiers and
// key material the update omits are preserved.
func (d *Delivery) UpdateWith(update *Delivery) {
	if update == nil {
		return
	}
	if update.MessageID != "" {
		d.MessageID = update.MessageID
	}
	if update.MessageTag != "" {
		d.MessageTag = update.MessageTag
	}
	if update.SenderID != "" {
		d.SenderID = update.SenderID
	}
	if update.ReceiverID != "" {
		d.ReceiverID = update.ReceiverID
	}
	if update.GroupID != "" {
		d.GroupID = update.GroupID
	}
	if update.State != "" {
		d.State = update.State
	}
	if update.KeyID != "" {
		d.KeyID = update.KeyID
	}
	if update.KeyCiphertext != "" {
		d.KeyCiphertext = update.KeyCiphertext
	}
	if !update.TimeAccepted.IsZero() {
		d.TimeAccepted = update.TimeAccepted
	}
	if !update.TimeChanged.IsZero() {
		d.TimeChanged = update.TimeChanged
	}
}

// AttachmentDescriptor describes an attachment blob. It travels encrypted in
// Message.Attachment; EncryptionKey is the base64 content key for the blob.
type AttachmentDescriptor struct {
	URL           string  `json:"url"`
	ContentSize   int64   `json:"contentSize"`
	MediaType     string  `json:"mediaType,omitempty"`
	MimeType      string  `json:"mimeType,omitempty"`
	AspectRatio   float64 `json:"aspectRatio,omitempty"`
	FileName      string  `json:"fileName,omitempty"`
	AttachmentID  string  `json:"attachmentId,omitempty"`
	EncryptionKey string  `json:"encryptionKey,omitempty"`
}

// Upload is an outgoing attachment registered with a message.
type Upload struct {
	TransferID  string
	LocalPath   string
	ContentSize int64
	MediaType   string
	MimeType    string
	AspectRatio float64
	FileName    string
	FileID      string
	UploadURL   string
	// Key is the content key used by the transfer engine to encrypt the blob.
	Key []byte
}

// Download is an incoming attachment handed to the transfer engine.
type Download struct {
	TransferID  string
	URL         string
	ContentSize int64
	MediaType   string
	MimeType    string
	FileName    string
	Key         []byte
}

// ClientMessage is the local record of one message in a conversation.
type ClientMessage struct {
	// Tag is locally unique and known before the server assigns MessageID.
	Tag             string
	MessageID       string
	ConversationKey string
	SenderKey       string
	Incoming        bool
	Text            string
	Attachment      *AttachmentDescriptor
	Message         *Message
	Delivery        *Delivery
	Seen            bool
	Unreadable      bool
	Upload          *Upload
	Download        *Download
	Created         time.Time
}

// UnreadableText replaces the text of messages that could not be decrypted.
const UnreadableText = "<unreadable>"

// IsPendingDelivery reports whether an outgoing message still awaits a delivery request.
func (m *ClientMessage) IsPendingDelivery() bool {
	return !m.Incoming && m.Delivery != nil && m.Delivery.State == DeliveryNew
}
