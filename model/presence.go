package model

import "time"

// Presence is the mutable metadata a client publishes about itself.
type Presence struct {
	ClientID         string    `json:"clientId"`
	ClientName       string    `json:"clientName,omitempty"`
	ClientStatus     string    `json:"clientStatus,omitempty"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	KeyID            string    `json:"keyId,omitempty"`
	ConnectionStatus string    `json:"connectionStatus,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Merge copies every field that is set in update into p. Fields the update
// omits keep their current value.
func (p *Presence) Merge(update *Presence) {
	if update == nil {
		return
	}
	if update.ClientID != "" {
		p.ClientID = update.ClientID
	}
	if update.ClientName != "" {
		p.ClientName = update.ClientName
	}
	if update.ClientStatus != "" {
		p.ClientStatus = update.ClientStatus
	}
	if update.AvatarURL != "" {
		p.AvatarURL = update.AvatarURL
	}
	if update.KeyID != "" {
		p.KeyID = update.KeyID
	}
	if update.ConnectionStatus != "" {
		p.ConnectionStatus = update.ConnectionStatus
	}
	if !update.Timestamp.IsZero() {
		p.Timestamp = update.Timestamp
	}
}

// Relationship states.
const (
	RelationshipNone    = "none"
	RelationshipRelated = "related"
	RelationshipBlocked = "blocked"
)

// Relationship is the directed state between two clients.
type Relationship struct {
	ClientID      string    `json:"clientId"`
	OtherClientID string    `json:"otherClientId"`
	State         string    `json:"state"`
	LastChanged   time.Time `json:"lastChanged"`
}

// Key is a published RSA public key.
type Key struct {
	ClientID string `json:"clientId,omitempty"`
	KeyID    string `json:"keyId"`
	Key      string `json:"key"`
}

// PrivateKey is a locally held RSA private key in base64 PKCS#8 form.
type PrivateKey struct {
	KeyID   string
	Key     string
	Created time.Time
}

// Token is a pairing token issued by the server.
type Token struct {
	Secret     string    `json:"secret"`
	Purpose    string    `json:"purpose"`
	ExpiryTime time.Time `json:"expiryTime"`
}

// FileHandles is the storage location pair returned for an attachment upload.
type FileHandles struct {
	FileID      string `json:"fileId"`
	UploadURL   string `json:"uploadUrl"`
	DownloadURL string `json:"downloadUrl"`
}
