package auth

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/srp"
	"github.com/opd-ai/xotalk/store"
)

// Engine performs registration and login.
type Engine struct {
	store store.Store
	group *srp.Group
}

// NewEngine creates an engine persisting credentials to st.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st, group: srp.RFC5054Group2048}
}

// EnsureCredentials creates and persists the SRP salt and secret of self if it
// has none. Existing credentials are never replaced.
func (e *Engine) EnsureCredentials(ctx context.Context, self *model.Contact) error {
	sd := self.MustSelf()
	if sd.Credentials != nil {
		return nil
	}

	size := e.group.DigestSize()
	salt, err := crypto.RandomBytes(size)
	if err != nil {
		return phaseError(PhaseCredentials, err)
	}
	secret, err := crypto.RandomBytes(size)
	if err != nil {
		return phaseError(PhaseCredentials, err)
	}
	sd.Credentials = &model.Credentials{
		Salt:   hex.EncodeToString(salt),
		Secret: hex.EncodeToString(secret),
	}
	crypto.ZeroBytes(secret)

	if err := e.store.SaveContact(ctx, self); err != nil {
		sd.Credentials = nil
		return phaseError(PhaseCredentials, fmt.Errorf("persist credentials: %w", err))
	}

	log := crypto.NewLogger("EnsureCredentials")
	log.WithField("contact_id", self.ID).Info("Created identity credentials")
	return nil
}

// Register registers self with the relay. On failure self stays unregistered
// and the call can be repeated on the next connection.
func (e *Engine) Register(ctx context.Context, srv rpc.Server, self *model.Contact) error {
	log := crypto.NewLogger("Register")

	if err := e.EnsureCredentials(ctx, self); err != nil {
		return err
	}
	sd := self.MustSelf()
	salt, err := hex.DecodeString(sd.Credentials.Salt)
	if err != nil {
		return phaseError(PhaseCredentials, fmt.Errorf("stored salt: %w", err))
	}

	clientID, err := srv.GenerateID(ctx)
	if err != nil {
		log.WithError(err, "rpc_error", "generateId").Warn("Registration failed")
		return phaseError(PhaseRegister, err)
	}

	verifier := srp.Verifier(e.group, salt, clientID, sd.Credentials.Secret)
	if err := srv.SRPRegister(ctx, hex.EncodeToString(verifier), sd.Credentials.Salt); err != nil {
		log.WithError(err, "rpc_error", "srpRegister").Warn("Registration failed")
		return phaseError(PhaseRegister, err)
	}

	sd.ClientID = clientID
	sd.Registered = true
	if err := e.store.SaveContact(ctx, self); err != nil {
		return phaseError(PhaseRegister, fmt.Errorf("persist registration: %w", err))
	}

	log.WithField("client_id", clientID).Info("Registered identity")
	return nil
}

// Login proves knowledge of the stored secret and verifies the relay's proof.
func (e *Engine) Login(ctx context.Context, srv rpc.Server, self *model.Contact) error {
	log := crypto.NewLogger("Login")

	sd := self.MustSelf()
	if !sd.Registered || sd.Credentials == nil || sd.ClientID == "" {
		return phaseError(PhaseLogin1, ErrNotRegistered)
	}
	salt, err := hex.DecodeString(sd.Credentials.Salt)
	if err != nil {
		return phaseError(PhaseLogin1, fmt.Errorf("stored salt: %w", err))
	}

	client, err := srp.NewClient(e.group, salt, sd.ClientID, sd.Credentials.Secret)
	if err != nil {
		return phaseError(PhaseLogin1, err)
	}

	bHex, err := srv.SRPPhase1(ctx, sd.ClientID, hex.EncodeToString(client.PublicA()))
	if err != nil {
		log.WithError(err, "rpc_error", "srpPhase1").Warn("Login failed")
		return phaseError(PhaseLogin1, err)
	}
	b, err := hex.DecodeString(bHex)
	if err != nil {
		return phaseError(PhaseLogin1, fmt.Errorf("server value: %w", err))
	}
	m1, err := client.ProcessChallenge(b)
	if err != nil {
		return phaseError(PhaseLogin1, err)
	}

	m2Hex, err := srv.SRPPhase2(ctx, hex.EncodeToString(m1))
	if err != nil {
		log.WithError(err, "rpc_error", "srpPhase2").Warn("Login failed")
		return phaseError(PhaseLogin2, err)
	}
	m2, err := hex.DecodeString(m2Hex)
	if err != nil {
		return phaseError(PhaseLogin2, fmt.Errorf("server proof: %w", err))
	}
	if err := client.VerifyServerProof(m2); err != nil {
		log.WithField("client_id", sd.ClientID).Error("Server proof mismatch")
		return phaseError(PhaseLogin2, ErrServerProofMismatch)
	}

	log.WithField("client_id", sd.ClientID).Debug("Logged in")
	return nil
}
