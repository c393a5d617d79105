package testing

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
)

// Relay errors.
var (
	ErrNotLoggedIn   = &rpc.Error{Code: -32001, Message: "not logged in"}
	ErrAuthFailed    = &rpc.Error{Code: -32002, Message: "authentication failed"}
	ErrNotFound      = &rpc.Error{Code: -32004, Message: "not found"}
	ErrNotPermitted  = &rpc.Error{Code: -32003, Message: "not permitted"}
	ErrSessionClosed = errors.New("simulated session closed")
)

// DeliveryRecord represents an accepted delivery for test verification.
type DeliveryRecord struct {
	MessageID  string
	SenderID   string
	ReceiverID string
	GroupID    string
	Size       int
	Pushed     bool
	Timestamp  time.Time
}

type account struct {
	verifier []byte
	salt     []byte
}

type storedMessage struct {
	message    *model.Message
	deliveries map[string]*model.Delivery
}

// SimulatedRelay is an in-memory relay server.
type SimulatedRelay struct {
	mu sync.Mutex

	accounts      map[string]*account
	sessions      map[*session]struct{}
	presences     map[string]*model.Presence
	relationships map[string]map[string]*model.Relationship
	keys          map[string]map[string]*model.Key
	groups        map[string]*model.GroupPresence
	members       map[string]map[string]*model.GroupMember
	messages      map[string]*storedMessage
	queued        map[string][]string
	tokens        map[string]string

	calls        map[string]int
	failures     map[string][]error
	connectFails []error
	forgeProof   bool
	deliveryLog  []DeliveryRecord
}

// NewSimulatedRelay creates an empty relay.
func NewSimulatedRelay() *SimulatedRelay {
	logrus.Warn("SIMULATION FUNCTION - NOT A REAL OPERATION")
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedRelay",
	}).Info("Creating simulated relay for testing")

	return &SimulatedRelay{
		accounts:      make(map[string]*account),
		sessions:      make(map[*session]struct{}),
		presences:     make(map[string]*model.Presence),
		relationships: make(map[string]map[string]*model.Relationship),
		keys:          make(map[string]map[string]*model.Key),
		groups:        make(map[string]*model.GroupPresence),
		members:       make(map[string]map[string]*model.GroupMember),
		messages:      make(map[string]*storedMessage),
		queued:        make(map[string][]string),
		tokens:        make(map[string]string),
		calls:         make(map[string]int),
		failures:      make(map[string][]error),
	}
}

// Connector returns a new connector bound to this relay.
func (r *SimulatedRelay) Connector() *SimulatedConnector {
	return &SimulatedConnector{relay: r}
}

// FailNext makes the next call of method return err without side effects.
func (r *SimulatedRelay) FailNext(method string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[method] = append(r.failures[method], err)
}

// FailConnect makes the next Connect on any connector of this relay fail.
func (r *SimulatedRelay) FailConnect(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectFails = append(r.connectFails, err)
}

// ForgeServerProof makes phase 2 of every login return an invalid server proof.
func (r *SimulatedRelay) ForgeServerProof(forge bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgeProof = forge
}

// CallCount returns how often method has been called.
func (r *SimulatedRelay) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// IsRegistered reports whether clientID has an SRP verifier.
func (r *SimulatedRelay) IsRegistered(clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.accounts[clientID]
	return ok
}

// Member returns the relay's record of a group member.
func (r *SimulatedRelay) Member(groupID, clientID string) (*model.GroupMember, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[groupID][clientID]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Delivery returns the relay's record of a delivery.
func (r *SimulatedRelay) Delivery(messageID, receiverID string) (*model.Delivery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.messages[messageID]
	if !ok {
		return nil, false
	}
	d, ok := stored.deliveries[receiverID]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

// GetDeliveryLog returns a copy of the delivery log.
func (r *SimulatedRelay) GetDeliveryLog() []DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeliveryRecord(nil), r.deliveryLog...)
}

// ClearDeliveryLog resets the delivery log and call counters.
func (r *SimulatedRelay) ClearDeliveryLog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveryLog = nil
	r.calls = make(map[string]int)
}

// DropConnections closes every open session with err.
func (r *SimulatedRelay) DropConnections(err error) {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "DropConnections",
		"count":    len(sessions),
	}).Info("Dropping simulated connections")

	for _, s := range sessions {
		s.close(err)
	}
}

// PushAlert sends an alertUser push to clientID if it is online.
func (r *SimulatedRelay) PushAlert(clientID, message string) bool {
	r.mu.Lock()
	targets := r.onlineLocked(clientID)
	r.mu.Unlock()
	for _, s := range targets {
		s.handler.AlertUser(message)
	}
	return len(targets) > 0
}

// PushIncoming injects an incoming delivery for clientID as if another client
// had sent it.
func (r *SimulatedRelay) PushIncoming(clientID string, delivery *model.Delivery, message *model.Message) bool {
	r.mu.Lock()
	targets := r.onlineLocked(clientID)
	r.mu.Unlock()
	for _, s := range targets {
		d, m := *delivery, *message
		s.handler.IncomingDelivery(&d, &m)
	}
	return len(targets) > 0
}

// enter records a call and returns an injected failure, if any.
func (r *SimulatedRelay) enter(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
	if errs := r.failures[method]; len(errs) > 0 {
		err := errs[0]
		r.failures[method] = errs[1:]
		return err
	}
	return nil
}

func (r *SimulatedRelay) onlineLocked(clientID string) []*session {
	var out []*session
	for s := range r.sessions {
		if s.loggedIn && s.clientID == clientID {
			out = append(out, s)
		}
	}
	return out
}

func (r *SimulatedRelay) relatedLocked(clientID string) []string {
	var out []string
	for other, rel := range r.relationships[clientID] {
		if rel.State == model.RelationshipRelated {
			out = append(out, other)
		}
	}
	return out
}

func (r *SimulatedRelay) groupAudienceLocked(groupID string) []string {
	var out []string
	for clientID, m := range r.members[groupID] {
		if m.State != model.MemberNone {
			out = append(out, clientID)
		}
	}
	return out
}

func (r *SimulatedRelay) setRelationshipLocked(clientID, otherID, state string) *model.Relationship {
	if r.relationships[clientID] == nil {
		r.relationships[clientID] = make(map[string]*model.Relationship)
	}
	rel := &model.Relationship{
		ClientID:      clientID,
		OtherClientID: otherID,
		State:         state,
		LastChanged:   time.Now(),
	}
	r.relationships[clientID][otherID] = rel
	return rel
}

func (r *SimulatedRelay) isAdminLocked(groupID, clientID string) bool {
	m, ok := r.members[groupID][clientID]
	return ok && m.Role == model.RoleAdmin && m.State == model.MemberJoined
}

func newID() string {
	return uuid.NewString()
}

// pushes collects notifications to send once the relay lock is released.
type pushes []func()

func (p *pushes) add(fn func()) {
	*p = append(*p, fn)
}

func (p pushes) run() {
	for _, fn := range p {
		fn()
	}
}

func (r *SimulatedRelay) pushMemberLocked(p *pushes, audience []string, member *model.GroupMember) {
	for _, clientID := range audience {
		for _, s := range r.onlineLocked(clientID) {
			s, m := s, *member
			p.add(func() { s.handler.GroupMemberUpdated(&m) })
		}
	}
}

func (r *SimulatedRelay) pushGroupLocked(p *pushes, audience []string, group *model.GroupPresence) {
	for _, clientID := range audience {
		for _, s := range r.onlineLocked(clientID) {
			s, g := s, *group
			g.Admins = append([]string(nil), group.Admins...)
			p.add(func() { s.handler.GroupUpdated(&g) })
		}
	}
}

func (r *SimulatedRelay) readyLocked(clientID string) []*session {
	var out []*session
	for _, s := range r.onlineLocked(clientID) {
		if s.ready {
			out = append(out, s)
		}
	}
	return out
}
