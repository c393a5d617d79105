package testing

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/srp"
	"github.com/sirupsen/logrus"
)

// session is one client connection to the relay.
type session struct {
	relay   *SimulatedRelay
	handler rpc.NotificationHandler
	onClose func(error)

	// guarded by relay.mu
	generatedID string
	clientID    string
	loggedIn    bool
	ready       bool
	srpServer   *srp.Server
	srpClientID string

	closeOnce sync.Once
	closed    bool
}

var _ rpc.Server = (*session)(nil)

func (s *session) close(err error) {
	s.closeOnce.Do(func() {
		s.relay.mu.Lock()
		s.closed = true
		s.loggedIn = false
		s.ready = false
		delete(s.relay.sessions, s)
		s.relay.mu.Unlock()
		if s.onClose != nil {
			s.onClose(err)
		}
	})
}

// begin records the call and checks the session state. The relay lock is held
// on success and must be released by the caller.
func (s *session) begin(method string, needLogin bool) error {
	if err := s.relay.enter(method); err != nil {
		return err
	}
	s.relay.mu.Lock()
	if s.closed {
		s.relay.mu.Unlock()
		return rpc.ErrClosed
	}
	if needLogin && !s.loggedIn {
		s.relay.mu.Unlock()
		return ErrNotLoggedIn
	}
	return nil
}

func (s *session) Ping(ctx context.Context) error {
	if err := s.begin(rpc.MethodPing, false); err != nil {
		return err
	}
	s.relay.mu.Unlock()
	return nil
}

func (s *session) GenerateID(ctx context.Context) (string, error) {
	if err := s.begin(rpc.MethodGenerateID, false); err != nil {
		return "", err
	}
	defer s.relay.mu.Unlock()
	s.generatedID = newID()
	return s.generatedID, nil
}

func (s *session) SRPRegister(ctx context.Context, verifier, salt string) error {
	if err := s.begin(rpc.MethodSRPRegister, false); err != nil {
		return err
	}
	defer s.relay.mu.Unlock()
	if s.generatedID == "" {
		return &rpc.Error{Code: rpc.CodeInvalidRequest, Message: "generateId first"}
	}
	v, err := hex.DecodeString(verifier)
	if err != nil {
		return &rpc.Error{Code: rpc.CodeInvalidParams, Message: "bad verifier"}
	}
	sa, err := hex.DecodeString(salt)
	if err != nil {
		return &rpc.Error{Code: rpc.CodeInvalidParams, Message: "bad salt"}
	}
	s.relay.accounts[s.generatedID] = &account{verifier: v, salt: sa}
	return nil
}

func (s *session) SRPPhase1(ctx context.Context, clientID, publicA string) (string, error) {
	if err := s.begin(rpc.MethodSRPPhase1, false); err != nil {
		return "", err
	}
	defer s.relay.mu.Unlock()
	acct, ok := s.relay.accounts[clientID]
	if !ok {
		return "", ErrAuthFailed
	}
	A, err := hex.DecodeString(publicA)
	if err != nil {
		return "", &rpc.Error{Code: rpc.CodeInvalidParams, Message: "bad A"}
	}
	srv, err := srp.NewServer(srp.RFC5054Group2048, acct.verifier)
	if err != nil {
		return "", &rpc.Error{Code: rpc.CodeInternalError, Message: err.Error()}
	}
	B, err := srv.ProcessPublicA(A)
	if err != nil {
		return "", ErrAuthFailed
	}
	s.srpServer = srv
	s.srpClientID = clientID
	return hex.EncodeToString(B), nil
}

func (s *session) SRPPhase2(ctx context.Context, clientProof string) (string, error) {
	if err := s.begin(rpc.MethodSRPPhase2, false); err != nil {
		return "", err
	}
	if s.srpServer == nil {
		s.relay.mu.Unlock()
		return "", ErrAuthFailed
	}
	m1, err := hex.DecodeString(clientProof)
	if err != nil {
		s.relay.mu.Unlock()
		return "", ErrAuthFailed
	}
	m2, err := s.srpServer.VerifyClientProof(m1)
	s.srpServer = nil
	if err != nil {
		s.relay.mu.Unlock()
		return "", ErrAuthFailed
	}
	if s.relay.forgeProof {
		m2 = make([]byte, len(m2))
	}
	s.clientID = s.srpClientID
	s.loggedIn = true
	s.relay.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "SRPPhase2",
		"client_id": s.clientID,
	}).Info("Simulated client logged in")

	return hex.EncodeToString(m2), nil
}

func (s *session) Ready(ctx context.Context) error {
	if err := s.begin(rpc.MethodReady, true); err != nil {
		return err
	}
	s.ready = true

	// deliveries accepted while the client was offline
	var p pushes
	for _, messageID := range s.relay.queued[s.clientID] {
		stored := s.relay.messages[messageID]
		d := *stored.deliveries[s.clientID]
		m := *stored.message
		p.add(func() { s.handler.IncomingDelivery(&d, &m) })
	}
	delete(s.relay.queued, s.clientID)
	s.relay.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "Ready",
		"client_id": s.clientID,
		"queued":    len(p),
	}).Info("Simulated client ready")

	p.run()
	return nil
}

func (s *session) GetPresences(ctx context.Context, since time.Time) ([]*model.Presence, error) {
	if err := s.begin(rpc.MethodGetPresences, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()

	seen := make(map[string]bool)
	var out []*model.Presence
	add := func(clientID string) {
		if seen[clientID] || clientID == s.clientID {
			return
		}
		seen[clientID] = true
		if p, ok := s.relay.presences[clientID]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	for other := range s.relay.relationships[s.clientID] {
		add(other)
	}
	for groupID, members := range s.relay.members {
		if _, ok := members[s.clientID]; !ok {
			continue
		}
		for _, clientID := range s.relay.groupAudienceLocked(groupID) {
			add(clientID)
		}
	}
	return out, nil
}

func (s *session) GetRelationships(ctx context.Context, since time.Time) ([]*model.Relationship, error) {
	if err := s.begin(rpc.MethodGetRelationships, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()
	var out []*model.Relationship
	for _, rel := range s.relay.relationships[s.clientID] {
		cp := *rel
		out = append(out, &cp)
	}
	return out, nil
}

func (s *session) GetGroups(ctx context.Context, since time.Time) ([]*model.GroupPresence, error) {
	if err := s.begin(rpc.MethodGetGroups, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()
	var out []*model.GroupPresence
	for groupID, members := range s.relay.members {
		if _, ok := members[s.clientID]; !ok {
			continue
		}
		g := *s.relay.groups[groupID]
		g.Admins = append([]string(nil), g.Admins...)
		out = append(out, &g)
	}
	return out, nil
}

func (s *session) GetGroupMembers(ctx context.Context, groupID string, since time.Time) ([]*model.GroupMember, error) {
	if err := s.begin(rpc.MethodGetGroupMembers, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()
	members, ok := s.relay.members[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []*model.GroupMember
	for _, m := range members {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *session) UpdatePresence(ctx context.Context, presence *model.Presence) error {
	if err := s.begin(rpc.MethodUpdatePresence, true); err != nil {
		return err
	}
	stored, ok := s.relay.presences[s.clientID]
	if !ok {
		stored = &model.Presence{}
		s.relay.presences[s.clientID] = stored
	}
	stored.Merge(presence)
	stored.ClientID = s.clientID
	stored.Timestamp = time.Now()

	var p pushes
	for _, other := range s.relay.relatedLocked(s.clientID) {
		for _, target := range s.relay.onlineLocked(other) {
			target, cp := target, *stored
			p.add(func() { target.handler.PresenceUpdated(&cp) })
		}
	}
	s.relay.mu.Unlock()
	p.run()
	return nil
}

func (s *session) UpdateKey(ctx context.Context, key *model.Key) error {
	if err := s.begin(rpc.MethodUpdateKey, true); err != nil {
		return err
	}
	defer s.relay.mu.Unlock()
	if s.relay.keys[s.clientID] == nil {
		s.relay.keys[s.clientID] = make(map[string]*model.Key)
	}
	k := *key
	k.ClientID = s.clientID
	s.relay.keys[s.clientID][k.KeyID] = &k
	return nil
}

func (s *session) GetKey(ctx context.Context, clientID, keyID string) (*model.Key, error) {
	if err := s.begin(rpc.MethodGetKey, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()
	k, ok := s.relay.keys[clientID][keyID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *session) GenerateToken(ctx context.Context, purpose string, lifetimeSeconds int) (string, error) {
	if err := s.begin(rpc.MethodGenerateToken, true); err != nil {
		return "", err
	}
	defer s.relay.mu.Unlock()
	token := newID()
	s.relay.tokens[token] = s.clientID
	return token, nil
}

func (s *session) PairByToken(ctx context.Context, secret string) (bool, error) {
	if err := s.begin(rpc.MethodPairByToken, true); err != nil {
		return false, err
	}
	owner, ok := s.relay.tokens[secret]
	if !ok || owner == s.clientID {
		s.relay.mu.Unlock()
		return false, nil
	}
	delete(s.relay.tokens, secret)

	var p pushes
	s.relationshipChangedLocked(&p, s.clientID, owner, model.RelationshipRelated)
	s.relationshipChangedLocked(&p, owner, s.clientID, model.RelationshipRelated)
	s.relay.mu.Unlock()
	p.run()
	return true, nil
}

// relationshipChangedLocked updates clientID's view of otherID and pushes it,
// followed by otherID's presence, to clientID.
func (s *session) relationshipChangedLocked(p *pushes, clientID, otherID, state string) {
	rel := *s.relay.setRelationshipLocked(clientID, otherID, state)
	presence, hasPresence := s.relay.presences[otherID]
	for _, target := range s.relay.onlineLocked(clientID) {
		target := target
		p.add(func() { target.handler.RelationshipUpdated(&rel) })
		if hasPresence {
			cp := *presence
			p.add(func() { target.handler.PresenceUpdated(&cp) })
		}
	}
}

func (s *session) DepairClient(ctx context.Context, clientID string) error {
	if err := s.begin(rpc.MethodDepairClient, true); err != nil {
		return err
	}
	var p pushes
	s.relationshipChangedLocked(&p, s.clientID, clientID, model.RelationshipNone)
	s.relationshipChangedLocked(&p, clientID, s.clientID, model.RelationshipNone)
	s.relay.mu.Unlock()
	p.run()
	return nil
}

func (s *session) BlockClient(ctx context.Context, clientID string) error {
	return s.setOwnRelationship(rpc.MethodBlockClient, clientID, model.RelationshipBlocked)
}

func (s *session) UnblockClient(ctx context.Context, clientID string) error {
	return s.setOwnRelationship(rpc.MethodUnblockClient, clientID, model.RelationshipRelated)
}

func (s *session) setOwnRelationship(method, clientID, state string) error {
	if err := s.begin(method, true); err != nil {
		return err
	}
	var p pushes
	s.relationshipChangedLocked(&p, s.clientID, clientID, state)
	s.relay.mu.Unlock()
	p.run()
	return nil
}

func (s *session) CreateFileForStorage(ctx context.Context, contentSize int64) (*model.FileHandles, error) {
	if err := s.begin(rpc.MethodCreateFileForStorage, true); err != nil {
		return nil, err
	}
	defer s.relay.mu.Unlock()
	id := newID()
	return &model.FileHandles{
		FileID:      id,
		UploadURL:   "sim://storage/upload/" + id,
		DownloadURL: "sim://storage/download/" + id,
	}, nil
}
