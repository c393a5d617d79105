package srp

import (
	"crypto/subtle"
	"math/big"
)

// Server runs the verifier side of one SRP exchange.
type Server struct {
	group *Group
	v     *big.Int
	b     *big.Int
	A     *big.Int
	B     *big.Int
	S     *big.Int
}

// NewServer prepares an exchange against a stored verifier.
func NewServer(group *Group, verifier []byte) (*Server, error) {
	b, err := randomExponent(group)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(verifier)
	k := group.multiplier()

	// B = (k*v + g^b) mod N
	B := new(big.Int).Mul(k, v)
	B.Add(B, new(big.Int).Exp(group.G, b, group.N))
	B.Mod(B, group.N)

	return &Server{group: group, v: v, b: b, B: B}, nil
}

// ProcessPublicA consumes the client ephemeral A from phase 1 and returns B.
func (s *Server) ProcessPublicA(publicA []byte) ([]byte, error) {
	A := new(big.Int).SetBytes(publicA)
	if !s.group.isValidPublic(A) {
		return nil, ErrInvalidPublic
	}
	u := s.group.scrambler(A, s.B)
	if u.Sign() == 0 {
		return nil, ErrInvalidPublic
	}

	N := s.group.N
	// S = (A * v^u) ^ b mod N
	base := new(big.Int).Mul(A, new(big.Int).Exp(s.v, u, N))
	base.Mod(base, N)

	s.A = A
	s.S = new(big.Int).Exp(base, s.b, N)
	return s.B.Bytes(), nil
}

// VerifyClientProof checks M1 from phase 2 and returns the server proof M2.
func (s *Server) VerifyClientProof(m1 []byte) ([]byte, error) {
	if s.S == nil {
		return nil, ErrState
	}
	expected := s.group.clientEvidence(s.A, s.B, s.S)
	if subtle.ConstantTimeCompare(expected, m1) != 1 {
		return nil, ErrBadProof
	}
	return s.group.serverEvidence(s.A, m1, s.S), nil
}
