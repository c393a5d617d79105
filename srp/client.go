package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrInvalidPublic is returned when the peer's ephemeral value is 0 mod N.
	ErrInvalidPublic = errors.New("srp: invalid ephemeral public value")
	// ErrBadProof is returned when a proof does not match.
	ErrBadProof = errors.New("srp: proof mismatch")
	// ErrState is returned when the exchange steps are called out of order.
	ErrState = errors.New("srp: exchange step out of order")
)

// Client runs the login side of one SRP exchange. A Client is single-use.
type Client struct {
	group *Group
	x     *big.Int
	a     *big.Int
	A     *big.Int
	B     *big.Int
	S     *big.Int
	m1    []byte
}

// NewClient prepares an exchange for identity with the stored salt and secret.
func NewClient(group *Group, salt []byte, identity, secret string) (*Client, error) {
	a, err := randomExponent(group)
	if err != nil {
		return nil, err
	}
	return &Client{
		group: group,
		x:     ComputeX(group, salt, identity, secret),
		a:     a,
		A:     new(big.Int).Exp(group.G, a, group.N),
	}, nil
}

// PublicA returns the client ephemeral value A sent in phase 1.
func (c *Client) PublicA() []byte {
	return c.A.Bytes()
}

// ProcessChallenge consumes the server ephemeral B from phase 1 and returns the
// client proof M1 sent in phase 2.
func (c *Client) ProcessChallenge(publicB []byte) ([]byte, error) {
	B := new(big.Int).SetBytes(publicB)
	if !c.group.isValidPublic(B) {
		return nil, ErrInvalidPublic
	}

	u := c.group.scrambler(c.A, B)
	if u.Sign() == 0 {
		return nil, ErrInvalidPublic
	}

	N := c.group.N
	k := c.group.multiplier()

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(c.group.G, c.x, N)
	base := new(big.Int).Sub(B, new(big.Int).Mul(k, gx))
	base.Mod(base, N)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, c.x))

	c.B = B
	c.S = new(big.Int).Exp(base, exp, N)
	c.m1 = c.group.clientEvidence(c.A, B, c.S)
	return c.m1, nil
}

// VerifyServerProof checks the server proof M2 returned by phase 2.
func (c *Client) VerifyServerProof(m2 []byte) error {
	if c.S == nil {
		return ErrState
	}
	expected := c.group.serverEvidence(c.A, c.m1, c.S)
	if subtle.ConstantTimeCompare(expected, m2) != 1 {
		return ErrBadProof
	}
	return nil
}

// SessionKey returns K after a successful challenge.
func (c *Client) SessionKey() ([]byte, error) {
	if c.S == nil {
		return nil, ErrState
	}
	return c.group.sessionKey(c.S), nil
}

func randomExponent(group *Group) (*big.Int, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("srp: failed to generate ephemeral: %w", err)
	}
	e := new(big.Int).SetBytes(buf)
	return e.Mod(e, group.N), nil
}
