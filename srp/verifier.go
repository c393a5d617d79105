package srp

import (
	"math/big"
)

// ComputeX derives the private value x = H(salt | H(identity ":" secret)).
func ComputeX(group *Group, salt []byte, identity, secret string) *big.Int {
	inner := group.hash([]byte(identity), []byte(":"), []byte(secret))
	return group.hashInt(salt, inner)
}

// Verifier computes the value v = g^x mod N that the server stores in place of
// the secret.
func Verifier(group *Group, salt []byte, identity, secret string) []byte {
	x := ComputeX(group, salt, identity, secret)
	return new(big.Int).Exp(group.G, x, group.N).Bytes()
}
