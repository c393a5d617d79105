package srp

import (
	"crypto/sha256"
	"hash"
	"math/big"
	"strings"
)

// Group holds the SRP group parameters and digest.
type Group struct {
	N       *big.Int
	G       *big.Int
	NewHash func() hash.Hash
}

const rfc5054N2048 = `
AC6BDB41 324A9A9B F166DE5E 1389582F AF72B665 1987EE07 FC319294
3DB56050 A37329CB B4A099ED 8193E075 7767A13D D52312AB 4B03310D
CD7F48A9 DA04FD50 E8083969 EDB767B0 CF609517 9A163AB3 661A05FB
D5FAAAE8 2918A996 2F0B93B8 55F97993 EC975EEA A80D740A DBF4FF74
7359D041 D5C33EA7 1D281E44 6B14773B CA97B43A 23FB8016 76BD207A
436C6481 F1D2B907 8717461A 5B9D32E6 88F87748 544523B5 24B0D57D
5EA77A27 75D2ECFA 032CFBDB F52FB378 61602790 04E57AE6 AF874E73
03CE5329 9CCC041C 7BC308D8 2A5698F3 A8D0C382 71AE35F8 E9DBFBB6
94B5C803 D89F7AE4 35DE236D 525F5475 9B65E372 FCD68EF2 0FA7111F
9E4AFF73`

// RFC5054Group2048 is the 2048 bit group from RFC 5054 appendix A with SHA-256.
var RFC5054Group2048 = mustGroup(rfc5054N2048, 2)

func mustGroup(hexN string, g int64) *Group {
	n, ok := new(big.Int).SetString(strings.Join(strings.Fields(hexN), ""), 16)
	if !ok {
		panic("srp: invalid group modulus")
	}
	return &Group{N: n, G: big.NewInt(g), NewHash: sha256.New}
}

// DigestSize returns the size of the group digest in bytes.
func (g *Group) DigestSize() int {
	return g.NewHash().Size()
}

func (g *Group) byteLen() int {
	return (g.N.BitLen() + 7) / 8
}

// pad left-pads x to the byte length of N.
func (g *Group) pad(x *big.Int) []byte {
	b := x.Bytes()
	n := g.byteLen()
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

func (g *Group) hash(parts ...[]byte) []byte {
	h := g.NewHash()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (g *Group) hashInt(parts ...[]byte) *big.Int {
	return new(big.Int).SetBytes(g.hash(parts...))
}

// multiplier computes k = H(PAD(N) | PAD(g)).
func (g *Group) multiplier() *big.Int {
	return g.hashInt(g.pad(g.N), g.pad(g.G))
}

// scrambler computes u = H(PAD(A) | PAD(B)).
func (g *Group) scrambler(A, B *big.Int) *big.Int {
	return g.hashInt(g.pad(A), g.pad(B))
}

// clientEvidence computes M1 = H(PAD(A) | PAD(B) | PAD(S)).
func (g *Group) clientEvidence(A, B, S *big.Int) []byte {
	return g.hash(g.pad(A), g.pad(B), g.pad(S))
}

// serverEvidence computes M2 = H(PAD(A) | PAD(M1) | PAD(S)).
func (g *Group) serverEvidence(A *big.Int, M1 []byte, S *big.Int) []byte {
	return g.hash(g.pad(A), g.pad(new(big.Int).SetBytes(M1)), g.pad(S))
}

// sessionKey computes K = H(PAD(S)).
func (g *Group) sessionKey(S *big.Int) []byte {
	return g.hash(g.pad(S))
}

// isValidPublic reports whether v mod N is non-zero.
func (g *Group) isValidPublic(v *big.Int) bool {
	return new(big.Int).Mod(v, g.N).Sign() != 0
}
