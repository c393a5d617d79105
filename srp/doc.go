// Package srp implements the SRP-6a password-authenticated key exchange used to
// register and log in the local identity without transmitting its secret.
//
// Parameters are the RFC 5054 2048 bit group with SHA-256:
//
//	k  = H(PAD(N) | PAD(g))
//	x  = H(salt | H(identity ":" secret))
//	v  = g^x mod N
//	A  = g^a mod N
//	B  = (k*v + g^b) mod N
//	u  = H(PAD(A) | PAD(B))
//	S  = (B - k*g^x)^(a + u*x) mod N       (client)
//	   = (A * v^u)^b mod N                  (server)
//	M1 = H(PAD(A) | PAD(B) | PAD(S))
//	M2 = H(PAD(A) | PAD(M1) | PAD(S))
//	K  = H(PAD(S))
//
// Client performs the login side. Server performs the verifier side and exists so
// that relay implementations and tests can run the full exchange.
package srp
