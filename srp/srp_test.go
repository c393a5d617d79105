package srp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupParameters(t *testing.T) {
	assert.Equal(t, 2048, RFC5054Group2048.N.BitLen())
	assert.Equal(t, int64(2), RFC5054Group2048.G.Int64())
	assert.Equal(t, 32, RFC5054Group2048.DigestSize())
}

func runExchange(t *testing.T, salt []byte, verifierSecret, loginSecret string) (clientErr, serverErr error) {
	t.Helper()
	group := RFC5054Group2048
	verifier := Verifier(group, salt, "client-1", verifierSecret)

	client, err := NewClient(group, salt, "client-1", loginSecret)
	require.NoError(t, err)
	server, err := NewServer(group, verifier)
	require.NoError(t, err)

	B, err := server.ProcessPublicA(client.PublicA())
	require.NoError(t, err)

	m1, err := client.ProcessChallenge(B)
	require.NoError(t, err)

	m2, err := server.VerifyClientProof(m1)
	if err != nil {
		return nil, err
	}
	return client.VerifyServerProof(m2), nil
}

func TestExchangeSucceedsWithMatchingSecret(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")
	clientErr, serverErr := runExchange(t, salt, "secret", "secret")
	assert.NoError(t, serverErr)
	assert.NoError(t, clientErr)
}

func TestExchangeFailsWithWrongSecret(t *testing.T) {
	salt := []byte("0123456789abcdef0123456789abcdef")
	_, serverErr := runExchange(t, salt, "secret", "wrong")
	assert.ErrorIs(t, serverErr, ErrBadProof)
}

func TestSessionKeysAgree(t *testing.T) {
	group := RFC5054Group2048
	salt := []byte("salt")
	verifier := Verifier(group, salt, "id", "pw")

	client, err := NewClient(group, salt, "id", "pw")
	require.NoError(t, err)
	server, err := NewServer(group, verifier)
	require.NoError(t, err)

	B, err := server.ProcessPublicA(client.PublicA())
	require.NoError(t, err)
	_, err = client.ProcessChallenge(B)
	require.NoError(t, err)

	key, err := client.SessionKey()
	require.NoError(t, err)
	assert.Equal(t, group.sessionKey(server.S), key)
}

func TestClientRejectsForgedServerProof(t *testing.T) {
	group := RFC5054Group2048
	salt := []byte("salt")
	verifier := Verifier(group, salt, "id", "pw")

	client, _ := NewClient(group, salt, "id", "pw")
	server, _ := NewServer(group, verifier)
	B, _ := server.ProcessPublicA(client.PublicA())
	_, err := client.ProcessChallenge(B)
	require.NoError(t, err)

	assert.ErrorIs(t, client.VerifyServerProof(make([]byte, 32)), ErrBadProof)
}

func TestRejectsZeroPublicValues(t *testing.T) {
	group := RFC5054Group2048
	client, _ := NewClient(group, []byte("s"), "id", "pw")
	_, err := client.ProcessChallenge(group.N.Bytes())
	assert.ErrorIs(t, err, ErrInvalidPublic)

	server, _ := NewServer(group, Verifier(group, []byte("s"), "id", "pw"))
	_, err = server.ProcessPublicA([]byte{0})
	assert.ErrorIs(t, err, ErrInvalidPublic)
}

func TestOutOfOrderSteps(t *testing.T) {
	group := RFC5054Group2048
	client, _ := NewClient(group, []byte("s"), "id", "pw")
	assert.ErrorIs(t, client.VerifyServerProof(nil), ErrState)
	_, err := client.SessionKey()
	assert.ErrorIs(t, err, ErrState)

	server, _ := NewServer(group, []byte{1})
	_, err = server.VerifyClientProof(nil)
	assert.ErrorIs(t, err, ErrState)
}
