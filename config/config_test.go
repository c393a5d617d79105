package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/xotalk/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsOfRecord(t *testing.T) {
	o := Default()
	require.NoError(t, o.Validate())

	cc := o.ConnectorConfig()
	assert.Equal(t, 15*time.Second, cc.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cc.RequestTimeout)
	assert.Equal(t, 600*time.Second, Seconds(o.Session.IdleTimeout))
	assert.Equal(t, 120*time.Second, Seconds(o.Session.KeepAlive))
	assert.Equal(t, 3*time.Second, Seconds(o.Session.BackoffFixed))
	assert.Equal(t, time.Second, Seconds(o.Session.BackoffFactor))
	assert.Equal(t, 120*time.Second, Seconds(o.Session.BackoffMax))
	assert.Equal(t, []string{rpc.ProtocolCBOR, rpc.ProtocolJSON}, cc.Protocols)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xotalk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: wss://relay.example/ws
  protocol: xo.talk.v1.json
session:
  connect_timeout: 5
  keep_alive: 30.5
storage:
  database: /var/lib/xotalk/state.db
`), 0o600))

	t.Setenv("XOTALK_KEEPALIVE", "45")
	t.Setenv("XOTALK_REQUEST_TIMEOUT", "not-a-number")
	t.Setenv("XOTALK_IDLE_TIMEOUT", "0.001")
	t.Setenv("XOTALK_USE_SIMULATION", "maybe")
	t.Setenv("XOTALK_PASSPHRASE", "correct horse")

	o, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example/ws", o.Server.URL)
	assert.Equal(t, []string{rpc.ProtocolJSON, rpc.ProtocolCBOR}, o.Protocols())
	assert.Equal(t, 5.0, o.Session.ConnectTimeout)
	assert.Equal(t, 45.0, o.Session.KeepAlive)
	assert.Equal(t, 60.0, o.Session.RequestTimeout)
	assert.Equal(t, 600.0, o.Session.IdleTimeout)
	assert.False(t, o.Server.UseSimulation)
	assert.Equal(t, "/var/lib/xotalk/state.db", o.Storage.Database)
	assert.Equal(t, "downloads", o.Storage.DownloadDir)
	assert.Equal(t, "correct horse", o.Storage.Passphrase)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("session:\n  connect_timeout: 0\n"), 0o600))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidTiming)

	proto := filepath.Join(dir, "proto.yaml")
	require.NoError(t, os.WriteFile(proto, []byte("server:\n  protocol: xo.talk.v0\n"), 0o600))
	_, err = Load(proto)
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}
