package main

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLIFlags(t *testing.T) {
	cfg, _, err := parseCLIFlags([]string{
		"--server", "wss://relay.example.org/ws",
		"--db", "alice.db",
		"--protocol", "xo.talk.v1.json",
		"--to", "bob", "--send", "hi",
		"--wait", "30s",
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.org/ws", cfg.server)
	assert.Equal(t, "alice.db", cfg.database)
	assert.Equal(t, "xo.talk.v1.json", cfg.protocol)
	assert.Equal(t, "bob", cfg.to)
	assert.Equal(t, "hi", cfg.send)
	assert.Equal(t, 30*time.Second, cfg.waitTimeout)
	assert.NoError(t, validateCLIConfig(cfg))
}

func TestParseCLIFlagsErrors(t *testing.T) {
	_, _, err := parseCLIFlags([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)

	_, _, err = parseCLIFlags([]string{"stray"})
	assert.Error(t, err)

	_, _, err = parseCLIFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestValidateCLIConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CLIConfig
		wantErr bool
	}{
		{"defaults", CLIConfig{waitTimeout: time.Minute}, false},
		{"send without recipient", CLIConfig{send: "hi", waitTimeout: time.Minute}, true},
		{"recipient without text", CLIConfig{to: "bob", waitTimeout: time.Minute}, true},
		{"zero wait", CLIConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCLIConfig(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv("XOTALK_TEST_PASSPHRASE", "correct horse")
	cfg, err := loadConfig(&CLIConfig{
		server:        "wss://relay.example.org/ws",
		database:      "bob.db",
		passphraseEnv: "XOTALK_TEST_PASSPHRASE",
		simulate:      true,
		logLevel:      "debug",
	})
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example.org/ws", cfg.Server.URL)
	assert.Equal(t, "bob.db", cfg.Storage.Database)
	assert.Equal(t, "correct horse", cfg.Storage.Passphrase)
	assert.True(t, cfg.Server.UseSimulation)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = loadConfig(&CLIConfig{protocol: "xml"})
	assert.Error(t, err)
}
