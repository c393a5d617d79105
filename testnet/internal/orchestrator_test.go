package internal

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/opd-ai/xotalk/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *TestConfig {
	cfg := DefaultTestConfig()
	cfg.OverallTimeout = time.Minute
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.RSABits = 1024
	cfg.VerboseOutput = false
	return cfg
}

func TestTestStatusString(t *testing.T) {
	assert.Equal(t, "PENDING", TestStatusPending.String())
	assert.Equal(t, "PASSED", TestStatusPassed.String())
	assert.Equal(t, "FAILED", TestStatusFailed.String())
	assert.Equal(t, "UNKNOWN", TestStatus(42).String())
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TestConfig)
		wantErr bool
	}{
		{"defaults", func(*TestConfig) {}, false},
		{"json", func(c *TestConfig) { c.Protocol = rpc.ProtocolJSON }, false},
		{"zero overall", func(c *TestConfig) { c.OverallTimeout = 0 }, true},
		{"zero connection", func(c *TestConfig) { c.ConnectionTimeout = 0 }, true},
		{"zero message", func(c *TestConfig) { c.MessageTimeout = 0 }, true},
		{"negative retries", func(c *TestConfig) { c.RetryAttempts = -1 }, true},
		{"zero backoff", func(c *TestConfig) { c.RetryBackoff = 0 }, true},
		{"unknown protocol", func(c *TestConfig) { c.Protocol = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTestConfig()
			tt.mutate(cfg)
			o, err := NewTestOrchestrator(cfg)
			require.NoError(t, err)
			if tt.wantErr {
				assert.Error(t, o.ValidateConfiguration())
			} else {
				assert.NoError(t, o.ValidateConfiguration())
			}
		})
	}
}

func TestRunTestsAgainstInProcessRelay(t *testing.T) {
	o, err := NewTestOrchestrator(testConfig())
	require.NoError(t, err)
	var out bytes.Buffer
	o.SetLogOutput(&out)

	results, err := o.RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TestStatusPassed, results.FinalStatus)
	assert.Equal(t, 1, results.PassedTests)
	require.Len(t, results.TestSteps, 1)
	assert.Equal(t, TestStatusPassed, results.TestSteps[0].Status)
	assert.Contains(t, out.String(), "Test execution summary")
}

func TestRunTestsReportsUnreachableRelay(t *testing.T) {
	cfg := testConfig()
	cfg.RelayURL = "ws://127.0.0.1:1/ws"
	cfg.ConnectionTimeout = 300 * time.Millisecond
	o, err := NewTestOrchestrator(cfg)
	require.NoError(t, err)
	o.SetLogOutput(&bytes.Buffer{})

	results, err := o.RunTests(context.Background())
	assert.Error(t, err)
	assert.Equal(t, TestStatusFailed, results.FinalStatus)
	assert.NotEmpty(t, results.ErrorDetails)
}
