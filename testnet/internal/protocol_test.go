package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolSuiteSharesInProcessRelay(t *testing.T) {
	cfg := DefaultProtocolConfig()
	cfg.RSABits = 1024
	pts := NewProtocolTestSuite(cfg)
	defer pts.Cleanup()

	require.NoError(t, pts.ExecuteTest(context.Background()))
	require.NotNil(t, pts.relay)
	assert.Len(t, pts.relay.GetDeliveryLog(), 2)
	assert.NotEqual(t, pts.clientA.GetClientID(), pts.clientB.GetClientID())

	status := pts.clientA.GetStatus()
	assert.EqualValues(t, 1, status["messages_sent"])
	assert.EqualValues(t, 1, status["messages_received"])
}

func TestRetryOperation(t *testing.T) {
	cfg := DefaultProtocolConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.Logger = logrus.NewEntry(logrus.New())
	pts := NewProtocolTestSuite(cfg)

	calls := 0
	err := pts.retryOperation(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = pts.retryOperation(context.Background(), func() error {
		calls++
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}
