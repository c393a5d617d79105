package xotalk

import (
	"context"
	"sync"
	"testing"

	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/store"
	testsim "github.com/opd-ai/xotalk/testing"
	"github.com/stretchr/testify/require"
)

const testRSABits = 1024

// stateRecorder collects state listener calls.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *stateRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = nil
}

func (r *stateRecorder) saw(s State) bool {
	for _, got := range r.all() {
		if got == s {
			return true
		}
	}
	return false
}

// harness is a client driven step by step on a manual executor.
type harness struct {
	client *Client
	exec   *executor.Manual
	relay  *testsim.SimulatedRelay
	conn   *testsim.SimulatedConnector
	store  *store.Memory
	states *stateRecorder
}

func newHarness(t *testing.T, relay *testsim.SimulatedRelay) *harness {
	t.Helper()
	h := &harness{
		exec:   executor.NewManual(),
		relay:  relay,
		conn:   relay.Connector(),
		store:  store.NewMemory(),
		states: &stateRecorder{},
	}
	opts := NewOptions()
	opts.Store = h.store
	opts.Connector = h.conn
	opts.Executor = h.exec
	opts.TransferExecutor = executor.NewManual()
	opts.DownloadDir = t.TempDir()
	opts.RSABits = testRSABits
	opts.Rand = func() float64 { return 0 }

	c, err := New(opts)
	require.NoError(t, err)
	h.client = c
	c.AddStateListener(h.states.record)
	t.Cleanup(func() {
		c.Close()
		h.exec.RunPending()
	})
	return h
}

// activate brings the client to StateActive.
func (h *harness) activate(t *testing.T) {
	t.Helper()
	h.client.Activate()
	h.exec.RunPending()
	require.Equal(t, StateActive, h.client.State())
}

func (h *harness) self(t *testing.T) *model.SelfDetails {
	t.Helper()
	self, err := h.store.LoadSelf(context.Background())
	require.NoError(t, err)
	return self.MustSelf()
}

// newSerialClient creates a client running on its own executors.
func newSerialClient(t *testing.T, relay *testsim.SimulatedRelay) (*Client, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	opts := NewOptions()
	opts.Store = st
	opts.Connector = relay.Connector()
	opts.DownloadDir = t.TempDir()
	opts.RSABits = testRSABits
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, st
}
