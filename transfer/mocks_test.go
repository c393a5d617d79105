package transfer

import (
	"context"
	"sync"
)

// mockMover records calls and returns a configurable error. When block is
// set, calls wait for it to close or for their context to end.
type mockMover struct {
	mu    sync.Mutex
	calls []Transfer
	err   error
	block chan struct{}
}

func (m *mockMover) Upload(ctx context.Context, t Transfer, progress func(int64)) error {
	return m.move(ctx, t, progress)
}

func (m *mockMover) Download(ctx context.Context, t Transfer, progress func(int64)) error {
	return m.move(ctx, t, progress)
}

func (m *mockMover) move(ctx context.Context, t Transfer, progress func(int64)) error {
	m.mu.Lock()
	m.calls = append(m.calls, t)
	err, block := m.err, m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	progress(t.Size / 2)
	return err
}

func (m *mockMover) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
