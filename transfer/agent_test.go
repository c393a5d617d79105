package transfer

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func newTestAgent(t *testing.T, mover Mover) (*Agent, *executor.Manual, *[]Transfer) {
	t.Helper()
	exec := executor.NewManual()
	a := NewAgent(mover, exec, t.TempDir())
	var events []Transfer
	a.Registry().AddListener(func(tr Transfer) { events = append(events, tr) })
	return a, exec, &events
}

func states(events []Transfer) []State {
	out := make([]State, len(events))
	for i, e := range events {
		out[i] = e.State
	}
	return out
}

func TestUploadRunsOnExecutor(t *testing.T) {
	mover := &mockMover{}
	a, exec, events := newTestAgent(t, mover)

	err := a.RequestUpload(&model.Upload{
		TransferID:  "u1",
		LocalPath:   "/tmp/cat.png",
		UploadURL:   "https://files.example/upload/f1",
		ContentSize: 100,
		Key:         testKey(t),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mover.count())

	tr, ok := a.Registry().Get("u1")
	require.True(t, ok)
	assert.Equal(t, StatePending, tr.State)
	assert.Equal(t, Upload, tr.Direction)

	exec.RunPending()
	require.Equal(t, 1, mover.count())
	tr, _ = a.Registry().Get("u1")
	assert.Equal(t, StateComplete, tr.State)
	assert.Equal(t, int64(100), tr.Transferred)
	assert.Equal(t, []State{StatePending, StateRunning, StateComplete}, states(*events))
}

func TestDownloadPathStaysInDirectory(t *testing.T) {
	mover := &mockMover{}
	a, exec, _ := newTestAgent(t, mover)

	err := a.RegisterDownload(&model.Download{
		TransferID: "d1",
		URL:        "https://files.example/download/f1",
		FileName:   "../../etc/passwd",
		Key:        testKey(t),
	})
	require.NoError(t, err)
	exec.RunPending()

	tr, ok := a.Registry().Get("d1")
	require.True(t, ok)
	assert.Equal(t, a.downloadDir, filepath.Dir(tr.LocalPath))
	assert.Equal(t, "d1-passwd", filepath.Base(tr.LocalPath))
	assert.Equal(t, StateComplete, tr.State)
}

func TestInvalidTransfersAreRejected(t *testing.T) {
	a, _, _ := newTestAgent(t, &mockMover{})

	err := a.RequestUpload(&model.Upload{TransferID: "u1", LocalPath: "/tmp/x", UploadURL: "https://x"})
	assert.ErrorIs(t, err, ErrInvalid)
	err = a.RequestUpload(&model.Upload{TransferID: "u1", LocalPath: "../x", UploadURL: "https://x", Key: testKey(t)})
	assert.ErrorIs(t, err, ErrDirectoryTraversal)
	err = a.RegisterDownload(&model.Download{TransferID: "d1", Key: testKey(t)})
	assert.ErrorIs(t, err, ErrInvalid)

	d := &model.Download{TransferID: "d1", URL: "https://x", Key: testKey(t)}
	require.NoError(t, a.RegisterDownload(d))
	assert.ErrorIs(t, a.RegisterDownload(d), ErrDuplicate)
}

func TestMoverFailureMarksFailed(t *testing.T) {
	mover := &mockMover{err: errors.New("storage unavailable")}
	a, exec, _ := newTestAgent(t, mover)
	require.NoError(t, a.RegisterDownload(&model.Download{TransferID: "d1", URL: "https://x", Key: testKey(t)}))
	exec.RunPending()

	tr, _ := a.Registry().Get("d1")
	assert.Equal(t, StateFailed, tr.State)
	assert.EqualError(t, tr.Err, "storage unavailable")
	assert.False(t, tr.Finished.IsZero())
}

func TestCancelPendingTransfer(t *testing.T) {
	mover := &mockMover{}
	a, exec, events := newTestAgent(t, mover)
	require.NoError(t, a.RegisterDownload(&model.Download{TransferID: "d1", URL: "https://x", Key: testKey(t)}))

	assert.True(t, a.Cancel("d1"))
	assert.False(t, a.Cancel("d1"))
	assert.False(t, a.Cancel("unknown"))
	exec.RunPending()

	assert.Equal(t, 0, mover.count())
	assert.Equal(t, []State{StatePending, StateCancelled}, states(*events))
}

func TestCancelRunningTransfer(t *testing.T) {
	mover := &mockMover{block: make(chan struct{})}
	exec := executor.NewSerial("transfers", nil)
	defer exec.Close()
	a := NewAgent(mover, exec, t.TempDir())

	done := make(chan Transfer, 1)
	a.Registry().AddListener(func(tr Transfer) {
		if tr.State.Terminal() {
			done <- tr
		}
	})
	require.NoError(t, a.RegisterDownload(&model.Download{TransferID: "d1", URL: "https://x", Key: testKey(t)}))
	require.Eventually(t, func() bool {
		tr, _ := a.Registry().Get("d1")
		return tr.State == StateRunning
	}, time.Second, 5*time.Millisecond)

	assert.True(t, a.Cancel("d1"))
	select {
	case tr := <-done:
		assert.Equal(t, StateCancelled, tr.State)
	case <-time.After(time.Second):
		t.Fatal("transfer was not cancelled")
	}
	assert.Equal(t, 1, mover.count())
}

func TestClosedAgentRejectsTransfers(t *testing.T) {
	a, exec, _ := newTestAgent(t, &mockMover{})
	require.NoError(t, a.RegisterDownload(&model.Download{TransferID: "d1", URL: "https://x", Key: testKey(t)}))
	a.Close()
	exec.RunPending()

	tr, _ := a.Registry().Get("d1")
	assert.Equal(t, StateCancelled, tr.State)
	err := a.RegisterDownload(&model.Download{TransferID: "d2", URL: "https://x", Key: testKey(t)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestValidatePath(t *testing.T) {
	p, err := ValidatePath("a/b/../c.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("a", "c.txt"), p)

	_, err = ValidatePath("../c.txt")
	assert.ErrorIs(t, err, ErrDirectoryTraversal)

	assert.Equal(t, "file", safeName("", "file"))
	assert.Equal(t, "x.txt", safeName("/a/../x.txt", "file"))
}
