package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/model"
	"github.com/sirupsen/logrus"
)

// Mover moves the bytes of one transfer. progress may be called with the
// number of bytes moved so far.
type Mover interface {
	Upload(ctx context.Context, t Transfer, progress func(n int64)) error
	Download(ctx context.Context, t Transfer, progress func(n int64)) error
}

// Agent registers attachment transfers and runs them on its executor.
type Agent struct {
	registry    *Registry
	mover       Mover
	exec        executor.Executor
	downloadDir string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// NewAgent creates an Agent. Downloads are written below downloadDir.
func NewAgent(mover Mover, exec executor.Executor, downloadDir string) *Agent {
	return &Agent{
		registry:    NewRegistry(exec.Clock()),
		mover:       mover,
		exec:        exec,
		downloadDir: downloadDir,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Registry returns the registry tracking the agent's transfers.
func (a *Agent) Registry() *Registry {
	return a.registry
}

// RequestUpload registers an upload and queues it.
func (a *Agent) RequestUpload(u *model.Upload) error {
	if u.TransferID == "" || u.UploadURL == "" || u.LocalPath == "" {
		return fmt.Errorf("%w: upload needs id, url and local path", ErrInvalid)
	}
	if len(u.Key) != crypto.KeySize {
		return fmt.Errorf("%w: upload %s has no content key", ErrInvalid, u.TransferID)
	}
	path, err := ValidatePath(u.LocalPath)
	if err != nil {
		return err
	}
	return a.submit(&Transfer{
		ID:        u.TransferID,
		Direction: Upload,
		URL:       u.UploadURL,
		LocalPath: path,
		FileName:  u.FileName,
		MimeType:  u.MimeType,
		Size:      u.ContentSize,
		Key:       append([]byte(nil), u.Key...),
	})
}

// RegisterDownload registers a download into the download directory and
// queues it.
func (a *Agent) RegisterDownload(d *model.Download) error {
	if d.TransferID == "" || d.URL == "" {
		return fmt.Errorf("%w: download needs id and url", ErrInvalid)
	}
	if len(d.Key) != crypto.KeySize {
		return fmt.Errorf("%w: download %s has no content key", ErrInvalid, d.TransferID)
	}
	path, err := ValidatePath(filepath.Join(a.downloadDir, d.TransferID+"-"+safeName(d.FileName, "attachment")))
	if err != nil {
		return err
	}
	return a.submit(&Transfer{
		ID:        d.TransferID,
		Direction: Download,
		URL:       d.URL,
		LocalPath: path,
		FileName:  d.FileName,
		MimeType:  d.MimeType,
		Size:      d.ContentSize,
		Key:       append([]byte(nil), d.Key...),
	})
}

func (a *Agent) submit(t *Transfer) error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := a.registry.add(t); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function":    "submit",
		"transfer_id": t.ID,
		"direction":   t.Direction.String(),
		"size":        t.Size,
	}).Info("Transfer registered")

	id := t.ID
	a.exec.Execute(func() { a.run(id) })
	return nil
}

func (a *Agent) run(id string) {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		cancel()
		a.registry.transition(id, StateCancelled, ErrClosed)
		return
	}
	a.cancels[id] = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.cancels, id)
		a.mu.Unlock()
		cancel()
	}()

	t, ok := a.registry.transition(id, StateRunning, nil)
	if !ok {
		// cancelled while pending
		return
	}

	progress := func(n int64) { a.registry.progress(id, n) }
	var err error
	if t.Direction == Upload {
		err = a.mover.Upload(ctx, t, progress)
	} else {
		err = a.mover.Download(ctx, t, progress)
	}

	switch {
	case err == nil:
		a.registry.progress(id, t.Size)
		a.registry.transition(id, StateComplete, nil)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		a.registry.transition(id, StateCancelled, err)
	default:
		a.registry.transition(id, StateFailed, err)
	}
}

// Cancel stops the transfer with id. It reports whether the transfer was
// still pending or running.
func (a *Agent) Cancel(id string) bool {
	if _, ok := a.registry.transition(id, StateCancelled, nil); ok {
		a.mu.Lock()
		cancel := a.cancels[id]
		a.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return true
	}
	return false
}

// Close cancels running transfers and rejects new ones. Pending transfers are
// cancelled when the executor reaches them.
func (a *Agent) Close() {
	a.mu.Lock()
	a.closed = true
	cancels := make([]context.CancelFunc, 0, len(a.cancels))
	for _, c := range a.cancels {
		cancels = append(cancels, c)
	}
	a.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}
