package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/limits"
)

// HTTPMover stores blobs with plain PUT and GET requests. Blobs are sealed
// with AES-GCM under the transfer's content key.
type HTTPMover struct {
	Client *http.Client
	// MaxSize bounds the plaintext size of a blob. Zero means
	// limits.MaxAttachmentSize.
	MaxSize int64
}

func (m *HTTPMover) client() *http.Client {
	if m.Client != nil {
		return m.Client
	}
	return http.DefaultClient
}

func (m *HTTPMover) maxSize() int64 {
	if m.MaxSize > 0 {
		return m.MaxSize
	}
	return limits.MaxAttachmentSize
}

// Upload implements Mover.
func (m *HTTPMover) Upload(ctx context.Context, t Transfer, progress func(int64)) error {
	info, err := os.Stat(t.LocalPath)
	if err != nil {
		return err
	}
	if info.Size() > m.maxSize() {
		return fmt.Errorf("%w: %d bytes", limits.ErrMessageTooLarge, info.Size())
	}
	plain, err := os.ReadFile(t.LocalPath)
	if err != nil {
		return err
	}
	sealed, err := crypto.EncryptAES(t.Key, plain)
	crypto.ZeroBytes(plain)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.URL, bytes.NewReader(sealed))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(sealed))
	resp, err := m.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload %s: unexpected status %s", t.ID, resp.Status)
	}
	progress(info.Size())
	return nil
}

// Download implements Mover. The blob is written to a temporary file next to
// the destination and renamed into place once decrypted.
func (m *HTTPMover) Download(ctx context.Context, t Transfer, progress func(int64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", t.ID, resp.Status)
	}

	limit := m.maxSize() + limits.EncryptionOverhead
	sealed, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return err
	}
	if int64(len(sealed)) > limit {
		return fmt.Errorf("%w: download %s exceeds %d bytes", limits.ErrMessageTooLarge, t.ID, limit)
	}
	plain, err := crypto.DecryptAES(t.Key, sealed)
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(plain)

	if err := os.MkdirAll(filepath.Dir(t.LocalPath), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(t.LocalPath), ".download-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(plain); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), t.LocalPath); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	progress(int64(len(plain)))
	return nil
}
