package transfer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opd-ai/xotalk/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobServer is an in-memory blob store accepting PUT and GET.
type blobServer struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (s *blobServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.blobs[r.URL.Path] = body
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		body, ok := s.blobs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestHTTPMoverRoundTrip(t *testing.T) {
	blobs := &blobServer{blobs: make(map[string][]byte)}
	srv := httptest.NewServer(blobs)
	defer srv.Close()

	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	content := []byte("not really a jpeg")
	require.NoError(t, os.WriteFile(src, content, 0o600))
	key := testKey(t)

	m := &HTTPMover{Client: srv.Client()}
	var uploaded int64
	err := m.Upload(context.Background(), Transfer{
		ID: "u1", URL: srv.URL + "/f1", LocalPath: src, Key: key,
	}, func(n int64) { uploaded = n })
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), uploaded)

	stored := blobs.blobs["/f1"]
	require.NotEmpty(t, stored)
	assert.NotContains(t, string(stored), string(content))

	dst := filepath.Join(dir, "in", "d1-photo.jpg")
	err = m.Download(context.Background(), Transfer{
		ID: "d1", URL: srv.URL + "/f1", LocalPath: dst, Key: key,
	}, func(int64) {})
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestHTTPMoverDownloadErrors(t *testing.T) {
	blobs := &blobServer{blobs: map[string][]byte{"/big": make([]byte, 64)}}
	srv := httptest.NewServer(blobs)
	defer srv.Close()
	m := &HTTPMover{Client: srv.Client(), MaxSize: 8}
	dst := filepath.Join(t.TempDir(), "out")

	err := m.Download(context.Background(), Transfer{ID: "d1", URL: srv.URL + "/missing", LocalPath: dst, Key: testKey(t)}, func(int64) {})
	assert.Error(t, err)

	err = m.Download(context.Background(), Transfer{ID: "d2", URL: srv.URL + "/big", LocalPath: dst, Key: testKey(t)}, func(int64) {})
	assert.Error(t, err)

	m.MaxSize = 0
	err = m.Download(context.Background(), Transfer{ID: "d3", URL: srv.URL + "/big", LocalPath: dst, Key: testKey(t)}, func(int64) {})
	assert.ErrorIs(t, err, crypto.ErrDecrypt)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
