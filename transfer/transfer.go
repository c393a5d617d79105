package transfer

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrDirectoryTraversal indicates a path that escapes its directory.
	ErrDirectoryTraversal = errors.New("path contains directory traversal")
	// ErrDuplicate is returned when a transfer id is registered twice.
	ErrDuplicate = errors.New("transfer already registered")
	// ErrUnknown is returned for operations on unregistered transfers.
	ErrUnknown = errors.New("unknown transfer")
	// ErrInvalid is returned for transfers missing required fields.
	ErrInvalid = errors.New("invalid transfer")
	// ErrClosed is returned once the agent has been closed.
	ErrClosed = errors.New("transfer agent closed")
)

// Direction tells uploads from downloads.
type Direction uint8

const (
	// Upload sends a local file to relay storage.
	Upload Direction = iota
	// Download fetches a blob from relay storage into a local file.
	Download
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// State is the lifecycle state of a transfer.
type State uint8

const (
	// StatePending means the transfer waits for the executor.
	StatePending State = iota
	// StateRunning means bytes are being moved.
	StateRunning
	// StateComplete means the transfer finished successfully.
	StateComplete
	// StateCancelled means the transfer was cancelled.
	StateCancelled
	// StateFailed means the mover reported an error.
	StateFailed
)

var stateNames = [...]string{"pending", "running", "complete", "cancelled", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCancelled || s == StateFailed
}

// Transfer is a snapshot of one registered transfer.
type Transfer struct {
	ID        string
	Direction Direction
	// URL is the upload target for uploads and the source for downloads.
	URL         string
	LocalPath   string
	FileName    string
	MimeType    string
	Size        int64
	Key         []byte
	State       State
	Transferred int64
	Err         error
	Created     time.Time
	Started     time.Time
	Finished    time.Time
}

// ValidatePath cleans path and rejects it when it contains parent directory
// references.
func ValidatePath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return "", ErrDirectoryTraversal
		}
	}
	return cleaned, nil
}

// safeName returns a file name usable inside the download directory.
func safeName(name, fallback string) string {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return fallback
	}
	return base
}
