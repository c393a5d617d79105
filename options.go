package xotalk

import (
	"errors"
	"time"

	"github.com/opd-ai/xotalk/config"
	"github.com/opd-ai/xotalk/crypto"
	"github.com/opd-ai/xotalk/executor"
	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/store"
	"github.com/opd-ai/xotalk/transfer"
)

// Option validation errors.
var (
	ErrNoStore     = errors.New("xotalk: a store is required")
	ErrNoConnector = errors.New("xotalk: a connector is required")
)

// Options configures a Client.
type Options struct {
	// Store persists identity, contacts and messages. Required.
	Store store.Store
	// Connector opens relay connections. Required.
	Connector interfaces.IConnector

	// Executor runs all protocol work. When nil the client starts and owns
	// a serial executor.
	Executor executor.Executor
	// TransferExecutor runs attachment transfers. When nil the client starts
	// and owns a separate serial executor.
	TransferExecutor executor.Executor
	// Mover moves attachment bytes. Defaults to an HTTPMover.
	Mover transfer.Mover
	// DownloadDir receives downloaded attachments.
	DownloadDir string

	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	KeepAlive      time.Duration
	RequestTimeout time.Duration
	Backoff        Backoff

	// RSABits is the size of generated identity keys.
	RSABits int

	// Rand returns uniform random numbers in [0, 1) for backoff jitter.
	// Defaults to math/rand/v2.
	Rand func() float64
}

// NewOptions returns options with the timing defaults of record. Store and
// Connector still have to be set.
func NewOptions() *Options {
	return &Options{
		DownloadDir:    "downloads",
		ConnectTimeout: 15 * time.Second,
		IdleTimeout:    600 * time.Second,
		KeepAlive:      120 * time.Second,
		RequestTimeout: 60 * time.Second,
		Backoff:        DefaultBackoff,
		RSABits:        crypto.DefaultRSABits,
	}
}

// OptionsFromConfig returns options carrying the timing and storage settings
// of cfg.
func OptionsFromConfig(cfg *config.Options) *Options {
	o := NewOptions()
	s := cfg.Session
	o.ConnectTimeout = config.Seconds(s.ConnectTimeout)
	o.IdleTimeout = config.Seconds(s.IdleTimeout)
	o.KeepAlive = config.Seconds(s.KeepAlive)
	o.RequestTimeout = config.Seconds(s.RequestTimeout)
	o.Backoff = Backoff{Fixed: s.BackoffFixed, Factor: s.BackoffFactor, Max: s.BackoffMax}
	if s.RSABits > 0 {
		o.RSABits = s.RSABits
	}
	if cfg.Storage.DownloadDir != "" {
		o.DownloadDir = cfg.Storage.DownloadDir
	}
	return o
}

func (o *Options) validate() error {
	if o.Store == nil {
		return ErrNoStore
	}
	if o.Connector == nil {
		return ErrNoConnector
	}
	if o.ConnectTimeout <= 0 || o.IdleTimeout <= 0 || o.KeepAlive <= 0 || o.RequestTimeout <= 0 {
		return interfaces.ErrInvalidTimeout
	}
	return nil
}
