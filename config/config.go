package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Bounds for timing settings, in seconds.
const (
	MinTimeout = 1.0
	MaxTimeout = 3600.0
	MaxBackoff = 3600.0
)

// Validation errors.
var (
	ErrInvalidTiming   = errors.New("config: timing out of range")
	ErrInvalidProtocol = errors.New("config: unsupported protocol")
)

// Options is the complete client configuration.
type Options struct {
	Server  Server  `yaml:"server"`
	Session Session `yaml:"session"`
	Storage Storage `yaml:"storage"`

	// LogLevel is a logrus level name.
	LogLevel string `yaml:"log_level"`
}

// Server selects the relay.
type Server struct {
	URL string `yaml:"url"`
	// Protocol is the preferred subprotocol. The other supported protocol
	// is still offered as a fallback.
	Protocol      string `yaml:"protocol"`
	UseSimulation bool   `yaml:"use_simulation"`
}

// Session holds connection timing in seconds.
type Session struct {
	ConnectTimeout float64 `yaml:"connect_timeout"`
	IdleTimeout    float64 `yaml:"idle_timeout"`
	KeepAlive      float64 `yaml:"keep_alive"`
	RequestTimeout float64 `yaml:"request_timeout"`

	// Reconnect delay is BackoffFixed plus a random share of
	// min(BackoffMax, BackoffFactor * 2^failures).
	BackoffFixed  float64 `yaml:"backoff_fixed"`
	BackoffFactor float64 `yaml:"backoff_factor"`
	BackoffMax    float64 `yaml:"backoff_max"`

	// RSABits is the size of generated identity keys.
	RSABits int `yaml:"rsa_bits"`
}

// Storage locates local state.
type Storage struct {
	Database    string `yaml:"database"`
	DownloadDir string `yaml:"download_dir"`
	// Passphrase seals credentials and private keys at rest. It is normally
	// supplied through the environment rather than the file.
	Passphrase string `yaml:"-"`
}

// Default returns the defaults of record.
func Default() *Options {
	return &Options{
		Server: Server{
			Protocol: rpc.ProtocolCBOR,
		},
		Session: Session{
			ConnectTimeout: 15,
			IdleTimeout:    600,
			KeepAlive:      120,
			RequestTimeout: 60,
			BackoffFixed:   3,
			BackoffFactor:  1,
			BackoffMax:     120,
			RSABits:        2048,
		},
		Storage: Storage{
			Database:    "xotalk.db",
			DownloadDir: "downloads",
		},
		LogLevel: "info",
	}
}

// Seconds converts a seconds setting to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load builds Options from the defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Options, error) {
	// a missing .env file is normal
	_ = godotenv.Load()

	opts := Default()
	if path != "" {
		if err := opts.ReadFile(path); err != nil {
			return nil, err
		}
	}
	ApplyEnvironment(opts)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.log()
	return opts, nil
}

// ReadFile overlays the YAML file at path onto o.
func (o *Options) ReadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks that the options are usable.
func (o *Options) Validate() error {
	s := o.Session
	for name, v := range map[string]float64{
		"connect_timeout": s.ConnectTimeout,
		"idle_timeout":    s.IdleTimeout,
		"keep_alive":      s.KeepAlive,
		"request_timeout": s.RequestTimeout,
	} {
		if v < MinTimeout || v > MaxTimeout {
			return fmt.Errorf("%w: %s=%v", ErrInvalidTiming, name, v)
		}
	}
	if s.BackoffFixed < 0 || s.BackoffFactor < 0 || s.BackoffMax < 0 || s.BackoffMax > MaxBackoff {
		return fmt.Errorf("%w: backoff", ErrInvalidTiming)
	}
	if _, err := rpc.CodecForProtocol(o.Server.Protocol); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, o.Server.Protocol)
	}
	return nil
}

// Protocols returns the subprotocols to offer, the configured one first.
func (o *Options) Protocols() []string {
	out := []string{}
	if o.Server.Protocol != "" {
		out = append(out, o.Server.Protocol)
	}
	for _, p := range rpc.Protocols {
		if p != o.Server.Protocol {
			out = append(out, p)
		}
	}
	return out
}

// ConnectorConfig returns the connector settings of o.
func (o *Options) ConnectorConfig() *interfaces.ConnectorConfig {
	return &interfaces.ConnectorConfig{
		UseSimulation:  o.Server.UseSimulation,
		URL:            o.Server.URL,
		Protocols:      o.Protocols(),
		ConnectTimeout: Seconds(o.Session.ConnectTimeout),
		RequestTimeout: Seconds(o.Session.RequestTimeout),
	}
}

func (o *Options) log() {
	logrus.WithFields(logrus.Fields{
		"function":        "Load",
		"server_url":      o.Server.URL,
		"protocol":        o.Server.Protocol,
		"use_simulation":  o.Server.UseSimulation,
		"database":        o.Storage.Database,
		"connect_timeout": o.Session.ConnectTimeout,
		"idle_timeout":    o.Session.IdleTimeout,
		"keep_alive":      o.Session.KeepAlive,
		"request_timeout": o.Session.RequestTimeout,
		"passphrase_set":  o.Storage.Passphrase != "",
	}).Info("Loaded client configuration")
}
