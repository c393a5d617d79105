package factory

import (
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/xotalk/config"
	"github.com/opd-ai/xotalk/interfaces"
	"github.com/opd-ai/xotalk/testing"
	"github.com/opd-ai/xotalk/transport"
	"github.com/sirupsen/logrus"
)

// ConnectorFactory creates connector implementations based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type ConnectorFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.ConnectorConfig
	relay         *testing.SimulatedRelay
}

// TestConfigOption is a functional option for customizing test simulation configuration.
type TestConfigOption func(*interfaces.ConnectorConfig)

// NewConnectorFactory creates a factory. A nil cfg uses the defaults of record
// with environment overrides applied.
func NewConnectorFactory(cfg *interfaces.ConnectorConfig) *ConnectorFactory {
	if cfg == nil {
		opts := config.Default()
		config.ApplyEnvironment(opts)
		cfg = opts.ConnectorConfig()
	}
	defaultConfig := copyConfig(cfg)
	logConfigurationInfo(defaultConfig)
	return &ConnectorFactory{defaultConfig: defaultConfig}
}

func copyConfig(c *interfaces.ConnectorConfig) *interfaces.ConnectorConfig {
	cp := *c
	cp.Protocols = append([]string(nil), c.Protocols...)
	return &cp
}

func logConfigurationInfo(c *interfaces.ConnectorConfig) {
	logrus.WithFields(logrus.Fields{
		"function":        "NewConnectorFactory",
		"use_simulation":  c.UseSimulation,
		"url":             c.URL,
		"protocols":       c.Protocols,
		"connect_timeout": c.ConnectTimeout.String(),
		"request_timeout": c.RequestTimeout.String(),
	}).Info("Created connector factory with configuration")
}

// Relay returns the simulated relay shared by simulated connectors, creating
// it on first use.
func (f *ConnectorFactory) Relay() *testing.SimulatedRelay {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.relay == nil {
		f.relay = testing.NewSimulatedRelay()
	}
	return f.relay
}

// CreateConnector creates a connector from the default configuration.
func (f *ConnectorFactory) CreateConnector() (interfaces.IConnector, error) {
	f.mu.RLock()
	cfg := f.defaultConfig
	f.mu.RUnlock()
	return f.CreateConnectorWithConfig(cfg)
}

// CreateConnectorWithConfig creates a connector with custom configuration.
func (f *ConnectorFactory) CreateConnectorWithConfig(cfg *interfaces.ConnectorConfig) (interfaces.IConnector, error) {
	if cfg == nil {
		f.mu.RLock()
		cfg = f.defaultConfig
		f.mu.RUnlock()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}

	if cfg.UseSimulation {
		logrus.WithFields(logrus.Fields{
			"function": "CreateConnectorWithConfig",
			"type":     "simulation",
		}).Info("Creating simulated relay connector")
		return f.Relay().Connector(), nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateConnectorWithConfig",
		"type":     "websocket",
		"url":      cfg.URL,
	}).Info("Creating WebSocket relay connector")
	return transport.NewWebSocketConnector(cfg)
}

// WithRequestTimeout sets a custom request timeout for the test configuration.
func WithRequestTimeout(d time.Duration) TestConfigOption {
	return func(c *interfaces.ConnectorConfig) {
		c.RequestTimeout = d
	}
}

// CreateSimulationForTesting creates a simulated connector on the factory's
// relay. Test configuration uses a 1s connect and a 5s request timeout.
func (f *ConnectorFactory) CreateSimulationForTesting(opts ...TestConfigOption) interfaces.IConnector {
	testConfig := &interfaces.ConnectorConfig{
		UseSimulation:  true,
		ConnectTimeout: time.Second,
		RequestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(testConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":        "CreateSimulationForTesting",
		"request_timeout": testConfig.RequestTimeout.String(),
	}).Info("Creating simulated connector for testing")

	return f.Relay().Connector()
}

// SwitchToSimulation switches the configuration to use the simulated relay.
func (f *ConnectorFactory) SwitchToSimulation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"function": "SwitchToSimulation",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to simulation mode")
	f.defaultConfig.UseSimulation = true
}

// SwitchToReal switches the configuration to use the WebSocket connector.
func (f *ConnectorFactory) SwitchToReal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"function": "SwitchToReal",
		"previous": f.defaultConfig.UseSimulation,
	}).Info("Switching factory to real mode")
	f.defaultConfig.UseSimulation = false
}

// GetCurrentConfig returns a copy of the current default configuration.
func (f *ConnectorFactory) GetCurrentConfig() *interfaces.ConnectorConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return copyConfig(f.defaultConfig)
}

// IsUsingSimulation returns true if the factory is configured for simulation.
func (f *ConnectorFactory) IsUsingSimulation() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultConfig.UseSimulation
}

// UpdateConfig replaces the factory's default configuration.
func (f *ConnectorFactory) UpdateConfig(cfg *interfaces.ConnectorConfig) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"function":       "UpdateConfig",
		"old_simulation": f.defaultConfig.UseSimulation,
		"new_simulation": cfg.UseSimulation,
		"old_url":        f.defaultConfig.URL,
		"new_url":        cfg.URL,
	}).Info("Updating factory configuration")
	f.defaultConfig = copyConfig(cfg)
	return nil
}
