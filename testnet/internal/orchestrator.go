package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/opd-ai/xotalk/rpc"
	"github.com/sirupsen/logrus"
)

// TestOrchestrator manages the complete test execution workflow.
type TestOrchestrator struct {
	config    *TestConfig
	logger    *logrus.Logger
	startTime time.Time
	results   *TestResults
}

// TestConfig holds configuration for the entire test suite.
type TestConfig struct {
	// Relay configuration; an empty URL uses the in-process relay
	RelayURL string
	Protocol string

	// Timeout configuration
	OverallTimeout    time.Duration
	ConnectionTimeout time.Duration
	PairingTimeout    time.Duration
	MessageTimeout    time.Duration

	// Retry configuration
	RetryAttempts int
	RetryBackoff  time.Duration

	// RSABits sizes the identity keys of both clients
	RSABits int

	// Logging configuration
	LogLevel      string
	LogFile       string
	VerboseOutput bool
}

// TestResults holds the outcomes of test execution.
type TestResults struct {
	TotalTests    int
	PassedTests   int
	FailedTests   int
	ExecutionTime time.Duration
	TestSteps     []TestStepResult
	FinalStatus   TestStatus
	ErrorDetails  string
}

// TestStepResult represents the result of an individual test step.
type TestStepResult struct {
	StepName      string
	Status        TestStatus
	ExecutionTime time.Duration
	ErrorMessage  string
}

// TestStatus represents the status of a test or test step.
type TestStatus int

const (
	TestStatusPending TestStatus = iota
	TestStatusRunning
	TestStatusPassed
	TestStatusFailed
)

// String returns a string representation of the test status.
func (ts TestStatus) String() string {
	switch ts {
	case TestStatusPending:
		return "PENDING"
	case TestStatusRunning:
		return "RUNNING"
	case TestStatusPassed:
		return "PASSED"
	case TestStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DefaultTestConfig returns a default configuration for the test suite.
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		Protocol:          rpc.ProtocolCBOR,
		OverallTimeout:    5 * time.Minute,
		ConnectionTimeout: 30 * time.Second,
		PairingTimeout:    15 * time.Second,
		MessageTimeout:    10 * time.Second,
		RetryAttempts:     3,
		RetryBackoff:      time.Second,
		LogLevel:          "INFO",
		VerboseOutput:     true,
	}
}

// NewTestOrchestrator creates a new test orchestrator.
func NewTestOrchestrator(config *TestConfig) (*TestOrchestrator, error) {
	if config == nil {
		config = DefaultTestConfig()
	}

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if config.LogFile != "" {
		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(logFile)
	}

	return &TestOrchestrator{
		config: config,
		logger: logger,
		results: &TestResults{
			TestSteps:   make([]TestStepResult, 0),
			FinalStatus: TestStatusPending,
		},
	}, nil
}

// RunTests executes the complete test suite.
func (to *TestOrchestrator) RunTests(ctx context.Context) (*TestResults, error) {
	to.startTime = time.Now()
	to.results.FinalStatus = TestStatusRunning

	to.logger.Info("xotalk network integration test suite")
	to.logger.Infof("Test execution started at %s", to.startTime.Format(time.RFC3339))
	if to.config.VerboseOutput {
		to.logConfiguration()
	}

	testCtx, cancel := context.WithTimeout(ctx, to.config.OverallTimeout)
	defer cancel()

	err := to.executeTestWorkflow(testCtx)
	to.results.ExecutionTime = time.Since(to.startTime)

	if err != nil {
		to.results.FinalStatus = TestStatusFailed
		to.results.ErrorDetails = err.Error()
		to.results.FailedTests = 1
	} else {
		to.results.FinalStatus = TestStatusPassed
		to.results.PassedTests = 1
	}
	to.results.TotalTests = 1

	to.generateFinalReport()
	return to.results, err
}

func (to *TestOrchestrator) executeTestWorkflow(ctx context.Context) error {
	protocolSuite := NewProtocolTestSuite(&ProtocolConfig{
		RelayURL:          to.config.RelayURL,
		Protocol:          to.config.Protocol,
		ConnectionTimeout: to.config.ConnectionTimeout,
		PairingTimeout:    to.config.PairingTimeout,
		MessageTimeout:    to.config.MessageTimeout,
		RequestTimeout:    to.config.ConnectionTimeout,
		RetryAttempts:     to.config.RetryAttempts,
		RetryBackoff:      to.config.RetryBackoff,
		RSABits:           to.config.RSABits,
		Logger:            logrus.NewEntry(to.logger).WithField("component", "protocol"),
	})
	defer func() {
		if err := protocolSuite.Cleanup(); err != nil {
			to.logger.WithError(err).Warn("Cleanup warning")
		}
	}()

	return to.executeWithStepTracking("Complete Protocol Test", func() error {
		return protocolSuite.ExecuteTest(ctx)
	})
}

func (to *TestOrchestrator) executeWithStepTracking(stepName string, operation func() error) error {
	stepStart := time.Now()
	to.logger.Infof("Executing: %s", stepName)

	stepResult := TestStepResult{
		StepName: stepName,
		Status:   TestStatusRunning,
	}
	err := operation()
	stepResult.ExecutionTime = time.Since(stepStart)

	if err != nil {
		stepResult.Status = TestStatusFailed
		stepResult.ErrorMessage = err.Error()
		to.logger.Errorf("%s failed: %v", stepName, err)
	} else {
		stepResult.Status = TestStatusPassed
		to.logger.Infof("%s completed in %v", stepName, stepResult.ExecutionTime)
	}

	to.results.TestSteps = append(to.results.TestSteps, stepResult)
	return err
}

func (to *TestOrchestrator) logConfiguration() {
	relay := to.config.RelayURL
	if relay == "" {
		relay = "in-process"
	}
	to.logger.WithFields(logrus.Fields{
		"relay":              relay,
		"protocol":           to.config.Protocol,
		"overall_timeout":    to.config.OverallTimeout,
		"connection_timeout": to.config.ConnectionTimeout,
		"pairing_timeout":    to.config.PairingTimeout,
		"message_timeout":    to.config.MessageTimeout,
		"retry_attempts":     to.config.RetryAttempts,
		"retry_backoff":      to.config.RetryBackoff,
	}).Info("Test configuration")
}

// generateFinalReport logs the summary of the run.
func (to *TestOrchestrator) generateFinalReport() {
	to.logger.Info("Test execution summary")
	to.logger.Infof("Overall status: %s", to.results.FinalStatus)
	to.logger.Infof("Total execution time: %v", to.results.ExecutionTime)
	to.logger.Infof("Tests: %d total, %d passed, %d failed",
		to.results.TotalTests, to.results.PassedTests, to.results.FailedTests)

	for _, step := range to.results.TestSteps {
		entry := to.logger.WithFields(logrus.Fields{
			"step":     step.StepName,
			"status":   step.Status.String(),
			"duration": step.ExecutionTime,
		})
		if step.ErrorMessage != "" {
			entry.WithField("error", step.ErrorMessage).Warn("Step failed")
		} else {
			entry.Info("Step passed")
		}
	}
	if to.results.ErrorDetails != "" {
		to.logger.WithField("error", to.results.ErrorDetails).Error("Test run failed")
	}
	to.logger.Infof("Test run completed at %s", time.Now().Format(time.RFC3339))
	to.logger.Info(strings.Repeat("=", 50))
}

// GetResults returns the current test results.
func (to *TestOrchestrator) GetResults() *TestResults {
	return to.results
}

// ValidateConfiguration validates the test configuration.
func (to *TestOrchestrator) ValidateConfiguration() error {
	if to.config.OverallTimeout <= 0 {
		return fmt.Errorf("overall timeout must be positive")
	}
	if to.config.ConnectionTimeout <= 0 {
		return fmt.Errorf("connection timeout must be positive")
	}
	if to.config.MessageTimeout <= 0 || to.config.PairingTimeout <= 0 {
		return fmt.Errorf("pairing and message timeouts must be positive")
	}
	if to.config.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts cannot be negative")
	}
	if to.config.RetryBackoff <= 0 {
		return fmt.Errorf("retry backoff must be positive")
	}
	if _, err := rpc.CodecForProtocol(to.config.Protocol); err != nil {
		return fmt.Errorf("unknown protocol %q", to.config.Protocol)
	}
	return nil
}

// SetLogOutput configures the logger output destination.
func (to *TestOrchestrator) SetLogOutput(output io.Writer) {
	to.logger.SetOutput(output)
}

// SetVerbose enables or disables verbose logging.
func (to *TestOrchestrator) SetVerbose(verbose bool) {
	to.config.VerboseOutput = verbose
}
