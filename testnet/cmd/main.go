package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/opd-ai/xotalk/rpc"
	"github.com/opd-ai/xotalk/testnet/internal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	relayURL          string
	protocol          string
	overallTimeout    time.Duration
	connectionTimeout time.Duration
	pairingTimeout    time.Duration
	messageTimeout    time.Duration
	retryAttempts     int
	retryBackoff      time.Duration
	logLevel          string
	logFile           string
	verbose           bool
}

func parseCLIFlags(args []string) (*CLIConfig, *pflag.FlagSet, error) {
	config := &CLIConfig{}
	fs := pflag.NewFlagSet("testnet", pflag.ContinueOnError)

	fs.StringVar(&config.relayURL, "relay", "", "relay WebSocket URL (default: in-process relay)")
	fs.StringVar(&config.protocol, "protocol", rpc.ProtocolCBOR, "preferred wire protocol")

	fs.DurationVar(&config.overallTimeout, "overall-timeout", 5*time.Minute, "overall test timeout")
	fs.DurationVar(&config.connectionTimeout, "connection-timeout", 30*time.Second, "time for a client to become active")
	fs.DurationVar(&config.pairingTimeout, "pairing-timeout", 15*time.Second, "pairing timeout")
	fs.DurationVar(&config.messageTimeout, "message-timeout", 10*time.Second, "message delivery timeout")

	fs.IntVar(&config.retryAttempts, "retry-attempts", 3, "attempts for relay operations")
	fs.DurationVar(&config.retryBackoff, "retry-backoff", time.Second, "initial retry backoff")

	fs.StringVar(&config.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&config.logFile, "log-file", "", "log file path (default: stdout)")
	fs.BoolVar(&config.verbose, "verbose", true, "log the configuration before running")
	fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if help, _ := fs.GetBool("help"); help {
		return nil, fs, pflag.ErrHelp
	}
	return config, fs, nil
}

func printUsage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `xotalk network integration test

Two fresh identities connect to a relay, pair through a token and exchange
one message in each direction.

Usage:
  testnet [flags]

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}

func createTestConfig(cli *CLIConfig) *internal.TestConfig {
	return &internal.TestConfig{
		RelayURL:          cli.relayURL,
		Protocol:          cli.protocol,
		OverallTimeout:    cli.overallTimeout,
		ConnectionTimeout: cli.connectionTimeout,
		PairingTimeout:    cli.pairingTimeout,
		MessageTimeout:    cli.messageTimeout,
		RetryAttempts:     cli.retryAttempts,
		RetryBackoff:      cli.retryBackoff,
		LogLevel:          cli.logLevel,
		LogFile:           cli.logFile,
		VerboseOutput:     cli.verbose,
	}
}

func main() {
	cli, fs, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(fs)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	orchestrator, err := internal.NewTestOrchestrator(createTestConfig(cli))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"error":   err.Error(),
			"context": "orchestrator_creation",
		}).Error("Failed to create test orchestrator")
		os.Exit(1)
	}
	if err := orchestrator.ValidateConfiguration(); err != nil {
		logrus.WithFields(logrus.Fields{
			"error":   err.Error(),
			"context": "configuration_validation",
		}).Error("Invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := orchestrator.RunTests(ctx)
	exitCode := 0
	if err != nil || results.FinalStatus != internal.TestStatusPassed {
		exitCode = 1
	}
	if results != nil {
		fmt.Printf("Summary: %d tests, %d passed, %d failed (execution time: %v)\n",
			results.TotalTests, results.PassedTests, results.FailedTests, results.ExecutionTime)
	}
	stop()
	os.Exit(exitCode)
}
