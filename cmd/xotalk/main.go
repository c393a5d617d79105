// Command xotalk runs one client identity against a relay. It keeps the
// session alive, logs state changes and incoming messages, and optionally
// pairs with another client or sends a message.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/xotalk"
	"github.com/opd-ai/xotalk/config"
	"github.com/opd-ai/xotalk/factory"
	"github.com/opd-ai/xotalk/model"
	"github.com/opd-ai/xotalk/store/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	configPath    string
	server        string
	database      string
	passphraseEnv string
	protocol      string
	simulate      bool
	logLevel      string

	send          string
	to            string
	pairToken     string
	generateToken bool
	waitTimeout   time.Duration
}

func parseCLIFlags(args []string) (*CLIConfig, *pflag.FlagSet, error) {
	cfg := &CLIConfig{}
	fs := pflag.NewFlagSet("xotalk", pflag.ContinueOnError)

	fs.StringVar(&cfg.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&cfg.server, "server", "", "relay WebSocket URL (overrides the configuration)")
	fs.StringVar(&cfg.database, "db", "", "SQLite database path (overrides the configuration)")
	fs.StringVar(&cfg.passphraseEnv, "passphrase-env", "", "environment variable holding the storage passphrase")
	fs.StringVar(&cfg.protocol, "protocol", "", "preferred wire protocol (xo.talk.v1.cbor or xo.talk.v1.json)")
	fs.BoolVar(&cfg.simulate, "simulate", false, "use an in-process relay instead of the network")
	fs.StringVar(&cfg.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	fs.StringVar(&cfg.send, "send", "", "text to send, requires --to")
	fs.StringVar(&cfg.to, "to", "", "client or group id receiving --send")
	fs.StringVar(&cfg.pairToken, "pair", "", "pair with the client that issued this token")
	fs.BoolVar(&cfg.generateToken, "generate-token", false, "print a pairing token for another client")
	fs.DurationVar(&cfg.waitTimeout, "wait", 2*time.Minute, "how long one-shot actions wait for the session")
	fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if help, _ := fs.GetBool("help"); help {
		return nil, fs, pflag.ErrHelp
	}
	if extra := fs.Args(); len(extra) > 0 {
		return nil, fs, fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return cfg, fs, nil
}

func validateCLIConfig(cfg *CLIConfig) error {
	if (cfg.send == "") != (cfg.to == "") {
		return fmt.Errorf("--send and --to must be given together")
	}
	if cfg.waitTimeout <= 0 {
		return fmt.Errorf("--wait must be positive")
	}
	return nil
}

func printUsage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `xotalk keeps a client session with a relay and logs what happens.

Usage:
  xotalk [flags]

Examples:
  # Run against a relay
  xotalk --server wss://relay.example.org/ws --db alice.db

  # Print a pairing token, then pair from the other identity
  xotalk --db alice.db --generate-token
  xotalk --db bob.db --pair <token>

  # Send one message and keep running
  xotalk --db alice.db --to <client id> --send "hello"

Flags:
`)
	fs.SetOutput(os.Stderr)
	fs.PrintDefaults()
}

// loadConfig merges the configuration file, the environment and the flags.
func loadConfig(cli *CLIConfig) (*config.Options, error) {
	opts, err := config.Load(cli.configPath)
	if err != nil {
		return nil, err
	}
	if cli.server != "" {
		opts.Server.URL = cli.server
	}
	if cli.database != "" {
		opts.Storage.Database = cli.database
	}
	if cli.protocol != "" {
		opts.Server.Protocol = cli.protocol
	}
	if cli.simulate {
		opts.Server.UseSimulation = true
	}
	if cli.logLevel != "" {
		opts.LogLevel = cli.logLevel
	}
	if cli.passphraseEnv != "" {
		opts.Storage.Passphrase = os.Getenv(cli.passphraseEnv)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func setupLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func main() {
	cli, fs, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(fs)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if err := validateCLIConfig(cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cli); err != nil {
		logrus.WithError(err).Error("xotalk failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	st, err := sqlite.Open(ctx, cfg.Storage.Database, []byte(cfg.Storage.Passphrase))
	if err != nil {
		return err
	}
	defer st.Close()

	connector, err := factory.NewConnectorFactory(cfg.ConnectorConfig()).CreateConnector()
	if err != nil {
		return err
	}

	opts := xotalk.OptionsFromConfig(cfg)
	opts.Store = st
	opts.Connector = connector
	client, err := xotalk.New(opts)
	if err != nil {
		return err
	}
	defer client.Close()

	active := make(chan struct{}, 1)
	client.AddStateListener(func(s xotalk.State) {
		logrus.WithField("state", s.String()).Info("Session state")
		if s == xotalk.StateActive {
			select {
			case active <- struct{}{}:
			default:
			}
		}
	})
	client.AddAlertListener(func(msg string) {
		logrus.WithField("alert", msg).Warn("Relay alert")
	})
	client.AddMessageListener(logMessage)
	client.Activate()

	if err := oneShot(ctx, cli, client, active); err != nil {
		return err
	}

	<-ctx.Done()
	logrus.Info("Shutting down")
	return nil
}

// oneShot runs the actions requested on the command line once the session
// is active.
func oneShot(ctx context.Context, cli *CLIConfig, client *xotalk.Client, active <-chan struct{}) error {
	if cli.send != "" {
		// queued locally and delivered once active
		msg, err := client.SendMessage(ctx, cli.to, cli.send, nil)
		if err != nil {
			return err
		}
		logrus.WithField("tag", msg.Tag).Info("Message queued")
	}
	if !cli.generateToken && cli.pairToken == "" {
		return nil
	}

	select {
	case <-active:
	case <-time.After(cli.waitTimeout):
		return fmt.Errorf("session not active after %s", cli.waitTimeout)
	case <-ctx.Done():
		return nil
	}

	if cli.generateToken {
		token, err := client.GenerateToken(ctx, "pairing", 10*time.Minute)
		if err != nil {
			return err
		}
		fmt.Println(token)
	}
	if cli.pairToken != "" {
		ok, err := client.PairByToken(ctx, cli.pairToken)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("token was not accepted")
		}
	}
	return nil
}

func logMessage(msg *model.ClientMessage, isNew bool) {
	fields := logrus.Fields{
		"conversation": msg.ConversationKey,
		"tag":          msg.Tag,
	}
	if msg.Delivery != nil {
		fields["delivery"] = msg.Delivery.State
	}
	if !msg.Incoming {
		if !isNew {
			logrus.WithFields(fields).Debug("Outgoing message updated")
		}
		return
	}
	if !isNew {
		return
	}
	fields["from"] = msg.SenderKey
	if msg.Attachment != nil {
		fields["attachment"] = msg.Attachment.FileName
	}
	logrus.WithFields(fields).Info(msg.Text)
}
