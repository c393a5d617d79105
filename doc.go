// Package xotalk implements the client engine of an end-to-end encrypted
// messaging protocol spoken with a relay server.
//
// A [Client] owns one local identity. It keeps a session with the relay
// alive, registers and logs in with SRP-6a, reconciles contacts and groups,
// and delivers messages encrypted per conversation. Attachments are sealed
// with their own content key and moved by a transfer agent.
//
// # Getting Started
//
//	cfg, err := config.Load("xotalk.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	st, err := sqlite.Open(ctx, cfg.Storage.Database, []byte(cfg.Storage.Passphrase))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	conn, err := factory.NewConnectorFactory(cfg.ConnectorConfig()).CreateConnector()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	opts := xotalk.OptionsFromConfig(cfg)
//	opts.Store = st
//	opts.Connector = conn
//	client, err := xotalk.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.AddMessageListener(func(msg *model.ClientMessage, isNew bool) {
//	    if isNew && msg.Incoming {
//	        fmt.Println(msg.Text)
//	    }
//	})
//	client.Activate()
//
// # Session States
//
// The session moves through the states
//
//	Inactive < Idle < Connecting < Reconnecting < Registering < Login < Syncing < Active
//
// [Client.Activate] and [Client.Wake] leave Inactive, [Client.Deactivate]
// returns to it. Without user activity for the idle timeout the client drops
// its connection and waits in Idle until [Client.Wake]. Lost connections are
// retried with randomized exponential backoff (see [Backoff]). A connection
// only becomes Active after it passed login; contact sync failures are logged
// and do not hold the session back.
//
// # Threading
//
// All protocol work is serialized on one executor. By default the client
// starts its own worker goroutine; hosts with their own loop pass an
// executor.Manual in [Options] and drive it themselves. Listeners run on the
// executor and must not call the blocking methods of the client.
//
// # Relay Connections
//
// The relay is reached through an interfaces.IConnector. The factory package
// returns either the WebSocket connector of the transport package or the
// in-process relay of the testing package:
//
//	os.Setenv("XOTALK_USE_SIMULATION", "true")
//	conn, _ := factory.NewConnectorFactory(nil).CreateConnector()
package xotalk
