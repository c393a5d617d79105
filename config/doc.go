// Package config loads the options of an xotalk client.
//
// Options start from the defaults of record, are overlaid with an optional
// YAML file and finally with XOTALK_* environment variables. A .env file in
// the working directory is loaded into the environment first. Durations are
// written in seconds.
//
//	opts, err := config.Load("xotalk.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	connector, err := factory.NewConnectorFactory(opts.ConnectorConfig()).CreateConnector()
//
// Environment variables:
//   - XOTALK_SERVER_URL: relay WebSocket endpoint
//   - XOTALK_PROTOCOL: preferred wire subprotocol
//   - XOTALK_USE_SIMULATION: "true" or "false"
//   - XOTALK_DB: sqlite database path
//   - XOTALK_DOWNLOAD_DIR: directory for received attachments
//   - XOTALK_PASSPHRASE: passphrase sealing secrets at rest
//   - XOTALK_CONNECT_TIMEOUT, XOTALK_IDLE_TIMEOUT, XOTALK_KEEPALIVE,
//     XOTALK_REQUEST_TIMEOUT: seconds
//   - XOTALK_LOG_LEVEL: logrus level name
package config
