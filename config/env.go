package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ApplyEnvironment updates o from XOTALK_* environment variables. Invalid
// values are logged and ignored.
func ApplyEnvironment(o *Options) {
	parseStringSetting("XOTALK_SERVER_URL", &o.Server.URL)
	parseStringSetting("XOTALK_PROTOCOL", &o.Server.Protocol)
	parseBoolSetting("XOTALK_USE_SIMULATION", &o.Server.UseSimulation)
	parseStringSetting("XOTALK_DB", &o.Storage.Database)
	parseStringSetting("XOTALK_DOWNLOAD_DIR", &o.Storage.DownloadDir)
	parseStringSetting("XOTALK_PASSPHRASE", &o.Storage.Passphrase)
	parseStringSetting("XOTALK_LOG_LEVEL", &o.LogLevel)
	parseSecondsSetting("XOTALK_CONNECT_TIMEOUT", &o.Session.ConnectTimeout)
	parseSecondsSetting("XOTALK_IDLE_TIMEOUT", &o.Session.IdleTimeout)
	parseSecondsSetting("XOTALK_KEEPALIVE", &o.Session.KeepAlive)
	parseSecondsSetting("XOTALK_REQUEST_TIMEOUT", &o.Session.RequestTimeout)
}

func parseStringSetting(name string, target *string) {
	if v := os.Getenv(name); v != "" {
		*target = v
	}
}

// parseBoolSetting updates target from a boolean environment variable and
// logs a warning if parsing fails.
func parseBoolSetting(name string, target *bool) {
	s := os.Getenv(name)
	if s == "" {
		return
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseBoolSetting",
			"env_var":     name,
			"value":       s,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	*target = v
}

// parseSecondsSetting updates target from an environment variable holding
// seconds. Values outside [MinTimeout, MaxTimeout] are rejected.
func parseSecondsSetting(name string, target *float64) {
	s := os.Getenv(name)
	if s == "" {
		return
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSecondsSetting",
			"env_var":     name,
			"value":       s,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	if v < MinTimeout || v > MaxTimeout {
		logrus.WithFields(logrus.Fields{
			"function":    "parseSecondsSetting",
			"env_var":     name,
			"value":       v,
			"min":         MinTimeout,
			"max":         MaxTimeout,
			"using_value": *target,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = v
}
