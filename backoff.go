package xotalk

import (
	"math"
	"time"

	"github.com/opd-ai/xotalk/config"
)

// Backoff computes reconnect delays. All values are seconds.
type Backoff struct {
	Fixed  float64
	Factor float64
	Max    float64
}

// DefaultBackoff is the reconnect backoff of record.
var DefaultBackoff = Backoff{Fixed: 3, Factor: 1, Max: 120}

// Delay returns the delay before the next attempt after failures consecutive
// failures. r is a uniform random number in [0, 1).
func (b Backoff) Delay(failures int, r float64) time.Duration {
	variable := b.Factor * math.Pow(2, float64(failures))
	if variable > b.Max || math.IsInf(variable, 1) {
		variable = b.Max
	}
	return config.Seconds(b.Fixed + r*variable)
}

// Bounds returns the shortest and longest possible delay.
func (b Backoff) Bounds() (time.Duration, time.Duration) {
	return config.Seconds(b.Fixed), config.Seconds(b.Fixed + b.Max)
}
