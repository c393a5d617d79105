package xotalk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		r        float64
		want     time.Duration
	}{
		{"no jitter", 1, 0, 3 * time.Second},
		{"first failure", 1, 0.5, 4 * time.Second},
		{"third failure", 3, 0.5, 7 * time.Second},
		{"capped", 10, 0.5, 63 * time.Second},
		{"overflow", 5000, 0.5, 63 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultBackoff.Delay(tt.failures, tt.r))
		})
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	lo, hi := DefaultBackoff.Bounds()
	assert.Equal(t, 3*time.Second, lo)
	assert.Equal(t, 123*time.Second, hi)

	for failures := 0; failures < 64; failures++ {
		for _, r := range []float64{0, 0.25, 0.999} {
			d := DefaultBackoff.Delay(failures, r)
			assert.GreaterOrEqual(t, d, lo)
			assert.Less(t, d, hi)
		}
	}
}

func TestBackoffGrowsWithFailures(t *testing.T) {
	prev := time.Duration(0)
	for failures := 0; failures < 12; failures++ {
		d := DefaultBackoff.Delay(failures, 0.999)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}
