package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultEvictionPolicy(t *testing.T) {
	cases := []struct {
		name                             string
		idleTime, minIdle, softMinIdle   time.Duration
		minIdlePerKey, idleCount         int
		want                             bool
	}{
		{"under thresholds", time.Second, time.Minute, -1, 0, 0, false},
		{"past hard minimum", 2 * time.Minute, time.Minute, -1, 0, 0, true},
		{"past soft minimum but at floor", 2 * time.Minute, -1, time.Minute, 2, 2, false},
		{"past soft minimum above floor", 2 * time.Minute, -1, time.Minute, 2, 3, true},
		{"both disabled", time.Hour, -1, -1, 0, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DefaultEvictionPolicy(c.idleTime, c.minIdle, c.softMinIdle, c.minIdlePerKey, c.idleCount)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestMinIdlePerKeyEffectiveCapsAtMaxIdle(t *testing.T) {
	cfg := Config{MinIdlePerKey: 10, MaxIdlePerKey: 5}
	assert.Equal(t, 5, cfg.MinIdlePerKeyEffective())

	cfg = Config{MinIdlePerKey: 3, MaxIdlePerKey: 5}
	assert.Equal(t, 3, cfg.MinIdlePerKeyEffective())

	cfg = Config{MinIdlePerKey: 3, MaxIdlePerKey: -1}
	assert.Equal(t, 3, cfg.MinIdlePerKeyEffective())
}

func TestConfigLoggerFallsBackToNop(t *testing.T) {
	cfg := Config{}
	assert.NotNil(t, cfg.logger())
}

func TestConfigEvictionPolicyFallsBackToDefault(t *testing.T) {
	cfg := Config{}
	got := cfg.evictionPolicy()(2*time.Hour, time.Hour, -1, 0, 0)
	assert.True(t, got)
}
