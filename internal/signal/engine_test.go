package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gridward/internal/config"
	"gridward/internal/position"
)

func newTestConfig(limit int) *config.Config {
	return &config.Config{
		Users: map[string]config.ResolvedUser{
			"alice": {
				Name: "alice",
				Core: config.UserCore{LongPositionsLimit: limit, ShortPositionsLimit: limit},
				Strategies: map[string]config.ResolvedStrategy{
					"grid1": {
						Name: "grid1",
						Long: config.StrategySide{Rules: config.TimeframeRule{Enable: true, Timeframe: "5m"}},
					},
				},
			},
		},
	}
}

func TestFired_FirstObservationSeedsWithoutFiring(t *testing.T) {
	store := position.NewStore()
	e := New(store, newTestConfig(5))
	e.now = func() time.Time { return time.Unix(0, 0) }

	assert.False(t, e.fired("grid1", "BTCUSDT", position.Long, "5m"))
}

func TestFired_FiresOnceOnBoundaryCrossing(t *testing.T) {
	store := position.NewStore()
	e := New(store, newTestConfig(5))
	e.now = func() time.Time { return time.Unix(0, 0) }
	e.fired("grid1", "BTCUSDT", position.Long, "5m")

	e.now = func() time.Time { return time.Unix(299, 0) }
	assert.False(t, e.fired("grid1", "BTCUSDT", position.Long, "5m"))

	e.now = func() time.Time { return time.Unix(301, 0) }
	assert.True(t, e.fired("grid1", "BTCUSDT", position.Long, "5m"))

	assert.False(t, e.fired("grid1", "BTCUSDT", position.Long, "5m"))
}

func TestTick_CapLimitsAcceptedIntentsPerUserSide(t *testing.T) {
	store := position.NewStore()
	store.Init(position.Path{User: "alice", Strategy: "grid1", Symbol: "BTCUSDT", Side: position.Long}, 3, 2)
	store.Init(position.Path{User: "alice", Strategy: "grid1", Symbol: "ETHUSDT", Side: position.Long}, 3, 2)

	cfg := newTestConfig(1)
	cfg.Users["alice"].Strategies["grid1"] = config.ResolvedStrategy{
		Name: "grid1",
		Long: config.StrategySide{Rules: config.TimeframeRule{Enable: true, Timeframe: "5m"}},
	}

	e := New(store, cfg)
	e.now = func() time.Time { return time.Unix(0, 0) }
	e.Tick() // seed buckets

	e.now = func() time.Time { return time.Unix(301, 0) }
	out := e.Tick()

	assert.Len(t, out, 1)
}

func TestParseTimeframe_SupportsDaySuffix(t *testing.T) {
	d, ok := parseTimeframe("1d")
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)
}
