// Package signal implements SignalEngine (C6): timeframe-boundary signal
// detection and per-user long/short position-cap enforcement (spec §4.6),
// grounded on original_source's BUSINESS/signals.py (cron_colab,
// signal_interpreter, get_signal) and the teacher's scanner.ScannerEngine
// interval-driven tick idiom.
package signal

import (
	stdsync "sync"
	"time"

	"gridward/internal/config"
	"gridward/internal/intent"
	"gridward/internal/position"
)

// Engine tracks the last fired timeframe bucket per (strategy, symbol, side)
// and emits opening intents exactly once per boundary crossing, subject to
// each user's per-side position cap.
type Engine struct {
	store *position.Store
	cfg   *config.Config
	now   func() time.Time

	mu         stdsync.Mutex
	lastBucket map[string]int64
}

func New(store *position.Store, cfg *config.Config) *Engine {
	return &Engine{
		store:      store,
		cfg:        cfg,
		now:        time.Now,
		lastBucket: make(map[string]int64),
	}
}

// Tick evaluates every tracked (user, strategy, symbol, side) once and
// returns the opening intents this tick produced. Caps are enforced
// against the count of positions already open plus intents accepted
// earlier in the same tick (spec §4.6 "increments the running counter").
func (e *Engine) Tick() []intent.Intent {
	paths := e.store.Paths()

	active := make(map[string]map[position.Side]int)
	for _, path := range paths {
		snap, ok := e.store.Get(path)
		if !ok || !snap.InPosition {
			continue
		}
		byUser, ok := active[path.User]
		if !ok {
			byUser = make(map[position.Side]int)
			active[path.User] = byUser
		}
		byUser[path.Side]++
	}

	var out []intent.Intent
	for _, path := range paths {
		user, ok := e.cfg.Users[path.User]
		if !ok {
			continue
		}
		snap, ok := e.store.Get(path)
		if !ok || snap.InPosition {
			continue
		}
		strategy, ok := user.Strategies[path.Strategy]
		if !ok {
			continue
		}
		side := strategy.Long
		if path.Side == position.Short {
			side = strategy.Short
		}
		if !side.Rules.Enable {
			continue
		}
		if !e.fired(path.Strategy, path.Symbol, path.Side, side.Rules.Timeframe) {
			continue
		}

		limit := user.Core.LongPositionsLimit
		if path.Side == position.Short {
			limit = user.Core.ShortPositionsLimit
		}
		byUser, ok := active[path.User]
		if !ok {
			byUser = make(map[position.Side]int)
			active[path.User] = byUser
		}
		if byUser[path.Side] >= limit {
			continue
		}

		byUser[path.Side]++
		out = append(out, intent.Intent{
			User:     path.User,
			Strategy: path.Strategy,
			Symbol:   path.Symbol,
			Side:     path.Side,
			Status:   intent.Opening,
		})
	}
	return out
}

// fired reports whether (strategy, symbol, side) just crossed into a new
// timeframe bucket, recording the new bucket so the next crossing (not
// this one) fires again. The very first observation seeds the bucket
// without firing, since no crossing has been observed yet.
func (e *Engine) fired(strategy, symbol string, side position.Side, timeframe string) bool {
	dur, ok := parseTimeframe(timeframe)
	if !ok || dur <= 0 {
		return false
	}
	bucket := e.now().Unix() / int64(dur.Seconds())

	key := strategy + "|" + symbol + "|" + string(side)
	e.mu.Lock()
	defer e.mu.Unlock()
	last, seen := e.lastBucket[key]
	e.lastBucket[key] = bucket
	if !seen {
		return false
	}
	return bucket != last
}

// parseTimeframe accepts Go duration units plus a trailing "d" for days
// (exchange timeframe strings such as "5m", "1h", "1d" are not valid
// input to time.ParseDuration as-is).
func parseTimeframe(tf string) (time.Duration, bool) {
	if tf == "" {
		return 0, false
	}
	if tf[len(tf)-1] == 'd' {
		n, err := time.ParseDuration(tf[:len(tf)-1] + "h")
		if err != nil {
			return 0, false
		}
		return n * 24, true
	}
	d, err := time.ParseDuration(tf)
	if err != nil {
		return 0, false
	}
	return d, true
}
