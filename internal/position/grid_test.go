package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateProgress_ExactCumulativeMatches(t *testing.T) {
	steps := []GridStep{{Indent: 0, Volume: 10.52}, {Indent: -8, Volume: 11.57}, {Indent: -16, Volume: 12.73}}
	g := NewGrid(26, 10, steps)

	// I6: estimate_progress(cum_notional_k) == k for all k.
	for k := 1; k <= len(steps); k++ {
		got := g.EstimateProgress(g.cumNotional[k-1])
		assert.Equal(t, k, got, "progress at cum_notional_%d", k)
	}
}

func TestEstimateProgress_NonPositiveNotionalIsOne(t *testing.T) {
	g := NewGrid(26, 10, []GridStep{{Indent: 0, Volume: 10}})
	assert.Equal(t, 1, g.EstimateProgress(0))
	assert.Equal(t, 1, g.EstimateProgress(-5))
}

func TestReconstructEntryPrice_RoundTrip(t *testing.T) {
	// I5: feed avg_price computed as the volume-weighted mean of the
	// theoretical grid fills, expect the original first-step price back
	// within epsilon.
	grid := []GridStep{{Indent: 0, Volume: 10}, {Indent: -8, Volume: 10}}
	firstStepPrice := 1.0000
	progress := 2

	// Build avg_price the way the exchange would: total notional over total
	// quantity, where step i trades volume_i of notional at fill price
	// first*(1 + indent_i/100) for LONG (indent is negative, so price falls
	// by |indent|%).
	var volSum, qtySum float64
	for _, step := range grid[:progress] {
		fillPrice := firstStepPrice * (1 + step.Indent/100)
		volSum += step.Volume
		qtySum += step.Volume / fillPrice
	}
	avgPrice := volSum / qtySum

	got, ok := ReconstructEntryPrice(avgPrice, grid, progress, Long)
	assert.True(t, ok)
	assert.InEpsilon(t, firstStepPrice, got, 1e-6)
}

func TestReconstructEntryPrice_NonPositiveMultiplierFails(t *testing.T) {
	grid := []GridStep{{Indent: -150, Volume: 10}} // LONG: k = 1 + (-150)/100 = -0.5
	_, ok := ReconstructEntryPrice(1.0, grid, 1, Long)
	assert.False(t, ok)
}

func TestReconstructEntryPrice_EmptyGridFails(t *testing.T) {
	_, ok := ReconstructEntryPrice(1.0, nil, 1, Long)
	assert.False(t, ok)
}

func TestStateReset_ClearsLifecycleFields(t *testing.T) {
	store := NewStore()
	p := Path{User: "u1", Strategy: "cron", Symbol: "BTCUSDT", Side: Long}
	store.Init(p, 3, 2)

	avg := 1.05
	entry := 1.00
	ctime := int64(1000)
	store.Update(p, func(s *State) {
		s.InPosition = true
		s.ComulQty = 27
		s.AvgPrice = &avg
		s.EntryPrice = &entry
		s.AvgProgressCounter = 3
		s.AvgProgressReal = 3
		s.IsTP = true
		s.ProcessVolume = 12.5
		s.CTime = &ctime
	})

	store.Reset(p)

	full, ok := store.Full(p)
	assert.True(t, ok)
	// I1: lifecycle reset.
	assert.False(t, full.InPosition)
	assert.Equal(t, 1, full.AvgProgressCounter)
	assert.Equal(t, 1, full.AvgProgressReal)
	assert.False(t, full.IsTP)
	assert.Equal(t, 0.0, full.ProcessVolume)
	assert.Nil(t, full.EntryPrice)
	assert.Equal(t, 0.0, full.ComulQty)
	// precisions survive the reset
	assert.Equal(t, 3, full.QtyPrecision)
	assert.Equal(t, 2, full.PricePrecision)
}

func TestStateReset_FreshPositionMatchesStartupTemplate(t *testing.T) {
	// L1: full-close then immediate new position yields a fresh state
	// equal to the startup template with new c_time.
	store := NewStore()
	p := Path{User: "u1", Strategy: "cron", Symbol: "BTCUSDT", Side: Long}
	store.Init(p, 3, 2)
	fresh, _ := store.Full(p)

	avg := 1.05
	store.Update(p, func(s *State) {
		s.InPosition = true
		s.AvgPrice = &avg
		s.ComulQty = 10
	})
	store.Reset(p)

	ctime := int64(2000)
	store.Update(p, func(s *State) { s.CTime = &ctime })
	afterReopen, _ := store.Full(p)

	assert.Equal(t, fresh.AvgProgressCounter, afterReopen.AvgProgressCounter)
	assert.Equal(t, fresh.AvgProgressReal, afterReopen.AvgProgressReal)
	assert.Equal(t, fresh.IsTP, afterReopen.IsTP)
	assert.Equal(t, fresh.ComulQty, afterReopen.ComulQty)
	assert.NotNil(t, afterReopen.CTime)
}
