package position

import "math"

// GridStep is one entry of an averaging grid: indent% away from the
// logical entry and the volume% (of base notional) the step trades.
type GridStep struct {
	Indent float64
	Volume float64
}

// Grid precomputes the cumulative notional of a configured averaging grid
// for a given margin/leverage pair, grounded on the original bot's
// GridMath class: base_notional/step_notional/cum_notional are derived
// once at construction rather than recomputed on every estimate.
type Grid struct {
	Steps       []GridStep
	BaseNotional float64
	cumNotional []float64
}

// NewGrid builds a Grid from margin, leverage and an ordered step list.
func NewGrid(margin, leverage float64, steps []GridStep) Grid {
	base := margin * leverage
	cum := make([]float64, len(steps))
	running := 0.0
	for i, step := range steps {
		running += base * step.Volume / 100
		cum[i] = running
	}
	return Grid{Steps: steps, BaseNotional: base, cumNotional: cum}
}

// EstimateProgress returns the 1-based grid step k in [1, N] whose
// cumulative notional is nearest to actualNotional (spec §4.2). A
// non-positive actualNotional always yields 1.
func (g Grid) EstimateProgress(actualNotional float64) int {
	if len(g.cumNotional) == 0 {
		return 1
	}
	if actualNotional <= 0 {
		return 1
	}

	best := 1
	bestDiff := math.Inf(1)
	for i, cum := range g.cumNotional {
		diff := math.Abs(cum - actualNotional)
		if diff < bestDiff {
			bestDiff = diff
			best = i + 1
		}
	}
	return best
}

// ReconstructEntryPrice backs out the logical first-step entry price from
// the exchange-reported volume-weighted average (spec §4.2). Returns false
// if the grid is empty, progress is non-positive, or any step's indent
// implies a non-positive multiplier.
func ReconstructEntryPrice(avgPrice float64, grid []GridStep, progress int, side Side) (float64, bool) {
	if len(grid) == 0 || progress <= 0 {
		return 0, false
	}
	n := progress
	if n > len(grid) {
		n = len(grid)
	}
	sign := 1.0
	if side == Short {
		sign = -1
	}

	var volSum, weighted float64
	for _, step := range grid[:n] {
		k := 1 + sign*step.Indent/100
		if k <= 0 {
			return 0, false
		}
		volSum += step.Volume
		weighted += step.Volume / k
	}
	if volSum <= 0 {
		return 0, false
	}
	return avgPrice * weighted / volSum, true
}
