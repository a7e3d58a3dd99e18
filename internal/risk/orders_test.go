package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"gridward/internal/config"
	"gridward/internal/position"
)

func TestTargetPrices_LongAppliesSignCorrectly(t *testing.T) {
	p := NewOrderPlacer(zerolog.Nop())
	sl, tp := 2.0, 4.0
	risk := config.SymbolRisk{SL: &sl, TP: &tp}

	gotSL, gotTP := p.TargetPrices(risk, position.Long, 100)

	assert.InEpsilon(t, 98, *gotSL, 1e-9)
	assert.InEpsilon(t, 104, *gotTP, 1e-9)
}

func TestTargetPrices_ShortFlipsSign(t *testing.T) {
	p := NewOrderPlacer(zerolog.Nop())
	sl, tp := 2.0, 4.0
	risk := config.SymbolRisk{SL: &sl, TP: &tp}

	gotSL, gotTP := p.TargetPrices(risk, position.Short, 100)

	assert.InEpsilon(t, 102, *gotSL, 1e-9)
	assert.InEpsilon(t, 96, *gotTP, 1e-9)
}

func TestTargetPrices_UnconfiguredLegIsNil(t *testing.T) {
	p := NewOrderPlacer(zerolog.Nop())
	risk := config.SymbolRisk{}

	sl, tp := p.TargetPrices(risk, position.Long, 100)

	assert.Nil(t, sl)
	assert.Nil(t, tp)
}
