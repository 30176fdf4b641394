// Package market implements the instrument catalog and its per-tick price
// models.
//
// Two models exist, selected by the instrument's FixedReturn flag:
//   - Fixed-return instruments grow by a deterministic per-tick increment of
//     their annual rate. No randomness; identical runs produce identical
//     prices.
//   - Risk-bearing instruments follow a bounded random walk: each tick a
//     multiplier is drawn uniformly from the instrument's volatility range
//     and applied to the per-tick rate. Wider ranges (higher risk tiers)
//     swing harder in both directions.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Rate math runs in float64 and converts back to decimal immediately.
package market

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// MinPrice is the price floor. The walk clamps here so prices stay strictly
// positive no matter how many negative draws land in a row.
var MinPrice = decimal.NewFromFloat(0.01)

// DefaultTicksPerYear converts annual rates into per-tick increments.
// One tick is one day; a 360-day year keeps monthly periods whole.
const DefaultTicksPerYear = 360

// PerTickRate returns the fraction of the annual rate applied each tick.
func PerTickRate(annualRate float64, ticksPerYear int) float64 {
	if ticksPerYear <= 0 {
		ticksPerYear = DefaultTicksPerYear
	}
	return annualRate / float64(ticksPerYear)
}

// StepFixed advances a fixed-return price by one deterministic increment.
func StepFixed(price decimal.Decimal, perTickRate float64) decimal.Decimal {
	return clampPrice(price.Mul(decimal.NewFromFloat(1 + perTickRate)))
}

// StepRisk advances a risk-bearing price by one step of the bounded walk,
// using the supplied volatility multiplier (drawn from the instrument's
// range by the caller).
func StepRisk(price decimal.Decimal, perTickRate, volMult float64) decimal.Decimal {
	return clampPrice(price.Mul(decimal.NewFromFloat(1 + perTickRate*volMult)))
}

// DrawVolatility samples a multiplier uniformly from [min, max]. An inverted
// or degenerate range collapses to min.
func DrawVolatility(rng *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}

// SimulateHistory deterministically generates days of synthetic pre-session
// prices for one instrument. It is a pure function of its arguments: the same
// seed always reproduces the same series, so chart backfills are stable and
// testable. Points are tagged with negative ticks, oldest first, ending one
// tick before the session's initial price.
func SimulateHistory(spec model.InstrumentSpec, days int, ticksPerYear int, seed int64) []model.PricePoint {
	if days <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	rate := PerTickRate(spec.AnnualReturnRate, ticksPerYear)

	// Walk forward from the initial price, then shift the series into the
	// past so it leads up to the session start.
	price := spec.InitialPrice
	points := make([]model.PricePoint, 0, days)
	for i := 0; i < days; i++ {
		if spec.FixedReturn {
			price = StepFixed(price, rate)
		} else {
			price = StepRisk(price, rate, DrawVolatility(rng, spec.VolatilityMin, spec.VolatilityMax))
		}
		points = append(points, model.PricePoint{
			InstrumentID: spec.ID,
			Tick:         int64(i - days),
			Price:        price,
		})
	}
	return points
}

func clampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(MinPrice) {
		return MinPrice
	}
	return p
}
