// Package rival implements the competing economic agent: it accrues income
// every tick, telegraphs a purchase target ahead of time, and buys lots from
// the territory on an interval that tightens as the game progresses.
package rival

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// SelectTarget picks the lot to telegraph: the cheapest lot the given budget
// could plausibly cover, falling back to the overall cheapest when nothing
// is affordable. available must be sorted by cost ascending. Returns false
// when no lots remain.
func SelectTarget(available []model.LotSpec, budget decimal.Decimal) (model.LotSpec, bool) {
	if len(available) == 0 {
		return model.LotSpec{}, false
	}
	for _, lot := range available {
		if budget.GreaterThanOrEqual(lot.BaseCost) {
			return lot, true
		}
	}
	return available[0], true
}

// SelectAffordable picks the cheapest lot actually payable right now: money
// must cover cost plus the keep-back buffer. available must be sorted by
// cost ascending. Returns false when nothing qualifies — a normal outcome,
// not an error.
func SelectAffordable(available []model.LotSpec, money, buffer decimal.Decimal) (model.LotSpec, bool) {
	for _, lot := range available {
		if money.GreaterThanOrEqual(lot.BaseCost.Add(buffer)) {
			return lot, true
		}
	}
	return model.LotSpec{}, false
}

// IntervalForProgress shrinks the purchase interval linearly from base at
// progress 0 down to min at progress 1, increasing pressure as the valley
// fills up.
func IntervalForProgress(base, min int64, progress float64) int64 {
	if min > base {
		min = base
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	interval := base - int64(math.Round(progress*float64(base-min)))
	if interval < min {
		interval = min
	}
	return interval
}
