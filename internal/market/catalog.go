package market

import (
	"hash/fnv"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// instrumentState is the mutable runtime side of one instrument, kept
// separate from the immutable spec.
type instrumentState struct {
	price   decimal.Decimal
	history []model.PricePoint
}

// Catalog owns every instrument's runtime price state and advances it once
// per tick. Specs are loaded once at construction and never mutated.
type Catalog struct {
	specs        []model.InstrumentSpec
	byID         map[string]model.InstrumentSpec
	states       map[string]*instrumentState
	ticksPerYear int
	rng          *rand.Rand
}

// NewCatalog creates a catalog over the given specs. rng drives the
// risk-bearing walks; seed it for reproducible sessions.
func NewCatalog(specs []model.InstrumentSpec, ticksPerYear int, rng *rand.Rand) *Catalog {
	if ticksPerYear <= 0 {
		ticksPerYear = DefaultTicksPerYear
	}
	c := &Catalog{
		specs:        specs,
		byID:         make(map[string]model.InstrumentSpec, len(specs)),
		states:       make(map[string]*instrumentState, len(specs)),
		ticksPerYear: ticksPerYear,
		rng:          rng,
	}
	for _, s := range specs {
		c.byID[s.ID] = s
	}
	c.InitializePrices()
	return c
}

// InitializePrices seeds every instrument's runtime price from its spec and
// clears in-session history. Called at construction and on session restart.
func (c *Catalog) InitializePrices() {
	for _, s := range c.specs {
		c.states[s.ID] = &instrumentState{price: s.InitialPrice}
	}
}

// BackfillHistory pre-populates days of synthetic history per instrument so
// charts are never empty at session start. Each instrument's seed derives
// from an FNV hash of its display name, so the same catalog always backfills
// the same charts.
func (c *Catalog) BackfillHistory(days int) {
	for _, s := range c.specs {
		h := fnv.New64a()
		h.Write([]byte(s.DisplayName))
		c.states[s.ID].history = SimulateHistory(s, days, c.ticksPerYear, int64(h.Sum64()))
	}
}

// Tick advances every instrument's price by one step, independent of any
// holder, and appends the new sample to its history.
func (c *Catalog) Tick(tick int64) {
	for _, s := range c.specs {
		st := c.states[s.ID]
		rate := PerTickRate(s.AnnualReturnRate, c.ticksPerYear)
		if s.FixedReturn {
			st.price = StepFixed(st.price, rate)
		} else {
			st.price = StepRisk(st.price, rate, DrawVolatility(c.rng, s.VolatilityMin, s.VolatilityMax))
		}
		st.history = append(st.history, model.PricePoint{
			InstrumentID: s.ID,
			Tick:         tick,
			Price:        st.price,
		})
	}
}

// Price returns the current price for an instrument. The second return is
// false for unknown IDs.
func (c *Catalog) Price(id string) (decimal.Decimal, bool) {
	st, ok := c.states[id]
	if !ok {
		return decimal.Zero, false
	}
	return st.price, true
}

// Spec returns the immutable definition for an instrument.
func (c *Catalog) Spec(id string) (model.InstrumentSpec, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Quotes returns a snapshot of every instrument in catalog order.
func (c *Catalog) Quotes() []model.Quote {
	quotes := make([]model.Quote, 0, len(c.specs))
	for _, s := range c.specs {
		quotes = append(quotes, model.Quote{
			InstrumentID: s.ID,
			DisplayName:  s.DisplayName,
			RiskTier:     s.RiskTier,
			FixedReturn:  s.FixedReturn,
			Price:        c.states[s.ID].price,
		})
	}
	return quotes
}

// History returns the price series for one instrument: synthetic backfill
// (negative ticks) followed by in-session samples.
func (c *Catalog) History(id string) []model.PricePoint {
	st, ok := c.states[id]
	if !ok {
		return nil
	}
	out := make([]model.PricePoint, len(st.history))
	copy(out, st.history)
	return out
}

// LatestPoints returns the most recent sample per instrument, used by the
// engine to persist per-tick price history.
func (c *Catalog) LatestPoints() []model.PricePoint {
	points := make([]model.PricePoint, 0, len(c.specs))
	for _, s := range c.specs {
		st := c.states[s.ID]
		if len(st.history) == 0 {
			continue
		}
		points = append(points, st.history[len(st.history)-1])
	}
	return points
}
