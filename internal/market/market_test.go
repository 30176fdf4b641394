package market

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func fixedSpec() model.InstrumentSpec {
	return model.InstrumentSpec{
		ID:               "gov-bond",
		DisplayName:      "Valley Treasury Bond",
		RiskTier:         model.RiskLow,
		AnnualReturnRate: 0.05,
		FixedReturn:      true,
		InitialPrice:     d(10),
	}
}

func riskSpec(id string, min, max float64) model.InstrumentSpec {
	return model.InstrumentSpec{
		ID:               id,
		DisplayName:      id,
		RiskTier:         model.RiskHigh,
		AnnualReturnRate: 0.10,
		VolatilityMin:    min,
		VolatilityMax:    max,
		InitialPrice:     d(100),
	}
}

// --- Price model tests ---

func TestStepFixed_Deterministic(t *testing.T) {
	a := StepFixed(d(10), 0.01)
	b := StepFixed(d(10), 0.01)
	if !a.Equal(b) {
		t.Errorf("fixed step not deterministic: %s vs %s", a, b)
	}
	if !a.Equal(d(10.1)) {
		t.Errorf("StepFixed(10, 0.01) = %s, want 10.1", a)
	}
}

// Scenario from the design notes: 5% annual, $10 start, 12 monthly
// compounding periods lands at ≈ $10.50 with zero variance.
func TestStepFixed_TwelveMonthlyPeriods(t *testing.T) {
	spec := fixedSpec()
	rate := PerTickRate(spec.AnnualReturnRate, 12)

	price := spec.InitialPrice
	for i := 0; i < 12; i++ {
		price = StepFixed(price, rate)
	}

	want := 10.50
	got, _ := price.Float64()
	if got < want-0.02 || got > want+0.02 {
		t.Errorf("price after 12 monthly periods = %v, want ≈ %v", got, want)
	}

	// Zero variance across repeated runs.
	again := spec.InitialPrice
	for i := 0; i < 12; i++ {
		again = StepFixed(again, rate)
	}
	if !price.Equal(again) {
		t.Errorf("fixed-return run varied: %s vs %s", price, again)
	}
}

func TestStepRisk_PositivityUnderSustainedLosses(t *testing.T) {
	price := d(0.05)
	for i := 0; i < 1000; i++ {
		price = StepRisk(price, 0.01, -50) // heavy negative draw every tick
		if price.LessThanOrEqual(decimal.Zero) {
			t.Fatalf("price went non-positive at step %d: %s", i, price)
		}
	}
	if !price.Equal(MinPrice) {
		t.Errorf("sustained losses should pin price at the floor, got %s", price)
	}
}

func TestDrawVolatility_StaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		m := DrawVolatility(rng, -8, 10)
		if m < -8 || m > 10 {
			t.Fatalf("multiplier %v outside [-8, 10]", m)
		}
	}
}

func TestDrawVolatility_DegenerateRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	if m := DrawVolatility(rng, 2, 2); m != 2 {
		t.Errorf("degenerate range should return min, got %v", m)
	}
}

// --- SimulateHistory tests ---

func TestSimulateHistory_SameSeedSameSeries(t *testing.T) {
	spec := riskSpec("tech", -4, 6)
	a := SimulateHistory(spec, 90, DefaultTicksPerYear, 42)
	b := SimulateHistory(spec, 90, DefaultTicksPerYear, 42)

	if len(a) != 90 || len(b) != 90 {
		t.Fatalf("expected 90 points, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) {
			t.Fatalf("series diverged at %d: %s vs %s", i, a[i].Price, b[i].Price)
		}
	}
}

func TestSimulateHistory_DifferentSeedsDiverge(t *testing.T) {
	spec := riskSpec("tech", -4, 6)
	a := SimulateHistory(spec, 90, DefaultTicksPerYear, 1)
	b := SimulateHistory(spec, 90, DefaultTicksPerYear, 2)

	same := true
	for i := range a {
		if !a[i].Price.Equal(b[i].Price) {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical risk-bearing history")
	}
}

// A zero-straddling volatility range must produce moves in both directions;
// an all-positive range would make a risk-bearing price monotone.
func TestSimulateHistory_SwingsBothDirections(t *testing.T) {
	spec := riskSpec("tech", -1.5, 3.0)
	spec.AnnualReturnRate = 0.14

	points := SimulateHistory(spec, 1000, DefaultTicksPerYear, 11)
	var ups, downs int
	prev := spec.InitialPrice
	for _, p := range points {
		switch {
		case p.Price.GreaterThan(prev):
			ups++
		case p.Price.LessThan(prev):
			downs++
		}
		prev = p.Price
	}
	if ups == 0 || downs == 0 {
		t.Errorf("over 1000 ticks: %d up, %d down; want both directions", ups, downs)
	}
}

func TestSimulateHistory_NegativeTicksOldestFirst(t *testing.T) {
	points := SimulateHistory(fixedSpec(), 5, DefaultTicksPerYear, 0)
	wantTicks := []int64{-5, -4, -3, -2, -1}
	for i, p := range points {
		if p.Tick != wantTicks[i] {
			t.Errorf("point %d tick = %d, want %d", i, p.Tick, wantTicks[i])
		}
	}
}

// --- Catalog tests ---

func newTestCatalog(seed int64, specs ...model.InstrumentSpec) *Catalog {
	return NewCatalog(specs, DefaultTicksPerYear, rand.New(rand.NewSource(seed)))
}

func TestCatalog_PricePositiveForAnySeed(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		c := newTestCatalog(seed, riskSpec("wild", -30, 30), fixedSpec())
		for tick := int64(1); tick <= 500; tick++ {
			c.Tick(tick)
			for _, q := range c.Quotes() {
				if q.Price.LessThanOrEqual(decimal.Zero) {
					t.Fatalf("seed %d tick %d: %s price non-positive (%s)",
						seed, tick, q.InstrumentID, q.Price)
				}
			}
		}
	}
}

func TestCatalog_WiderRangeSwingsHarder(t *testing.T) {
	narrow := riskSpec("narrow", -1, 2)
	wide := riskSpec("wide", -10, 12)
	c := newTestCatalog(3, narrow, wide)

	maxAbsReturn := func(id string) float64 {
		hist := c.History(id)
		var worst float64
		prev, _ := riskSpec(id, 0, 0).InitialPrice.Float64()
		for _, p := range hist {
			cur, _ := p.Price.Float64()
			r := (cur - prev) / prev
			if r < 0 {
				r = -r
			}
			if r > worst {
				worst = r
			}
			prev = cur
		}
		return worst
	}

	for tick := int64(1); tick <= 300; tick++ {
		c.Tick(tick)
	}
	if maxAbsReturn("wide") <= maxAbsReturn("narrow") {
		t.Errorf("wide tier should produce larger swings: wide=%v narrow=%v",
			maxAbsReturn("wide"), maxAbsReturn("narrow"))
	}
}

func TestCatalog_InitializePricesResets(t *testing.T) {
	spec := fixedSpec()
	c := newTestCatalog(1, spec)
	for tick := int64(1); tick <= 10; tick++ {
		c.Tick(tick)
	}

	c.InitializePrices()

	price, ok := c.Price(spec.ID)
	if !ok {
		t.Fatal("instrument missing after reset")
	}
	if !price.Equal(spec.InitialPrice) {
		t.Errorf("price after reset = %s, want %s", price, spec.InitialPrice)
	}
	if len(c.History(spec.ID)) != 0 {
		t.Error("history should be cleared on reset")
	}
}

func TestCatalog_BackfillStablePerDisplayName(t *testing.T) {
	a := newTestCatalog(1, riskSpec("tech", -4, 6))
	b := newTestCatalog(99, riskSpec("tech", -4, 6))
	a.BackfillHistory(30)
	b.BackfillHistory(30)

	ha, hb := a.History("tech"), b.History("tech")
	if len(ha) != 30 || len(hb) != 30 {
		t.Fatalf("expected 30 backfill points, got %d and %d", len(ha), len(hb))
	}
	for i := range ha {
		if !ha[i].Price.Equal(hb[i].Price) {
			t.Fatal("backfill should depend on display name, not the session rng")
		}
	}
}

func TestCatalog_UnknownInstrument(t *testing.T) {
	c := newTestCatalog(1, fixedSpec())
	if _, ok := c.Price("nope"); ok {
		t.Error("unknown instrument should report !ok")
	}
	if h := c.History("nope"); h != nil {
		t.Errorf("unknown instrument history = %v, want nil", h)
	}
}
