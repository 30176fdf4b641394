package rival

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/event"
	"github.com/fortunevalley/sim-engine/internal/model"
	"github.com/fortunevalley/sim-engine/internal/territory"
)

type phase int

const (
	phaseAccumulating phase = iota
	phaseWarning
)

// Config tunes the competitor's economy and cadence.
type Config struct {
	StartingMoney decimal.Decimal `yaml:"starting_money"`
	IncomePerTick decimal.Decimal `yaml:"income_per_tick"`
	// BaseInterval is the number of ticks between purchase attempts at the
	// start of a session; the interval shrinks toward MinInterval as lots
	// fill up.
	BaseInterval int64 `yaml:"base_interval"`
	MinInterval  int64 `yaml:"min_interval"`
	// WarningLead is how many ticks before a purchase attempt the target
	// is telegraphed.
	WarningLead int64 `yaml:"warning_lead"`
	// Buffer is kept back from the money pool when judging affordability.
	Buffer decimal.Decimal `yaml:"buffer"`
}

// Competitor drives the rival's side of the territory race. Its money pool
// is internal and never touches the player ledger. Not safe for concurrent
// use; the engine serializes all access.
type Competitor struct {
	bus       *event.Bus
	territory *territory.Territory
	cfg       Config
	log       *slog.Logger

	money      decimal.Decimal
	phase      phase
	cycleTicks int64
	target     string
	hasTarget  bool
}

// New wires a competitor to the bus and territory. It subscribes to lot
// purchases so a player sniping the telegraphed target forces an immediate
// retarget.
func New(bus *event.Bus, terr *territory.Territory, cfg Config, log *slog.Logger) *Competitor {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = 1
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 1
	}
	if cfg.MinInterval > cfg.BaseInterval {
		cfg.MinInterval = cfg.BaseInterval
	}
	if cfg.WarningLead < 0 {
		cfg.WarningLead = 0
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Competitor{
		bus:       bus,
		territory: terr,
		cfg:       cfg,
		log:       log,
	}
	c.Reset()
	bus.Subscribe(event.LotPurchased, c.onLotPurchased)
	return c
}

// Reset restores the starting money pool and restarts the purchase cycle.
func (c *Competitor) Reset() {
	c.money = c.cfg.StartingMoney
	c.phase = phaseAccumulating
	c.cycleTicks = 0
	c.target = ""
	c.hasTarget = false
}

// Money reports the current internal pool.
func (c *Competitor) Money() decimal.Decimal { return c.money }

// Target reports the currently telegraphed lot, if any.
func (c *Competitor) Target() (string, bool) { return c.target, c.hasTarget }

// Tick accrues income and advances the purchase cycle one step. The warning
// is issued exactly once per cycle, WarningLead ticks ahead of the attempt.
// The interval is recomputed from territory progress every tick, so lots
// filling up shorten the current cycle, not just the next one.
func (c *Competitor) Tick(tick int64) {
	if c.territory.Winner() != model.WinnerNone {
		return
	}
	c.money = c.money.Add(c.cfg.IncomePerTick)
	c.cycleTicks++

	remaining := c.remaining()
	if c.phase == phaseAccumulating && remaining <= c.cfg.WarningLead {
		c.issueWarning(tick, remaining)
	}

	if remaining > 0 {
		return
	}
	c.attemptPurchase(tick)
	c.restartCycle()
}

// remaining is the number of ticks left before the next purchase attempt,
// measured against the current progress-dependent interval.
func (c *Competitor) remaining() int64 {
	left := c.currentInterval() - c.cycleTicks
	if left < 0 {
		return 0
	}
	return left
}

func (c *Competitor) issueWarning(tick, remaining int64) {
	available := c.territory.Available()
	projected := c.money.Add(c.cfg.IncomePerTick.Mul(decimal.NewFromInt(remaining)))
	lot, ok := SelectTarget(available, projected)
	if !ok {
		return
	}
	c.phase = phaseWarning
	c.target = lot.ID
	c.hasTarget = true
	c.bus.Publish(event.Event{
		Type: event.RivalTargeting,
		Tick: tick,
		Data: event.TargetData{LotID: lot.ID, TicksLeft: remaining},
	})
}

// onLotPurchased retargets immediately when someone else takes the lot the
// competitor telegraphed.
func (c *Competitor) onLotPurchased(e event.Event) {
	data, ok := e.Data.(event.LotData)
	if !ok {
		return
	}
	if c.phase != phaseWarning || !c.hasTarget || data.LotID != c.target {
		return
	}
	if data.Owner == string(model.OwnerRival) {
		return
	}
	remaining := c.remaining()
	available := c.territory.Available()
	projected := c.money.Add(c.cfg.IncomePerTick.Mul(decimal.NewFromInt(remaining)))
	lot, ok := SelectTarget(available, projected)
	if !ok {
		c.hasTarget = false
		c.target = ""
		c.phase = phaseAccumulating
		return
	}
	c.target = lot.ID
	c.bus.Publish(event.Event{
		Type: event.RivalTargetChanged,
		Tick: e.Tick,
		Data: event.TargetData{LotID: lot.ID, TicksLeft: remaining},
	})
}

func (c *Competitor) attemptPurchase(tick int64) {
	available := c.territory.Available()
	lot, ok := SelectAffordable(available, c.money, c.cfg.Buffer)
	if !ok {
		c.log.Debug("rival skipped purchase", "money", c.money.String())
		return
	}
	c.money = c.money.Sub(lot.BaseCost)
	if !c.territory.Purchase(lot.ID, model.OwnerRival, tick) {
		c.money = c.money.Add(lot.BaseCost)
		return
	}
	c.bus.Publish(event.Event{
		Type: event.RivalPurchased,
		Tick: tick,
		Data: event.LotData{LotID: lot.ID, Owner: string(model.OwnerRival), Cost: lot.BaseCost},
	})
}

func (c *Competitor) restartCycle() {
	c.phase = phaseAccumulating
	c.target = ""
	c.hasTarget = false
	c.cycleTicks = 0
}

func (c *Competitor) currentInterval() int64 {
	return IntervalForProgress(c.cfg.BaseInterval, c.cfg.MinInterval, c.territory.Progress())
}
