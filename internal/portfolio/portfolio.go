// Package portfolio owns the player's share positions. Buys debit the
// investing account, sells credit checking; at most one open position exists
// per instrument, merged by weighted-average cost basis on repeat buys.
package portfolio

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/event"
	"github.com/fortunevalley/sim-engine/internal/ledger"
	"github.com/fortunevalley/sim-engine/internal/market"
	"github.com/fortunevalley/sim-engine/internal/model"
)

var (
	// ErrUnknownInstrument is returned when the instrument is not in the catalog.
	ErrUnknownInstrument = errors.New("portfolio: unknown instrument")

	// ErrInvalidShares is returned for share counts <= 0.
	ErrInvalidShares = errors.New("portfolio: share count must be positive")

	// ErrInsufficientFunds is returned when the investing account cannot
	// cover the buy. No state changes.
	ErrInsufficientFunds = errors.New("portfolio: insufficient funds")

	// ErrUnknownPosition is returned when selling a position that is not open.
	ErrUnknownPosition = errors.New("portfolio: unknown position")
)

// Portfolio tracks open positions and lifetime realized results.
type Portfolio struct {
	bus     *event.Bus
	ledger  *ledger.Ledger
	catalog *market.Catalog
	tick    func() int64

	byInstrument map[string]*model.Position

	opened       int64
	closed       int64
	realizedGain decimal.Decimal
	sales        []model.SaleRecord
}

// New creates an empty portfolio. tickFn supplies the current tick; pass nil
// outside an engine.
func New(bus *event.Bus, led *ledger.Ledger, cat *market.Catalog, tickFn func() int64) *Portfolio {
	if tickFn == nil {
		tickFn = func() int64 { return 0 }
	}
	return &Portfolio{
		bus:          bus,
		ledger:       led,
		catalog:      cat,
		tick:         tickFn,
		byInstrument: make(map[string]*model.Position),
		realizedGain: decimal.Zero,
	}
}

// Reset drops all positions and lifetime counters for a new session.
func (p *Portfolio) Reset() {
	p.byInstrument = make(map[string]*model.Position)
	p.opened = 0
	p.closed = 0
	p.realizedGain = decimal.Zero
	p.sales = nil
}

// Buy purchases shares at the current catalog price, funded from the
// investing account. A failed withdraw leaves everything untouched. Buying
// into an already-held instrument merges via weighted-average cost basis.
func (p *Portfolio) Buy(instrumentID string, shares int64) (*model.Position, error) {
	if shares <= 0 {
		return nil, ErrInvalidShares
	}
	price, ok := p.catalog.Price(instrumentID)
	if !ok {
		return nil, ErrUnknownInstrument
	}
	cost := price.Mul(decimal.NewFromInt(shares))
	if !p.ledger.Withdraw(model.AccountInvesting, cost, "buy "+instrumentID) {
		return nil, ErrInsufficientFunds
	}

	pos, held := p.byInstrument[instrumentID]
	if held {
		// newAvg = (oldShares*oldAvg + newShares*price) / (oldShares+newShares)
		oldTotal := pos.AvgCost.Mul(decimal.NewFromInt(pos.Shares))
		newTotal := oldTotal.Add(cost)
		pos.Shares += shares
		pos.AvgCost = newTotal.Div(decimal.NewFromInt(pos.Shares))
		return pos, nil
	}

	pos = &model.Position{
		ID:            uuid.NewString(),
		InstrumentID:  instrumentID,
		Shares:        shares,
		AvgCost:       price,
		CreatedAtTick: p.tick(),
	}
	p.byInstrument[instrumentID] = pos
	p.opened++
	p.publishPosition(event.PositionOpened, pos, decimal.Zero)
	return pos, nil
}

// Sell disposes up to shares at the current price, clamped to the held
// count, and deposits the proceeds into checking. Reaching zero shares
// closes and removes the position.
func (p *Portfolio) Sell(instrumentID string, shares int64) (decimal.Decimal, error) {
	if shares <= 0 {
		return decimal.Zero, ErrInvalidShares
	}
	pos, ok := p.byInstrument[instrumentID]
	if !ok {
		return decimal.Zero, ErrUnknownPosition
	}
	price, ok := p.catalog.Price(instrumentID)
	if !ok {
		return decimal.Zero, ErrUnknownInstrument
	}

	if shares > pos.Shares {
		shares = pos.Shares
	}
	sold := decimal.NewFromInt(shares)
	proceeds := price.Mul(sold)
	gain := price.Sub(pos.AvgCost).Mul(sold)

	pos.Shares -= shares
	p.realizedGain = p.realizedGain.Add(gain)
	p.sales = append(p.sales, model.SaleRecord{
		InstrumentID: instrumentID,
		Shares:       shares,
		Price:        price,
		Proceeds:     proceeds,
		RealizedGain: gain,
		Tick:         p.tick(),
	})
	p.ledger.Deposit(model.AccountChecking, proceeds, "sell "+instrumentID)

	if pos.Shares == 0 {
		delete(p.byInstrument, instrumentID)
		p.closed++
		p.publishPosition(event.PositionClosed, pos, proceeds)
	}
	return proceeds, nil
}

// SellAll disposes the entire holding of one instrument.
func (p *Portfolio) SellAll(instrumentID string) (decimal.Decimal, error) {
	pos, ok := p.byInstrument[instrumentID]
	if !ok {
		return decimal.Zero, ErrUnknownPosition
	}
	return p.Sell(instrumentID, pos.Shares)
}

// Tick increments the held-tick counter on every open position. Pure
// bookkeeping; prices move in the catalog, not here.
func (p *Portfolio) Tick() {
	for _, pos := range p.byInstrument {
		pos.TicksHeld++
	}
}

// Position returns the open position for an instrument, if any.
func (p *Portfolio) Position(instrumentID string) (*model.Position, bool) {
	pos, ok := p.byInstrument[instrumentID]
	return pos, ok
}

// Positions returns copies of every open position.
func (p *Portfolio) Positions() []model.Position {
	out := make([]model.Position, 0, len(p.byInstrument))
	for _, pos := range p.byInstrument {
		out = append(out, *pos)
	}
	return out
}

// TotalValue marks every open position to current catalog prices.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for id, pos := range p.byInstrument {
		if price, ok := p.catalog.Price(id); ok {
			total = total.Add(pos.ValueAt(price))
		}
	}
	return total
}

// TotalPrincipal sums the cost basis of every open position.
func (p *Portfolio) TotalPrincipal() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.byInstrument {
		total = total.Add(pos.CostBasis())
	}
	return total
}

// RealizedGain is the lifetime realized gain or loss across all sells.
func (p *Portfolio) RealizedGain() decimal.Decimal { return p.realizedGain }

// OpenedCount is the lifetime number of positions created.
func (p *Portfolio) OpenedCount() int64 { return p.opened }

// ClosedCount is the lifetime number of positions fully closed.
func (p *Portfolio) ClosedCount() int64 { return p.closed }

// Sales returns the sell history for the end-of-game summary.
func (p *Portfolio) Sales() []model.SaleRecord {
	out := make([]model.SaleRecord, len(p.sales))
	copy(out, p.sales)
	return out
}

func (p *Portfolio) publishPosition(t event.Type, pos *model.Position, payout decimal.Decimal) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(event.Event{
		Type: t,
		Tick: p.tick(),
		Data: event.PositionData{
			PositionID:   pos.ID,
			InstrumentID: pos.InstrumentID,
			Shares:       pos.Shares,
			AvgCost:      pos.AvgCost,
			Payout:       payout,
		},
	})
}
