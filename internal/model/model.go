// Package model defines the core domain types shared across the simulation
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskTier classifies an instrument's volatility band.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Account names the two ledger accounts.
type Account string

const (
	AccountChecking  Account = "checking"
	AccountInvesting Account = "investing"
)

// Owner identifies who holds a lot.
type Owner string

const (
	OwnerNone   Owner = "none"
	OwnerPlayer Owner = "player"
	OwnerRival  Owner = "rival"
)

// Winner is the outcome of a finished session.
type Winner string

const (
	WinnerNone   Winner = ""
	WinnerPlayer Winner = "player"
	WinnerRival  Winner = "rival"
)

// InstrumentSpec is the immutable per-session definition of a tradable
// instrument. Runtime price state lives in the market catalog, keyed by ID —
// the spec itself is never mutated after load.
type InstrumentSpec struct {
	ID               string          `json:"id" yaml:"id"`
	DisplayName      string          `json:"display_name" yaml:"display_name"`
	RiskTier         RiskTier        `json:"risk_tier" yaml:"risk_tier"`
	AnnualReturnRate float64         `json:"annual_return_rate" yaml:"annual_return_rate"`
	VolatilityMin    float64         `json:"volatility_min" yaml:"volatility_min"`
	VolatilityMax    float64         `json:"volatility_max" yaml:"volatility_max"`
	FixedReturn      bool            `json:"fixed_return" yaml:"fixed_return"`
	MinimumDeposit   decimal.Decimal `json:"minimum_deposit" yaml:"minimum_deposit"`
	InitialPrice     decimal.Decimal `json:"initial_price" yaml:"initial_price"`
}

// Quote is a point-in-time price snapshot for one instrument.
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	DisplayName  string          `json:"display_name"`
	RiskTier     RiskTier        `json:"risk_tier"`
	FixedReturn  bool            `json:"fixed_return"`
	Price        decimal.Decimal `json:"price"`
}

// PricePoint is one sample of an instrument's price history.
// Negative ticks denote synthetic pre-session history used for charts.
type PricePoint struct {
	InstrumentID string          `json:"instrument_id" db:"instrument_id"`
	Tick         int64           `json:"tick" db:"tick"`
	Price        decimal.Decimal `json:"price" db:"price"`
}

// Position is an open share holding against one instrument. Owned exclusively
// by the portfolio: created on buy, destroyed on full sell.
type Position struct {
	ID            string          `json:"id"`
	InstrumentID  string          `json:"instrument_id"`
	Shares        int64           `json:"shares"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	CreatedAtTick int64           `json:"created_at_tick"`
	TicksHeld     int64           `json:"ticks_held"`
}

// ValueAt marks the position to the given price.
func (p *Position) ValueAt(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Shares))
}

// CostBasis is shares × average cost.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AvgCost.Mul(decimal.NewFromInt(p.Shares))
}

// GainAt is mark-to-market value minus cost basis.
func (p *Position) GainAt(price decimal.Decimal) decimal.Decimal {
	return p.ValueAt(price).Sub(p.CostBasis())
}

// LotSpec is the immutable definition of a purchasable lot. Ownership state
// lives in the territory, not on the lot.
type LotSpec struct {
	ID            string          `json:"id" yaml:"id"`
	DisplayName   string          `json:"display_name" yaml:"display_name"`
	BaseCost      decimal.Decimal `json:"base_cost" yaml:"base_cost"`
	IncomePerTick decimal.Decimal `json:"income_per_tick" yaml:"income_per_tick"`
}

// LotState is the runtime ownership record for one lot.
type LotState struct {
	LotID        string `json:"lot_id"`
	Owner        Owner  `json:"owner"`
	PurchaseTick int64  `json:"purchase_tick"`
}

// SaleRecord captures one realized sell, kept for the end-of-game summary.
type SaleRecord struct {
	InstrumentID string          `json:"instrument_id"`
	Shares       int64           `json:"shares"`
	Price        decimal.Decimal `json:"price"`
	Proceeds     decimal.Decimal `json:"proceeds"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	Tick         int64           `json:"tick"`
}

// AuditEntry is an immutable record of a money or ownership movement.
// Once created, these are never modified or deleted.
type AuditEntry struct {
	ID        string          `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	Tick      int64           `json:"tick" db:"tick"`
	Kind      string          `json:"kind" db:"kind"`
	Account   string          `json:"account,omitempty" db:"account"`
	Delta     decimal.Decimal `json:"delta" db:"delta"`
	Label     string          `json:"label,omitempty" db:"label"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// GameSummary is the end-of-session report, assembled purely from read-only
// component queries.
type GameSummary struct {
	SessionID          string          `json:"session_id"`
	Winner             Winner          `json:"winner"`
	PlayerWon          bool            `json:"player_won"`
	DaysPlayed         int64           `json:"days_played"`
	PlayerLots         int             `json:"player_lots"`
	RivalLots          int             `json:"rival_lots"`
	CheckingBalance    decimal.Decimal `json:"checking_balance"`
	InvestingBalance   decimal.Decimal `json:"investing_balance"`
	PortfolioValue     decimal.Decimal `json:"portfolio_value"`
	PortfolioPrincipal decimal.Decimal `json:"portfolio_principal"`
	LotValue           decimal.Decimal `json:"lot_value"`
	NetWorth           decimal.Decimal `json:"net_worth"`
	PositionsOpened    int64           `json:"positions_opened"`
	PositionsClosed    int64           `json:"positions_closed"`
	RealizedGain       decimal.Decimal `json:"realized_gain"`
	Sales              []SaleRecord    `json:"sales"`
	EndedAt            time.Time       `json:"ended_at"`
}
