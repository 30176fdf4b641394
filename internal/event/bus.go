// Package event provides the in-process publish/subscribe surface the
// simulation components communicate over. Dispatch is synchronous and
// in-order: Publish invokes every matching handler before returning, and a
// handler that publishes a new event runs that event's handlers nested,
// inside the outer dispatch. The bus is owned by a single simulation engine
// and is not safe for concurrent use on its own; the engine serializes access.
package event

import "github.com/shopspring/decimal"

// Type identifies an event topic.
type Type string

const (
	Tick         Type = "TICK"
	SpeedChanged Type = "SPEED_CHANGED"
	GameStarted  Type = "GAME_STARTED"
	GameEnded    Type = "GAME_ENDED"
	GameSummary  Type = "GAME_SUMMARY"

	BalanceChanged  Type = "BALANCE_CHANGED"
	Transferred     Type = "TRANSFERRED"
	IncomeGenerated Type = "INCOME_GENERATED"

	PositionOpened Type = "POSITION_OPENED"
	PositionClosed Type = "POSITION_CLOSED"

	LotPurchased       Type = "LOT_PURCHASED"
	RivalTargeting     Type = "RIVAL_TARGETING"
	RivalTargetChanged Type = "RIVAL_TARGET_CHANGED"
	RivalPurchased     Type = "RIVAL_PURCHASED"
)

// Event is one published occurrence. Data holds a typed payload struct
// (TickData, BalanceData, ...) depending on Type.
type Event struct {
	Type Type  `json:"type"`
	Tick int64 `json:"tick"`
	Data any   `json:"data,omitempty"`
}

// TickData accompanies Tick events.
type TickData struct {
	Tick int64 `json:"tick"`
}

// SpeedData accompanies SpeedChanged events.
type SpeedData struct {
	Multiplier float64 `json:"multiplier"`
}

// BalanceData accompanies BalanceChanged events. Delta is signed.
type BalanceData struct {
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
	Delta   decimal.Decimal `json:"delta"`
	Reason  string          `json:"reason,omitempty"`
}

// TransferData accompanies Transferred events.
type TransferData struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
}

// IncomeData accompanies IncomeGenerated events. Source is a label the UI
// layer uses for feedback ("restaurant", a lot name, ...).
type IncomeData struct {
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source"`
}

// PositionData accompanies PositionOpened and PositionClosed events.
// Payout is set only on close.
type PositionData struct {
	PositionID   string          `json:"position_id"`
	InstrumentID string          `json:"instrument_id"`
	Shares       int64           `json:"shares"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	Payout       decimal.Decimal `json:"payout,omitempty"`
}

// LotData accompanies LotPurchased and RivalPurchased events.
type LotData struct {
	LotID string          `json:"lot_id"`
	Owner string          `json:"owner"`
	Cost  decimal.Decimal `json:"cost"`
}

// TargetData accompanies RivalTargeting and RivalTargetChanged events.
// LotID is empty when the rival has no viable target left.
type TargetData struct {
	LotID     string `json:"lot_id"`
	TicksLeft int64  `json:"ticks_left"`
}

// EndData accompanies GameEnded events.
type EndData struct {
	Winner string `json:"winner"`
}

// Handler receives published events.
type Handler func(Event)

// Bus is an instance-owned observer registry. The zero value is not usable;
// call NewBus.
type Bus struct {
	byType   map[Type][]Handler
	catchAll []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{byType: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type. Handlers run in
// subscription order.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.byType[t] = append(b.byType[t], h)
}

// SubscribeAll registers a handler for every event type. Catch-all handlers
// run after type-specific ones.
func (b *Bus) SubscribeAll(h Handler) {
	b.catchAll = append(b.catchAll, h)
}

// Publish dispatches the event synchronously to all matching handlers.
func (b *Bus) Publish(e Event) {
	for _, h := range b.byType[e.Type] {
		h(e)
	}
	for _, h := range b.catchAll {
		h(e)
	}
}

// Reset drops every subscriber. Called once per session start so stale
// handlers from a previous game never fire again.
func (b *Bus) Reset() {
	b.byType = make(map[Type][]Handler)
	b.catchAll = nil
}
