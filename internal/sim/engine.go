// Package sim wires the simulation subsystems into one engine: session
// lifecycle, the per-tick dispatch order, end-of-game settlement, and
// persistence. The engine is the only concurrency boundary in the core — a
// single mutex serializes clock advancement against API calls, and inside
// the lock everything is single-threaded and deterministic.
package sim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/clock"
	"github.com/fortunevalley/sim-engine/internal/config"
	"github.com/fortunevalley/sim-engine/internal/event"
	"github.com/fortunevalley/sim-engine/internal/ledger"
	"github.com/fortunevalley/sim-engine/internal/market"
	"github.com/fortunevalley/sim-engine/internal/model"
	"github.com/fortunevalley/sim-engine/internal/portfolio"
	"github.com/fortunevalley/sim-engine/internal/rival"
	"github.com/fortunevalley/sim-engine/internal/store"
	"github.com/fortunevalley/sim-engine/internal/territory"
)

var (
	// ErrNoSession is returned by operations that need a started session.
	ErrNoSession = errors.New("sim: no active session")

	// ErrSessionOver is returned once a winner has been decided.
	ErrSessionOver = errors.New("sim: session already ended")

	// ErrLotUnavailable is returned when a lot purchase fails: unknown lot,
	// already owned, or checking cannot cover the cost.
	ErrLotUnavailable = errors.New("sim: lot unavailable")

	// ErrTransferFailed is returned when a ledger transfer is rejected.
	ErrTransferFailed = errors.New("sim: transfer failed")
)

// Engine runs one game session at a time. All exported methods are safe for
// concurrent use.
type Engine struct {
	mu    sync.Mutex
	log   *slog.Logger
	cfg   *config.Session
	store store.Store
	seed  int64

	bus       *event.Bus
	clock     *clock.Clock
	ledger    *ledger.Ledger
	catalog   *market.Catalog
	portfolio *portfolio.Portfolio
	territory *territory.Territory
	rival     *rival.Competitor

	sessionID string
	summary   *model.GameSummary

	// external is notified of every bus event after the internal handlers;
	// survives session restarts, unlike bus subscribers.
	external []event.Handler
}

// New creates an engine over the given catalog and store. seed drives every
// random draw in the session; the same seed and inputs replay identically.
// Call StartSession before advancing.
func New(cfg *config.Session, st store.Store, seed int64, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	e := &Engine{
		log:   log,
		cfg:   cfg,
		store: st,
		seed:  seed,
		bus:   event.NewBus(),
		clock: clock.New(cfg.SecondsPerTick),
	}
	e.clock.OnTick(e.step)
	return e
}

// OnEvent registers an observer for every domain event (the WebSocket hub,
// metrics). Observers survive session restarts and run after all internal
// handlers. Must be called before StartSession.
func (e *Engine) OnEvent(h event.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.external = append(e.external, h)
}

// StartSession begins a fresh session, discarding any in-progress one. All
// subsystem state is rebuilt from the catalog: balances, prices, ownership,
// the rival's pool, and the event subscriptions.
func (e *Engine) StartSession() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessionID = uuid.NewString()
	e.summary = nil

	e.bus.Reset()
	for _, h := range e.external {
		e.bus.SubscribeAll(h)
	}
	e.bus.SubscribeAll(e.audit)

	rng := rand.New(rand.NewSource(e.seed))
	e.ledger = ledger.New(e.bus, e.clock.Tick)
	e.ledger.Reset(e.cfg.StartingChecking, e.cfg.StartingInvesting)
	e.catalog = market.NewCatalog(e.cfg.Instruments, e.cfg.TicksPerYear, rng)
	e.catalog.BackfillHistory(e.cfg.HistoryDays)
	e.portfolio = portfolio.New(e.bus, e.ledger, e.catalog, e.clock.Tick)
	e.territory = territory.New(e.bus, e.ledger, e.cfg.Lots)
	e.territory.OnWinner(e.finish)
	e.rival = rival.New(e.bus, e.territory, e.cfg.Rival, e.log)

	e.clock.Reset()
	e.clock.SetSpeed(1)
	e.clock.Start()

	e.bus.Publish(event.Event{Type: event.GameStarted, Tick: 0})
	for _, spec := range e.cfg.Instruments {
		e.persistPrices(e.catalog.History(spec.ID))
	}

	e.log.Info("session started", "session_id", e.sessionID, "seed", e.seed,
		"instruments", len(e.cfg.Instruments), "lots", len(e.cfg.Lots))
	return e.sessionID
}

// Advance feeds elapsed wall-clock time to the session clock. Each whole
// in-game day that elapses runs one full tick pass before the next begins.
func (e *Engine) Advance(delta time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return
	}
	e.clock.Advance(delta)
}

// step runs one tick in the fixed dispatch order. Called by the clock with
// the engine mutex already held.
func (e *Engine) step(tick int64) {
	e.bus.Publish(event.Event{Type: event.Tick, Tick: tick, Data: event.TickData{Tick: tick}})

	e.catalog.Tick(tick)
	e.portfolio.Tick()
	e.payIncome(tick)
	e.rival.Tick(tick)

	e.persistPrices(e.catalog.LatestPoints())
}

// payIncome deposits the restaurant's take plus every player-owned lot's
// rent into checking.
func (e *Engine) payIncome(tick int64) {
	if e.cfg.RestaurantIncome.IsPositive() {
		e.ledger.Deposit(model.AccountChecking, e.cfg.RestaurantIncome, "restaurant")
		e.bus.Publish(event.Event{
			Type: event.IncomeGenerated,
			Tick: tick,
			Data: event.IncomeData{Amount: e.cfg.RestaurantIncome, Source: "restaurant"},
		})
	}
	for _, lot := range e.territory.OwnedSpecs(model.OwnerPlayer) {
		if !lot.IncomePerTick.IsPositive() {
			continue
		}
		e.ledger.Deposit(model.AccountChecking, lot.IncomePerTick, "income "+lot.ID)
		e.bus.Publish(event.Event{
			Type: event.IncomeGenerated,
			Tick: tick,
			Data: event.IncomeData{Amount: lot.IncomePerTick, Source: lot.DisplayName},
		})
	}
}

// finish settles the session: stop the clock, assemble the summary from
// read-only component queries, announce it, persist it. Runs inside the
// purchase that decided the game, mutex already held.
func (e *Engine) finish(winner model.Winner) {
	e.clock.Stop()
	tick := e.clock.Tick()

	lotValue := e.territory.OwnedValue(model.OwnerPlayer)
	summary := &model.GameSummary{
		SessionID:          e.sessionID,
		Winner:             winner,
		PlayerWon:          winner == model.WinnerPlayer,
		DaysPlayed:         tick,
		PlayerLots:         e.territory.OwnedCount(model.OwnerPlayer),
		RivalLots:          e.territory.OwnedCount(model.OwnerRival),
		CheckingBalance:    e.ledger.Balance(model.AccountChecking),
		InvestingBalance:   e.ledger.Balance(model.AccountInvesting),
		PortfolioValue:     e.portfolio.TotalValue(),
		PortfolioPrincipal: e.portfolio.TotalPrincipal(),
		LotValue:           lotValue,
		PositionsOpened:    e.portfolio.OpenedCount(),
		PositionsClosed:    e.portfolio.ClosedCount(),
		RealizedGain:       e.portfolio.RealizedGain(),
		Sales:              e.portfolio.Sales(),
		EndedAt:            time.Now().UTC(),
	}
	summary.NetWorth = e.ledger.Total().Add(summary.PortfolioValue).Add(lotValue)
	e.summary = summary

	e.bus.Publish(event.Event{Type: event.GameEnded, Tick: tick, Data: event.EndData{Winner: string(winner)}})
	e.bus.Publish(event.Event{Type: event.GameSummary, Tick: tick, Data: *summary})

	if err := e.store.InsertSummary(context.Background(), summary); err != nil {
		e.log.Error("persist summary failed", "session_id", e.sessionID, "error", err)
	}
	e.log.Info("session ended", "session_id", e.sessionID, "winner", winner, "days", tick)
}

// --- Player operations ---

// SetSpeed changes the time multiplier. Negative values clamp to zero.
func (e *Engine) SetSpeed(multiplier float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return ErrNoSession
	}
	e.clock.SetSpeed(multiplier)
	e.bus.Publish(event.Event{
		Type: event.SpeedChanged,
		Tick: e.clock.Tick(),
		Data: event.SpeedData{Multiplier: e.clock.Speed()},
	})
	return nil
}

// Pause stops the clock without ending the session.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return ErrNoSession
	}
	e.clock.Stop()
	return nil
}

// Resume restarts a paused clock. Rejected once the session has ended.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return ErrNoSession
	}
	if e.summary != nil {
		return ErrSessionOver
	}
	e.clock.Start()
	return nil
}

// Buy purchases shares of an instrument from the investing account.
func (e *Engine) Buy(instrumentID string, shares int64) (*model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.playable(); err != nil {
		return nil, err
	}
	return e.portfolio.Buy(instrumentID, shares)
}

// Sell disposes shares at the current price, proceeds to checking.
func (e *Engine) Sell(instrumentID string, shares int64) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.playable(); err != nil {
		return decimal.Zero, err
	}
	return e.portfolio.Sell(instrumentID, shares)
}

// SellAll liquidates the full position in one instrument.
func (e *Engine) SellAll(instrumentID string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.playable(); err != nil {
		return decimal.Zero, err
	}
	return e.portfolio.SellAll(instrumentID)
}

// Transfer moves money between the player's two accounts.
func (e *Engine) Transfer(amount decimal.Decimal, from, to model.Account) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.playable(); err != nil {
		return err
	}
	if !e.ledger.Transfer(amount, from, to) {
		return ErrTransferFailed
	}
	return nil
}

// PurchaseLot buys a lot for the player from the checking account. The win
// condition is evaluated inside; the session may be over when this returns.
func (e *Engine) PurchaseLot(lotID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.playable(); err != nil {
		return err
	}
	if !e.territory.Purchase(lotID, model.OwnerPlayer, e.clock.Tick()) {
		return ErrLotUnavailable
	}
	return nil
}

func (e *Engine) playable() error {
	if e.sessionID == "" {
		return ErrNoSession
	}
	if e.summary != nil {
		return ErrSessionOver
	}
	return nil
}

// --- Read-only views ---

// State is a point-in-time snapshot of the session for the UI.
type State struct {
	SessionID  string          `json:"session_id"`
	Tick       int64           `json:"tick"`
	Speed      float64         `json:"speed"`
	Running    bool            `json:"running"`
	Winner     model.Winner    `json:"winner,omitempty"`
	Checking   decimal.Decimal `json:"checking"`
	Investing  decimal.Decimal `json:"investing"`
	NetWorth   decimal.Decimal `json:"net_worth"`
	Progress   float64         `json:"progress"`
	PlayerLots int             `json:"player_lots"`
	RivalLots  int             `json:"rival_lots"`
	RivalMoney decimal.Decimal `json:"rival_money"`
	Target     string          `json:"rival_target,omitempty"`
}

// Snapshot returns the current session state.
func (e *Engine) Snapshot() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return State{}, ErrNoSession
	}
	target, _ := e.rival.Target()
	return State{
		SessionID:  e.sessionID,
		Tick:       e.clock.Tick(),
		Speed:      e.clock.Speed(),
		Running:    e.clock.Running(),
		Winner:     e.territory.Winner(),
		Checking:   e.ledger.Balance(model.AccountChecking),
		Investing:  e.ledger.Balance(model.AccountInvesting),
		NetWorth:   e.ledger.Total().Add(e.portfolio.TotalValue()).Add(e.territory.OwnedValue(model.OwnerPlayer)),
		Progress:   e.territory.Progress(),
		PlayerLots: e.territory.OwnedCount(model.OwnerPlayer),
		RivalLots:  e.territory.OwnedCount(model.OwnerRival),
		RivalMoney: e.rival.Money(),
		Target:     target,
	}, nil
}

// Quotes returns every instrument's current price.
func (e *Engine) Quotes() ([]model.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return nil, ErrNoSession
	}
	return e.catalog.Quotes(), nil
}

// History returns one instrument's price series, backfill included.
func (e *Engine) History(instrumentID string) ([]model.PricePoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return nil, ErrNoSession
	}
	points := e.catalog.History(instrumentID)
	if points == nil {
		return nil, portfolio.ErrUnknownInstrument
	}
	return points, nil
}

// Positions returns the player's open positions.
func (e *Engine) Positions() ([]model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return nil, ErrNoSession
	}
	return e.portfolio.Positions(), nil
}

// Lots returns every lot's spec and ownership state.
func (e *Engine) Lots() ([]territory.LotView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return nil, ErrNoSession
	}
	return e.territory.Lots(), nil
}

// Summary returns the end-of-session report, nil while the game is running.
func (e *Engine) Summary() (*model.GameSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionID == "" {
		return nil, ErrNoSession
	}
	if e.summary == nil {
		return nil, nil
	}
	copied := *e.summary
	return &copied, nil
}

// SessionID returns the active session's ID, empty before the first start.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// --- Persistence hooks (failures logged, never surfaced to the sim) ---

func (e *Engine) persistPrices(points []model.PricePoint) {
	if len(points) == 0 {
		return
	}
	if err := e.store.InsertPricePoints(context.Background(), e.sessionID, points); err != nil {
		e.log.Error("persist prices failed", "session_id", e.sessionID, "error", err)
	}
}

// audit records money and ownership movements in the immutable trail.
func (e *Engine) audit(evt event.Event) {
	entry := model.AuditEntry{
		ID:        uuid.NewString(),
		SessionID: e.sessionID,
		Tick:      evt.Tick,
		Kind:      string(evt.Type),
		Timestamp: time.Now().UTC(),
	}
	switch data := evt.Data.(type) {
	case event.BalanceData:
		entry.Account = data.Account
		entry.Delta = data.Delta
		entry.Label = data.Reason
	case event.TransferData:
		entry.Delta = data.Amount
		entry.Label = data.From + " to " + data.To
	case event.LotData:
		entry.Delta = data.Cost.Neg()
		entry.Label = data.LotID + " by " + data.Owner
	default:
		return
	}
	if err := e.store.InsertAuditEntry(context.Background(), &entry); err != nil {
		e.log.Error("persist audit failed", "session_id", e.sessionID, "error", err)
	}
}
