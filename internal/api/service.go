// Package api provides the HTTP surface over the simulation engine: session
// control, trading, lot purchases, and read-only game state for the UI.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/model"
	"github.com/fortunevalley/sim-engine/internal/portfolio"
	"github.com/fortunevalley/sim-engine/internal/sim"
	"github.com/fortunevalley/sim-engine/internal/store"
)

// Service handles the game API. All simulation access goes through the
// engine, which serializes it against the clock.
type Service struct {
	engine *sim.Engine
	store  store.Store
}

// NewService creates a new API service.
func NewService(engine *sim.Engine, st store.Store) *Service {
	return &Service{engine: engine, store: st}
}

// Routes mounts every API handler on a router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/game/start", s.StartGame)
	r.Post("/game/speed", s.SetSpeed)
	r.Post("/game/stop", s.StopGame)
	r.Post("/game/resume", s.ResumeGame)

	r.Post("/portfolio/buy", s.Buy)
	r.Post("/portfolio/sell", s.Sell)
	r.Post("/lots/{lotID}/purchase", s.PurchaseLot)
	r.Post("/ledger/transfer", s.Transfer)

	r.Get("/state", s.GetState)
	r.Get("/instruments", s.ListInstruments)
	r.Get("/instruments/{instrumentID}/history", s.GetHistory)
	r.Get("/lots", s.ListLots)
	r.Get("/portfolio", s.GetPortfolio)
	r.Get("/ledger/audit", s.GetAudit)
	r.Get("/summary", s.GetSummary)
}

// --- Request types ---

// SpeedRequest is the JSON body for POST /game/speed.
type SpeedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

// TradeRequest is the JSON body for POST /portfolio/buy and /portfolio/sell.
// A sell with Shares 0 liquidates the whole position.
type TradeRequest struct {
	InstrumentID string `json:"instrument_id"`
	Shares       int64  `json:"shares"`
}

// TransferRequest is the JSON body for POST /ledger/transfer.
type TransferRequest struct {
	Amount decimal.Decimal `json:"amount"`
	From   model.Account   `json:"from"`
	To     model.Account   `json:"to"`
}

// --- Session control ---

// StartGame handles POST /api/v1/game/start. Always starts a fresh session,
// discarding any in-progress one.
func (s *Service) StartGame(w http.ResponseWriter, r *http.Request) {
	id := s.engine.StartSession()
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// SetSpeed handles POST /api/v1/game/speed.
func (s *Service) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.SetSpeed(req.Multiplier); err != nil {
		writeEngineError(w, err)
		return
	}
	slog.Info("speed changed", "multiplier", req.Multiplier)
	w.WriteHeader(http.StatusNoContent)
}

// StopGame handles POST /api/v1/game/stop. Pauses the clock; the session
// survives and can be resumed.
func (s *Service) StopGame(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResumeGame handles POST /api/v1/game/resume.
func (s *Service) ResumeGame(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Resume(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Trading ---

// Buy handles POST /api/v1/portfolio/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		writeError(w, "instrument_id is required", http.StatusBadRequest)
		return
	}

	pos, err := s.engine.Buy(req.InstrumentID, req.Shares)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	slog.Info("shares bought",
		"instrument", req.InstrumentID,
		"shares", req.Shares,
		"avg_cost", pos.AvgCost.String(),
	)
	writeJSON(w, http.StatusOK, pos)
}

// Sell handles POST /api/v1/portfolio/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.InstrumentID == "" {
		writeError(w, "instrument_id is required", http.StatusBadRequest)
		return
	}

	var proceeds decimal.Decimal
	var err error
	if req.Shares == 0 {
		proceeds, err = s.engine.SellAll(req.InstrumentID)
	} else {
		proceeds, err = s.engine.Sell(req.InstrumentID, req.Shares)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	slog.Info("shares sold",
		"instrument", req.InstrumentID,
		"shares", req.Shares,
		"proceeds", proceeds.String(),
	)
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"proceeds": proceeds})
}

// PurchaseLot handles POST /api/v1/lots/{lotID}/purchase.
func (s *Service) PurchaseLot(w http.ResponseWriter, r *http.Request) {
	lotID := chi.URLParam(r, "lotID")
	if err := s.engine.PurchaseLot(lotID); err != nil {
		writeEngineError(w, err)
		return
	}

	slog.Info("lot purchased", "lot", lotID)
	state, err := s.engine.Snapshot()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Transfer handles POST /api/v1/ledger/transfer.
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.Transfer(req.Amount, req.From, req.To); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Read-only queries ---

// GetState handles GET /api/v1/state.
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.Snapshot()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// ListInstruments handles GET /api/v1/instruments.
func (s *Service) ListInstruments(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.engine.Quotes()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// GetHistory handles GET /api/v1/instruments/{instrumentID}/history.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	instrumentID := chi.URLParam(r, "instrumentID")
	points, err := s.engine.History(instrumentID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// ListLots handles GET /api/v1/lots.
func (s *Service) ListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := s.engine.Lots()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lots)
}

// GetPortfolio handles GET /api/v1/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	positions, err := s.engine.Positions()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// GetAudit handles GET /api/v1/ledger/audit, returning the active session's
// audit trail from the store.
func (s *Service) GetAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := s.engine.SessionID()
	if sessionID == "" {
		writeError(w, "no active session", http.StatusConflict)
		return
	}
	entries, err := s.store.GetAuditEntries(r.Context(), sessionID)
	if err != nil {
		writeError(w, "failed to load audit trail", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetSummary handles GET /api/v1/summary. 404 until the session has ended.
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Summary()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if summary == nil {
		writeError(w, "session still running", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Helpers ---

// writeEngineError maps engine and portfolio errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrNoSession), errors.Is(err, sim.ErrSessionOver):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrInsufficientFunds),
		errors.Is(err, sim.ErrLotUnavailable),
		errors.Is(err, sim.ErrTransferFailed):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrUnknownInstrument),
		errors.Is(err, portfolio.ErrUnknownPosition):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, portfolio.ErrInvalidShares):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
