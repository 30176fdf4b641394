package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/api"
	"github.com/fortunevalley/sim-engine/internal/config"
	"github.com/fortunevalley/sim-engine/internal/model"
	"github.com/fortunevalley/sim-engine/internal/rival"
	"github.com/fortunevalley/sim-engine/internal/sim"
	"github.com/fortunevalley/sim-engine/internal/store"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testCatalog() *config.Session {
	return &config.Session{
		SecondsPerTick:    1,
		TicksPerYear:      360,
		HistoryDays:       5,
		StartingChecking:  d("1000"),
		StartingInvesting: d("500"),
		RestaurantIncome:  d("25"),
		Instruments: []model.InstrumentSpec{
			{
				ID:           "flat",
				DisplayName:  "Flat Note",
				RiskTier:     model.RiskLow,
				FixedReturn:  true,
				InitialPrice: d("10"),
			},
		},
		Lots: []model.LotSpec{
			{ID: "corner", DisplayName: "Corner Stand", BaseCost: d("400"), IncomePerTick: d("4")},
			{ID: "plaza", DisplayName: "Plaza Shop", BaseCost: d("900"), IncomePerTick: d("10")},
		},
		Rival: rival.Config{
			StartingMoney: d("100"),
			IncomePerTick: d("1"),
			BaseInterval:  1000,
			MinInterval:   1000,
			WarningLead:   5,
		},
	}
}

// newTestEnv creates an engine over the memory store with the API mounted on
// a chi router, session already started.
func newTestEnv(t *testing.T) (*sim.Engine, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	engine := sim.New(testCatalog(), ms, 7, nil)
	svc := api.NewService(engine, ms)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	engine.StartSession()
	return engine, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStartGame(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/game/start", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["session_id"] == "" {
		t.Error("expected non-empty session_id")
	}
}

func TestGetState(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var state sim.State
	json.Unmarshal(w.Body.Bytes(), &state)
	if !state.Checking.Equal(d("1000")) {
		t.Errorf("checking = %s, want 1000", state.Checking)
	}
	if state.Tick != 0 || !state.Running {
		t.Errorf("state = tick %d running %v", state.Tick, state.Running)
	}
}

func TestBuyAndSell(t *testing.T) {
	engine, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/portfolio/buy",
		api.TradeRequest{InstrumentID: "flat", Shares: 10})
	if w.Code != http.StatusOK {
		t.Fatalf("buy: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var pos model.Position
	json.Unmarshal(w.Body.Bytes(), &pos)
	if pos.Shares != 10 || !pos.AvgCost.Equal(d("10")) {
		t.Errorf("position = %d @ %s, want 10 @ 10", pos.Shares, pos.AvgCost)
	}

	engine.Advance(2 * time.Second)

	w = doJSON(t, router, "POST", "/api/v1/portfolio/sell",
		api.TradeRequest{InstrumentID: "flat", Shares: 4})
	if w.Code != http.StatusOK {
		t.Fatalf("sell: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]decimal.Decimal
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp["proceeds"].Equal(d("40")) {
		t.Errorf("proceeds = %s, want 40", resp["proceeds"])
	}

	// Shares 0 sells the remainder.
	w = doJSON(t, router, "POST", "/api/v1/portfolio/sell",
		api.TradeRequest{InstrumentID: "flat"})
	if w.Code != http.StatusOK {
		t.Fatalf("sell all: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp["proceeds"].Equal(d("60")) {
		t.Errorf("remaining proceeds = %s, want 60", resp["proceeds"])
	}

	w = doJSON(t, router, "GET", "/api/v1/portfolio", nil)
	var positions []model.Position
	json.Unmarshal(w.Body.Bytes(), &positions)
	if len(positions) != 0 {
		t.Errorf("positions after full sell = %d, want 0", len(positions))
	}
}

func TestBuyRejections(t *testing.T) {
	_, router := newTestEnv(t)

	cases := []struct {
		name string
		req  api.TradeRequest
		code int
	}{
		{"unknown instrument", api.TradeRequest{InstrumentID: "nope", Shares: 1}, http.StatusNotFound},
		{"zero shares", api.TradeRequest{InstrumentID: "flat", Shares: 0}, http.StatusBadRequest},
		{"negative shares", api.TradeRequest{InstrumentID: "flat", Shares: -5}, http.StatusBadRequest},
		{"insufficient funds", api.TradeRequest{InstrumentID: "flat", Shares: 1000}, http.StatusConflict},
		{"missing instrument", api.TradeRequest{Shares: 1}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/portfolio/buy", tc.req)
			if w.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestPurchaseLot(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/lots/corner/purchase", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var state sim.State
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.PlayerLots != 1 {
		t.Errorf("player lots = %d, want 1", state.PlayerLots)
	}
	if !state.Checking.Equal(d("600")) {
		t.Errorf("checking = %s, want 600", state.Checking)
	}

	// Second attempt on the same lot fails.
	w = doJSON(t, router, "POST", "/api/v1/lots/corner/purchase", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("repurchase: expected 409, got %d", w.Code)
	}
	// Unknown lot.
	w = doJSON(t, router, "POST", "/api/v1/lots/castle/purchase", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("unknown lot: expected 409, got %d", w.Code)
	}
}

func TestTransfer(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/ledger/transfer",
		api.TransferRequest{Amount: d("300"), From: model.AccountChecking, To: model.AccountInvesting})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/ledger/transfer",
		api.TransferRequest{Amount: d("99999"), From: model.AccountChecking, To: model.AccountInvesting})
	if w.Code != http.StatusConflict {
		t.Errorf("overdraft: expected 409, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/state", nil)
	var state sim.State
	json.Unmarshal(w.Body.Bytes(), &state)
	if !state.Checking.Equal(d("700")) || !state.Investing.Equal(d("800")) {
		t.Errorf("balances = %s / %s, want 700 / 800", state.Checking, state.Investing)
	}
}

func TestSpeedAndStop(t *testing.T) {
	engine, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/game/speed", api.SpeedRequest{Multiplier: 4})
	if w.Code != http.StatusNoContent {
		t.Fatalf("speed: expected 204, got %d", w.Code)
	}
	engine.Advance(time.Second)
	if s, _ := engine.Snapshot(); s.Tick != 4 {
		t.Errorf("tick = %d at speed 4, want 4", s.Tick)
	}

	w = doJSON(t, router, "POST", "/api/v1/game/stop", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("stop: expected 204, got %d", w.Code)
	}
	engine.Advance(5 * time.Second)
	if s, _ := engine.Snapshot(); s.Tick != 4 {
		t.Error("clock advanced while stopped")
	}

	w = doJSON(t, router, "POST", "/api/v1/game/resume", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("resume: expected 204, got %d", w.Code)
	}
}

func TestInstrumentsAndHistory(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/instruments", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var quotes []model.Quote
	json.Unmarshal(w.Body.Bytes(), &quotes)
	if len(quotes) != 1 || quotes[0].InstrumentID != "flat" {
		t.Fatalf("quotes = %+v", quotes)
	}

	w = doJSON(t, router, "GET", "/api/v1/instruments/flat/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", w.Code)
	}
	var points []model.PricePoint
	json.Unmarshal(w.Body.Bytes(), &points)
	if len(points) != 5 {
		t.Errorf("backfill points = %d, want 5", len(points))
	}

	w = doJSON(t, router, "GET", "/api/v1/instruments/nope/history", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown instrument history: expected 404, got %d", w.Code)
	}
}

func TestLotsListing(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/lots", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var lots []struct {
		Spec  model.LotSpec  `json:"spec"`
		State model.LotState `json:"state"`
	}
	json.Unmarshal(w.Body.Bytes(), &lots)
	if len(lots) != 2 {
		t.Fatalf("lots = %d, want 2", len(lots))
	}
	for _, lot := range lots {
		if lot.State.Owner != model.OwnerNone {
			t.Errorf("lot %s owner = %q at start", lot.Spec.ID, lot.State.Owner)
		}
	}
}

func TestSummaryLifecycle(t *testing.T) {
	_, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/summary", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("running session summary: expected 404, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/lots/corner/purchase", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("corner: %d %s", w.Code, w.Body.String())
	}
	// 600 left; plaza costs 900.
	w = doJSON(t, router, "POST", "/api/v1/lots/plaza/purchase", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("unaffordable plaza: expected 409, got %d", w.Code)
	}
}

func TestSummaryAfterWin(t *testing.T) {
	engine, router := newTestEnv(t)

	doJSON(t, router, "POST", "/api/v1/lots/corner/purchase", nil)
	// 600 left, earn 11 days × (25 + 4) = 319 → 919.
	engine.Advance(11 * time.Second)
	w := doJSON(t, router, "POST", "/api/v1/lots/plaza/purchase", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("plaza: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", w.Code)
	}
	var sum model.GameSummary
	json.Unmarshal(w.Body.Bytes(), &sum)
	if !sum.PlayerWon || sum.Winner != model.WinnerPlayer {
		t.Errorf("summary = winner %q playerWon %v", sum.Winner, sum.PlayerWon)
	}
	if sum.PlayerLots != 2 {
		t.Errorf("player lots = %d, want 2", sum.PlayerLots)
	}

	// A decided game rejects further play.
	w = doJSON(t, router, "POST", "/api/v1/portfolio/buy",
		api.TradeRequest{InstrumentID: "flat", Shares: 1})
	if w.Code != http.StatusConflict {
		t.Errorf("buy after end: expected 409, got %d", w.Code)
	}
}

func TestAuditTrail(t *testing.T) {
	engine, router := newTestEnv(t)
	engine.Advance(2 * time.Second)

	w := doJSON(t, router, "GET", "/api/v1/ledger/audit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var entries []model.AuditEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) == 0 {
		t.Fatal("expected audit entries after income ticks")
	}
}

func TestOperationsWithoutSession(t *testing.T) {
	ms := store.NewMemoryStore()
	engine := sim.New(testCatalog(), ms, 7, nil)
	svc := api.NewService(engine, ms)
	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)

	w := doJSON(t, r, "GET", "/api/v1/state", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("state without session: expected 409, got %d", w.Code)
	}
	w = doJSON(t, r, "POST", "/api/v1/portfolio/buy",
		api.TradeRequest{InstrumentID: "flat", Shares: 1})
	if w.Code != http.StatusConflict {
		t.Errorf("buy without session: expected 409, got %d", w.Code)
	}
}
