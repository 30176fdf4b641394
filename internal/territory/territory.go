// Package territory owns the purchasable lots, their ownership state, and
// the win-condition evaluation. Player purchases are gated by the shared
// ledger; rival purchases are funded from the competitor's own money pool
// and bypass the ledger entirely. That asymmetry is deliberate.
package territory

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/event"
	"github.com/fortunevalley/sim-engine/internal/ledger"
	"github.com/fortunevalley/sim-engine/internal/model"
)

// Territory tracks lot ownership for one session. Once a lot is owned it
// never reverts inside the session; Reset clears everything for a restart.
type Territory struct {
	bus    *event.Bus
	ledger *ledger.Ledger

	specs []model.LotSpec
	byID  map[string]model.LotSpec
	state map[string]*model.LotState

	winner   model.Winner
	onWinner func(model.Winner)
}

// New creates a territory over the given lot specs, all unowned.
func New(bus *event.Bus, led *ledger.Ledger, specs []model.LotSpec) *Territory {
	t := &Territory{
		bus:    bus,
		ledger: led,
		specs:  specs,
		byID:   make(map[string]model.LotSpec, len(specs)),
	}
	for _, s := range specs {
		t.byID[s.ID] = s
	}
	t.Reset()
	return t
}

// Reset clears all ownership and the recorded winner.
func (t *Territory) Reset() {
	t.state = make(map[string]*model.LotState, len(t.specs))
	for _, s := range t.specs {
		t.state[s.ID] = &model.LotState{LotID: s.ID, Owner: model.OwnerNone}
	}
	t.winner = model.WinnerNone
}

// OnWinner registers the callback fired when a purchase settles the game.
func (t *Territory) OnWinner(fn func(model.Winner)) { t.onWinner = fn }

// Purchase attempts to buy a lot for the given owner at the given tick.
// Fails — with no state change — if the lot is unknown, already owned, or
// (player only) the checking account cannot cover the cost. On success it
// records ownership, publishes LotPurchased, and evaluates the win condition.
func (t *Territory) Purchase(lotID string, buyer model.Owner, tick int64) bool {
	spec, known := t.byID[lotID]
	if !known || buyer == model.OwnerNone {
		return false
	}
	st := t.state[lotID]
	if st.Owner != model.OwnerNone {
		return false
	}
	if buyer == model.OwnerPlayer {
		if !t.ledger.Withdraw(model.AccountChecking, spec.BaseCost, "lot "+lotID) {
			return false
		}
	}

	st.Owner = buyer
	st.PurchaseTick = tick

	if t.bus != nil {
		t.bus.Publish(event.Event{
			Type: event.LotPurchased,
			Tick: tick,
			Data: event.LotData{LotID: lotID, Owner: string(buyer), Cost: spec.BaseCost},
		})
	}

	if winner := t.CheckWinCondition(); winner != model.WinnerNone && t.winner == model.WinnerNone {
		t.winner = winner
		if t.onWinner != nil {
			t.onWinner(winner)
		}
	}
	return true
}

// CheckWinCondition is a pure function of current ownership:
//  1. Player owns all lots            → player wins.
//  2. Rival owns all lots             → rival wins.
//  3. None left, rival holds more     → rival wins.
//  4. None left, player holds more    → player wins.
//  5. Otherwise the game continues. An exact tie with no lots left falls
//     through here and the session simply keeps running.
func (t *Territory) CheckWinCondition() model.Winner {
	player, rival := t.OwnedCount(model.OwnerPlayer), t.OwnedCount(model.OwnerRival)
	total := len(t.specs)

	switch {
	case total > 0 && player == total:
		return model.WinnerPlayer
	case total > 0 && rival == total:
		return model.WinnerRival
	case player+rival == total && rival > player:
		return model.WinnerRival
	case player+rival == total && player > rival:
		return model.WinnerPlayer
	}
	return model.WinnerNone
}

// Winner returns the settled winner, if any.
func (t *Territory) Winner() model.Winner { return t.winner }

// Progress is the fraction of lots owned by anyone, in [0, 1].
func (t *Territory) Progress() float64 {
	if len(t.specs) == 0 {
		return 0
	}
	owned := t.OwnedCount(model.OwnerPlayer) + t.OwnedCount(model.OwnerRival)
	return float64(owned) / float64(len(t.specs))
}

// OwnedCount counts lots held by one owner.
func (t *Territory) OwnedCount(owner model.Owner) int {
	n := 0
	for _, st := range t.state {
		if st.Owner == owner {
			n++
		}
	}
	return n
}

// AvailableCount counts unowned lots.
func (t *Territory) AvailableCount() int {
	return t.OwnedCount(model.OwnerNone)
}

// Available returns the unowned lot specs sorted by cost ascending, then ID
// for a stable order.
func (t *Territory) Available() []model.LotSpec {
	var out []model.LotSpec
	for _, s := range t.specs {
		if t.state[s.ID].Owner == model.OwnerNone {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BaseCost.Equal(out[j].BaseCost) {
			return out[i].BaseCost.LessThan(out[j].BaseCost)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Lot returns the spec and runtime state for one lot.
func (t *Territory) Lot(lotID string) (model.LotSpec, model.LotState, bool) {
	spec, ok := t.byID[lotID]
	if !ok {
		return model.LotSpec{}, model.LotState{}, false
	}
	return spec, *t.state[lotID], true
}

// LotView pairs a lot's immutable spec with its runtime ownership.
type LotView struct {
	Spec  model.LotSpec  `json:"spec"`
	State model.LotState `json:"state"`
}

// Lots returns every lot's spec with its current ownership, in config order.
func (t *Territory) Lots() []LotView {
	out := make([]LotView, 0, len(t.specs))
	for _, s := range t.specs {
		out = append(out, LotView{Spec: s, State: *t.state[s.ID]})
	}
	return out
}

// OwnedValue sums the base cost of lots held by one owner, used for the
// net-worth breakdown.
func (t *Territory) OwnedValue(owner model.Owner) decimal.Decimal {
	total := decimal.Zero
	for _, s := range t.specs {
		if t.state[s.ID].Owner == owner {
			total = total.Add(s.BaseCost)
		}
	}
	return total
}

// OwnedSpecs returns the lot specs held by one owner, in config order.
func (t *Territory) OwnedSpecs(owner model.Owner) []model.LotSpec {
	var out []model.LotSpec
	for _, s := range t.specs {
		if t.state[s.ID].Owner == owner {
			out = append(out, s)
		}
	}
	return out
}
