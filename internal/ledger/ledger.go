// Package ledger owns the player's money: two named accounts (checking and
// investing) mutated only through deposit, withdraw, and transfer. Validation
// failures are silent no-ops returning false — they are expected player
// outcomes, not errors.
package ledger

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/event"
	"github.com/fortunevalley/sim-engine/internal/model"
)

// Ledger is the multi-account money store. Balances never go negative:
// every debit is validated before it is applied.
type Ledger struct {
	bus      *event.Bus
	balances map[model.Account]decimal.Decimal
	tick     func() int64
}

// New creates a ledger with both accounts at zero. tickFn supplies the
// current tick for published events; pass nil outside an engine.
func New(bus *event.Bus, tickFn func() int64) *Ledger {
	if tickFn == nil {
		tickFn = func() int64 { return 0 }
	}
	return &Ledger{
		bus: bus,
		balances: map[model.Account]decimal.Decimal{
			model.AccountChecking:  decimal.Zero,
			model.AccountInvesting: decimal.Zero,
		},
		tick: tickFn,
	}
}

// Reset restores both accounts to the given starting balances.
func (l *Ledger) Reset(checking, investing decimal.Decimal) {
	l.balances[model.AccountChecking] = checking
	l.balances[model.AccountInvesting] = investing
}

// Balance returns the current balance of one account. Unknown accounts
// read as zero.
func (l *Ledger) Balance(account model.Account) decimal.Decimal {
	return l.balances[account]
}

// Total returns the sum across both accounts.
func (l *Ledger) Total() decimal.Decimal {
	return l.balances[model.AccountChecking].Add(l.balances[model.AccountInvesting])
}

// CanAfford reports whether the account holds at least amount.
func (l *Ledger) CanAfford(account model.Account, amount decimal.Decimal) bool {
	return l.balances[account].GreaterThanOrEqual(amount)
}

// Deposit credits the account. Non-positive amounts and unknown accounts are
// silent no-ops.
func (l *Ledger) Deposit(account model.Account, amount decimal.Decimal, reason string) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return
	}
	bal, ok := l.balances[account]
	if !ok {
		slog.Debug("deposit to unknown account dropped", "account", account)
		return
	}
	l.balances[account] = bal.Add(amount)
	l.publishChange(account, amount, reason)
}

// Withdraw debits the account. Returns false — leaving state untouched — if
// the amount is non-positive, the account is unknown, or funds are short.
func (l *Ledger) Withdraw(account model.Account, amount decimal.Decimal, reason string) bool {
	if amount.LessThanOrEqual(decimal.Zero) {
		return false
	}
	bal, ok := l.balances[account]
	if !ok || bal.LessThan(amount) {
		return false
	}
	l.balances[account] = bal.Sub(amount)
	l.publishChange(account, amount.Neg(), reason)
	return true
}

// Transfer moves amount between accounts as an atomic withdraw+deposit. If
// the withdraw fails the deposit never runs and neither balance changes.
func (l *Ledger) Transfer(amount decimal.Decimal, from, to model.Account) bool {
	if from == to {
		return false
	}
	if _, ok := l.balances[to]; !ok {
		return false
	}
	if !l.Withdraw(from, amount, "transfer") {
		return false
	}
	l.Deposit(to, amount, "transfer")
	if l.bus != nil {
		l.bus.Publish(event.Event{
			Type: event.Transferred,
			Tick: l.tick(),
			Data: event.TransferData{Amount: amount, From: string(from), To: string(to)},
		})
	}
	return true
}

func (l *Ledger) publishChange(account model.Account, delta decimal.Decimal, reason string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(event.Event{
		Type: event.BalanceChanged,
		Tick: l.tick(),
		Data: event.BalanceData{
			Account: string(account),
			Balance: l.balances[account],
			Delta:   delta,
			Reason:  reason,
		},
	})
}
