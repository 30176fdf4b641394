// Package config loads the session catalog: the instruments, lots, rival
// tuning, and economy parameters that define one game session. The catalog
// is immutable after load; runtime state lives in the owning components.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fortunevalley/sim-engine/internal/model"
	"github.com/fortunevalley/sim-engine/internal/rival"
)

// Session is the full catalog for one game session.
type Session struct {
	// Clock pacing. SecondsPerTick is real seconds per in-game day at
	// speed 1.
	SecondsPerTick float64 `yaml:"seconds_per_tick"`
	// TicksPerYear converts annual instrument rates to per-tick rates.
	TicksPerYear int `yaml:"ticks_per_year"`
	// HistoryDays is how many synthetic pre-session days to backfill for
	// the price charts.
	HistoryDays int `yaml:"history_days"`

	StartingChecking  decimal.Decimal `yaml:"starting_checking"`
	StartingInvesting decimal.Decimal `yaml:"starting_investing"`
	// RestaurantIncome is deposited into checking every tick.
	RestaurantIncome decimal.Decimal `yaml:"restaurant_income"`

	Instruments []model.InstrumentSpec `yaml:"instruments"`
	Lots        []model.LotSpec        `yaml:"lots"`
	Rival       rival.Config           `yaml:"rival"`
}

// Load reads and validates a session catalog from a YAML file.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &s, nil
}

// Validate rejects catalogs the simulation cannot run on. Failures here are
// startup errors, never silently papered over at runtime.
func (s *Session) Validate() error {
	if s.SecondsPerTick <= 0 {
		return fmt.Errorf("seconds_per_tick must be positive, got %v", s.SecondsPerTick)
	}
	if s.TicksPerYear <= 0 {
		return fmt.Errorf("ticks_per_year must be positive, got %d", s.TicksPerYear)
	}
	if s.HistoryDays < 0 {
		return fmt.Errorf("history_days must not be negative, got %d", s.HistoryDays)
	}
	if s.StartingChecking.IsNegative() || s.StartingInvesting.IsNegative() {
		return fmt.Errorf("starting balances must not be negative")
	}
	if s.RestaurantIncome.IsNegative() {
		return fmt.Errorf("restaurant_income must not be negative")
	}

	if len(s.Instruments) == 0 {
		return fmt.Errorf("catalog has no instruments")
	}
	seen := make(map[string]struct{})
	for i, inst := range s.Instruments {
		if inst.ID == "" {
			return fmt.Errorf("instrument %d has no id", i)
		}
		if _, dup := seen[inst.ID]; dup {
			return fmt.Errorf("duplicate instrument id %q", inst.ID)
		}
		seen[inst.ID] = struct{}{}
		if !inst.InitialPrice.IsPositive() {
			return fmt.Errorf("instrument %q initial price must be positive", inst.ID)
		}
		if inst.MinimumDeposit.IsNegative() {
			return fmt.Errorf("instrument %q minimum deposit must not be negative", inst.ID)
		}
		if !inst.FixedReturn && inst.VolatilityMax < inst.VolatilityMin {
			return fmt.Errorf("instrument %q volatility range inverted", inst.ID)
		}
		// Risk-bearing prices must be able to decline; a range that only
		// scales the rate upward makes the instrument risk-free in practice.
		if !inst.FixedReturn &&
			inst.AnnualReturnRate*inst.VolatilityMin >= 0 && inst.AnnualReturnRate*inst.VolatilityMax >= 0 {
			return fmt.Errorf("instrument %q volatility range never produces a down tick", inst.ID)
		}
		switch inst.RiskTier {
		case model.RiskLow, model.RiskMedium, model.RiskHigh:
		default:
			return fmt.Errorf("instrument %q has unknown risk tier %q", inst.ID, inst.RiskTier)
		}
	}

	if len(s.Lots) == 0 {
		return fmt.Errorf("catalog has no lots")
	}
	seenLots := make(map[string]struct{})
	for i, lot := range s.Lots {
		if lot.ID == "" {
			return fmt.Errorf("lot %d has no id", i)
		}
		if _, dup := seenLots[lot.ID]; dup {
			return fmt.Errorf("duplicate lot id %q", lot.ID)
		}
		seenLots[lot.ID] = struct{}{}
		if !lot.BaseCost.IsPositive() {
			return fmt.Errorf("lot %q base cost must be positive", lot.ID)
		}
		if lot.IncomePerTick.IsNegative() {
			return fmt.Errorf("lot %q income must not be negative", lot.ID)
		}
	}

	if s.Rival.BaseInterval <= 0 {
		return fmt.Errorf("rival base_interval must be positive, got %d", s.Rival.BaseInterval)
	}
	if s.Rival.MinInterval <= 0 || s.Rival.MinInterval > s.Rival.BaseInterval {
		return fmt.Errorf("rival min_interval must be in [1, base_interval], got %d", s.Rival.MinInterval)
	}
	if s.Rival.WarningLead < 0 || s.Rival.WarningLead >= s.Rival.MinInterval {
		return fmt.Errorf("rival warning_lead must be in [0, min_interval), got %d", s.Rival.WarningLead)
	}
	if s.Rival.StartingMoney.IsNegative() || s.Rival.IncomePerTick.IsNegative() {
		return fmt.Errorf("rival money parameters must not be negative")
	}
	return nil
}
