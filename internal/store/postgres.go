package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertPricePoints(ctx context.Context, sessionID string, points []model.PricePoint) error {
	for _, p := range points {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO price_points (session_id, instrument_id, tick, price)
			 VALUES ($1, $2, $3, $4::NUMERIC)`,
			sessionID, p.InstrumentID, p.Tick, p.Price.String(),
		)
		if err != nil {
			return fmt.Errorf("insert price point %s@%d: %w", p.InstrumentID, p.Tick, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetPriceHistory(ctx context.Context, sessionID, instrumentID string, limit int) ([]model.PricePoint, error) {
	query := `SELECT instrument_id, tick, price::TEXT
	          FROM price_points
	          WHERE session_id = $1 AND instrument_id = $2
	          ORDER BY tick`
	args := []any{sessionID, instrumentID}
	if limit > 0 {
		query = `SELECT instrument_id, tick, price::TEXT FROM (
		             SELECT instrument_id, tick, price
		             FROM price_points
		             WHERE session_id = $1 AND instrument_id = $2
		             ORDER BY tick DESC LIMIT $3
		         ) recent ORDER BY tick`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var priceS string
		if err := rows.Scan(&p.InstrumentID, &p.Tick, &priceS); err != nil {
			return nil, err
		}
		p.Price, _ = decimal.NewFromString(priceS)
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PostgresStore) InsertAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, session_id, tick, kind, account, delta, label, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8)`,
		e.ID, e.SessionID, e.Tick, e.Kind, e.Account,
		e.Delta.String(), e.Label, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetAuditEntries(ctx context.Context, sessionID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, tick, kind, account, delta::TEXT, label, timestamp
		 FROM audit_entries WHERE session_id = $1 ORDER BY timestamp, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var deltaS string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Tick, &e.Kind, &e.Account,
			&deltaS, &e.Label, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Delta, _ = decimal.NewFromString(deltaS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertSummary stores the scalar columns directly and the sale records as
// JSONB, which keeps the per-sale detail queryable without a second table.
func (s *PostgresStore) InsertSummary(ctx context.Context, sum *model.GameSummary) error {
	sales, err := json.Marshal(sum.Sales)
	if err != nil {
		return fmt.Errorf("marshal sales: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO game_summaries
		     (session_id, winner, player_won, days_played, player_lots, rival_lots,
		      checking_balance, investing_balance, portfolio_value, portfolio_principal,
		      lot_value, net_worth, positions_opened, positions_closed, realized_gain,
		      sales, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6,
		         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		         $11::NUMERIC, $12::NUMERIC, $13, $14, $15::NUMERIC,
		         $16::JSONB, $17)`,
		sum.SessionID, string(sum.Winner), sum.PlayerWon, sum.DaysPlayed,
		sum.PlayerLots, sum.RivalLots,
		sum.CheckingBalance.String(), sum.InvestingBalance.String(),
		sum.PortfolioValue.String(), sum.PortfolioPrincipal.String(),
		sum.LotValue.String(), sum.NetWorth.String(),
		sum.PositionsOpened, sum.PositionsClosed, sum.RealizedGain.String(),
		sales, sum.EndedAt,
	)
	return err
}

func (s *PostgresStore) GetSummary(ctx context.Context, sessionID string) (*model.GameSummary, error) {
	row := s.pool.QueryRow(ctx,
		summarySelect+` WHERE session_id = $1`, sessionID)
	sum, err := scanSummary(row)
	if err != nil {
		return nil, fmt.Errorf("get summary %s: %w", sessionID, err)
	}
	return sum, nil
}

func (s *PostgresStore) ListSummaries(ctx context.Context) ([]model.GameSummary, error) {
	rows, err := s.pool.Query(ctx, summarySelect+` ORDER BY ended_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.GameSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *sum)
	}
	return summaries, rows.Err()
}

const summarySelect = `SELECT session_id, winner, player_won, days_played, player_lots, rival_lots,
       checking_balance::TEXT, investing_balance::TEXT, portfolio_value::TEXT,
       portfolio_principal::TEXT, lot_value::TEXT, net_worth::TEXT,
       positions_opened, positions_closed, realized_gain::TEXT,
       sales, ended_at
 FROM game_summaries`

type pgxRow interface {
	Scan(dest ...any) error
}

func scanSummary(row pgxRow) (*model.GameSummary, error) {
	var sum model.GameSummary
	var winner string
	var checking, investing, value, principal, lotValue, netWorth, gain string
	var sales []byte

	if err := row.Scan(&sum.SessionID, &winner, &sum.PlayerWon, &sum.DaysPlayed,
		&sum.PlayerLots, &sum.RivalLots,
		&checking, &investing, &value, &principal, &lotValue, &netWorth,
		&sum.PositionsOpened, &sum.PositionsClosed, &gain,
		&sales, &sum.EndedAt); err != nil {
		return nil, err
	}

	sum.Winner = model.Winner(winner)
	sum.CheckingBalance, _ = decimal.NewFromString(checking)
	sum.InvestingBalance, _ = decimal.NewFromString(investing)
	sum.PortfolioValue, _ = decimal.NewFromString(value)
	sum.PortfolioPrincipal, _ = decimal.NewFromString(principal)
	sum.LotValue, _ = decimal.NewFromString(lotValue)
	sum.NetWorth, _ = decimal.NewFromString(netWorth)
	sum.RealizedGain, _ = decimal.NewFromString(gain)
	if len(sales) > 0 {
		_ = json.Unmarshal(sales, &sum.Sales)
	}
	return &sum, nil
}
