// Package store defines the persistence interface for the simulation engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-process play).
package store

import (
	"context"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// Store is the persistence interface. The simulation never depends on it for
// correctness: writes are fire-and-forget from the engine's point of view,
// and a failing store only costs history and audit records.
type Store interface {
	// --- Price history ---

	// InsertPricePoints appends price samples for a session. Points with
	// negative ticks are synthetic pre-session history.
	InsertPricePoints(ctx context.Context, sessionID string, points []model.PricePoint) error

	// GetPriceHistory returns samples for one instrument in tick order.
	// A limit of 0 means no limit; otherwise the most recent limit points.
	GetPriceHistory(ctx context.Context, sessionID, instrumentID string, limit int) ([]model.PricePoint, error)

	// --- Immutable audit trail ---

	// InsertAuditEntry appends an immutable money or ownership record.
	InsertAuditEntry(ctx context.Context, entry *model.AuditEntry) error

	// GetAuditEntries returns a session's audit trail in insertion order.
	GetAuditEntries(ctx context.Context, sessionID string) ([]model.AuditEntry, error)

	// --- End-of-session summaries ---

	// InsertSummary persists a finished session's report.
	InsertSummary(ctx context.Context, summary *model.GameSummary) error

	// GetSummary retrieves one session's report.
	GetSummary(ctx context.Context, sessionID string) (*model.GameSummary, error)

	// ListSummaries returns all finished sessions, most recent first.
	ListSummaries(ctx context.Context) ([]model.GameSummary, error)
}
