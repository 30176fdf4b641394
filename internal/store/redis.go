package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for price history and summaries. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertPricePoints(ctx context.Context, sessionID string, points []model.PricePoint) error {
	if err := s.primary.InsertPricePoints(ctx, sessionID, points); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for _, p := range points {
		if _, done := seen[p.InstrumentID]; done {
			continue
		}
		seen[p.InstrumentID] = struct{}{}
		s.rdb.Del(ctx, historyKey(sessionID, p.InstrumentID))
	}
	return nil
}

func (s *CachedStore) InsertSummary(ctx context.Context, sum *model.GameSummary) error {
	if err := s.primary.InsertSummary(ctx, sum); err != nil {
		return err
	}
	s.cacheSummary(ctx, sum)
	return nil
}

// --- Read-through (check cache first) ---

// GetPriceHistory caches the full per-instrument series and slices locally,
// so limited and unlimited reads share one cache entry.
func (s *CachedStore) GetPriceHistory(ctx context.Context, sessionID, instrumentID string, limit int) ([]model.PricePoint, error) {
	data, err := s.rdb.Get(ctx, historyKey(sessionID, instrumentID)).Bytes()
	if err == nil {
		var points []model.PricePoint
		if json.Unmarshal(data, &points) == nil {
			return tail(points, limit), nil
		}
	}

	points, err := s.primary.GetPriceHistory(ctx, sessionID, instrumentID, 0)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(points); err == nil {
		s.rdb.Set(ctx, historyKey(sessionID, instrumentID), data, s.ttl)
	}
	return tail(points, limit), nil
}

func (s *CachedStore) GetSummary(ctx context.Context, sessionID string) (*model.GameSummary, error) {
	data, err := s.rdb.Get(ctx, summaryKey(sessionID)).Bytes()
	if err == nil {
		var sum model.GameSummary
		if json.Unmarshal(data, &sum) == nil {
			return &sum, nil
		}
	}

	sum, err := s.primary.GetSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cacheSummary(ctx, sum)
	return sum, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) InsertAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	return s.primary.InsertAuditEntry(ctx, entry)
}

func (s *CachedStore) GetAuditEntries(ctx context.Context, sessionID string) ([]model.AuditEntry, error) {
	return s.primary.GetAuditEntries(ctx, sessionID)
}

func (s *CachedStore) ListSummaries(ctx context.Context) ([]model.GameSummary, error) {
	return s.primary.ListSummaries(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSummary(ctx context.Context, sum *model.GameSummary) {
	if data, err := json.Marshal(sum); err == nil {
		s.rdb.Set(ctx, summaryKey(sum.SessionID), data, s.ttl)
	}
}

func tail(points []model.PricePoint, limit int) []model.PricePoint {
	if limit > 0 && len(points) > limit {
		return points[len(points)-limit:]
	}
	return points
}

func historyKey(sessionID, instrumentID string) string {
	return fmt.Sprintf("history:%s:%s", sessionID, instrumentID)
}
func summaryKey(sessionID string) string { return fmt.Sprintf("summary:%s", sessionID) }
