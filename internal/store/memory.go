package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fortunevalley/sim-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. The default for local
// play and tests. Not suitable for durable history (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	prices    map[string][]model.PricePoint // keyed by sessionID
	audit     map[string][]model.AuditEntry
	summaries map[string]*model.GameSummary
	order     []string // summary insertion order, newest last
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prices:    make(map[string][]model.PricePoint),
		audit:     make(map[string][]model.AuditEntry),
		summaries: make(map[string]*model.GameSummary),
	}
}

func (s *MemoryStore) InsertPricePoints(_ context.Context, sessionID string, points []model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[sessionID] = append(s.prices[sessionID], points...)
	return nil
}

func (s *MemoryStore) GetPriceHistory(_ context.Context, sessionID, instrumentID string, limit int) ([]model.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PricePoint
	for _, p := range s.prices[sessionID] {
		if p.InstrumentID == instrumentID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Tick < result[j].Tick })
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (s *MemoryStore) InsertAuditEntry(_ context.Context, entry *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit[entry.SessionID] = append(s.audit[entry.SessionID], *entry)
	return nil
}

func (s *MemoryStore) GetAuditEntries(_ context.Context, sessionID string) ([]model.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.audit[sessionID]
	out := make([]model.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) InsertSummary(_ context.Context, summary *model.GameSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.summaries[summary.SessionID]; exists {
		return fmt.Errorf("summary for session %s already exists", summary.SessionID)
	}
	copied := *summary
	s.summaries[summary.SessionID] = &copied
	s.order = append(s.order, summary.SessionID)
	return nil
}

func (s *MemoryStore) GetSummary(_ context.Context, sessionID string) (*model.GameSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.summaries[sessionID]
	if !ok {
		return nil, fmt.Errorf("summary for session %s not found", sessionID)
	}
	copied := *sum
	return &copied, nil
}

func (s *MemoryStore) ListSummaries(_ context.Context) ([]model.GameSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.GameSummary, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.summaries[s.order[i]])
	}
	return out, nil
}
