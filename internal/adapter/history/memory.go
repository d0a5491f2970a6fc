package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"switchd/internal/domain"
)

// MemoryStore keeps history in process memory, bounded by maxRecords.
type MemoryStore struct {
	mu         sync.Mutex
	records    []domain.HistoryRecord
	maxRecords int
}

// NewMemoryStore creates a store holding at most maxRecords entries; the
// oldest are dropped first. maxRecords <= 0 means unbounded.
func NewMemoryStore(maxRecords int) *MemoryStore {
	return &MemoryStore{maxRecords: maxRecords}
}

func (m *MemoryStore) Append(_ context.Context, rec domain.HistoryRecord) error {
	fill(&rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if m.maxRecords > 0 && len(m.records) > m.maxRecords {
		m.records = append([]domain.HistoryRecord(nil), m.records[len(m.records)-m.maxRecords:]...)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, switchID string, limit int) ([]domain.HistoryRecord, error) {
	m.mu.Lock()
	var out []domain.HistoryRecord
	for _, r := range m.records {
		if switchID == "" || r.SwitchID == switchID {
			out = append(out, r)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	removed := 0
	for _, r := range m.records {
		if r.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

// NopStore discards everything. It backs history.backend: none.
type NopStore struct{}

func (NopStore) Append(context.Context, domain.HistoryRecord) error { return nil }

func (NopStore) List(context.Context, string, int) ([]domain.HistoryRecord, error) { return nil, nil }

func (NopStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }

func (NopStore) Close() error { return nil }

var (
	_ domain.HistoryStore = (*MemoryStore)(nil)
	_ domain.HistoryStore = NopStore{}
)
