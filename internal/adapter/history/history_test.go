package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// Both backends must behave identically.
func stores(t *testing.T) map[string]domain.HistoryStore {
	return map[string]domain.HistoryStore{
		"sqlite": newTestSQLite(t),
		"memory": NewMemoryStore(0),
	}
}

func TestAppendAndListNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, rec := range []domain.HistoryRecord{
				{SwitchID: "wifi", Action: domain.HistoryToggle, Role: domain.RoleOff, OK: true},
				{SwitchID: "wifi", Action: domain.HistoryToggle, Role: domain.RoleOn, TurnedOn: true, OK: false, Error: "exit 1"},
				{SwitchID: "bt", Action: domain.HistoryTest, Role: domain.RoleStatus, OK: true},
			} {
				rec.CreatedAt = base.Add(time.Duration(i) * time.Millisecond * 100)
				require.NoError(t, store.Append(ctx, rec))
			}

			wifi, err := store.List(ctx, "wifi", 0)
			require.NoError(t, err)
			require.Len(t, wifi, 2)
			assert.Equal(t, domain.RoleOn, wifi[0].Role)
			assert.True(t, wifi[0].TurnedOn)
			assert.False(t, wifi[0].OK)
			assert.Equal(t, "exit 1", wifi[0].Error)
			assert.NotEmpty(t, wifi[0].ID)
			assert.True(t, wifi[0].CreatedAt.Equal(base.Add(100*time.Millisecond)))
			assert.Equal(t, domain.RoleOff, wifi[1].Role)

			all, err := store.List(ctx, "", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "bt", all[0].SwitchID)

			limited, err := store.List(ctx, "", 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestAppendFillsIDAndTime(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, domain.HistoryRecord{SwitchID: "x", Action: domain.HistoryToggle}))
			recs, err := store.List(ctx, "x", 0)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Len(t, recs[0].ID, 26, "ulid")
			assert.WithinDuration(t, time.Now(), recs[0].CreatedAt, time.Minute)
		})
	}
}

func TestPrune(t *testing.T) {
	now := time.Now().UTC()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, domain.HistoryRecord{SwitchID: "a", Action: domain.HistoryToggle, CreatedAt: now.Add(-48 * time.Hour)}))
			require.NoError(t, store.Append(ctx, domain.HistoryRecord{SwitchID: "a", Action: domain.HistoryToggle, CreatedAt: now.Add(-2 * time.Hour)}))
			require.NoError(t, store.Append(ctx, domain.HistoryRecord{SwitchID: "a", Action: domain.HistoryToggle, CreatedAt: now}))

			n, err := store.Prune(ctx, now.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			recs, err := store.List(ctx, "a", 0)
			require.NoError(t, err)
			assert.Len(t, recs, 2)
		})
	}
}

func TestSQLiteTimestampsSortAcrossPrecision(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 5, 100_000_000, time.UTC)
	t1 := time.Date(2026, 1, 1, 0, 0, 5, 120_000_000, time.UTC)
	require.NoError(t, store.Append(ctx, domain.HistoryRecord{ID: "b", SwitchID: "s", Action: domain.HistoryToggle, CreatedAt: t1}))
	require.NoError(t, store.Append(ctx, domain.HistoryRecord{ID: "a", SwitchID: "s", Action: domain.HistoryToggle, CreatedAt: t0}))

	recs, err := store.List(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID)
}

func TestSQLiteDuplicateIDFails(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	rec := domain.HistoryRecord{ID: "same", SwitchID: "s", Action: domain.HistoryToggle}
	require.NoError(t, store.Append(ctx, rec))
	err := store.Append(ctx, rec)
	assert.ErrorIs(t, err, domain.ErrHistoryWrite)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Append(context.Background(), domain.HistoryRecord{SwitchID: "s", Action: domain.HistoryTest}))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	recs, err := s2.List(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemoryStoreBounded(t *testing.T) {
	m := NewMemoryStore(2)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, m.Append(ctx, domain.HistoryRecord{ID: id, SwitchID: "s", CreatedAt: time.Now()}))
	}
	recs, err := m.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	ids := []string{recs[0].ID, recs[1].ID}
	assert.ElementsMatch(t, []string{"2", "3"}, ids)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.HistoryConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.HistoryConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	s, err = Open(config.HistoryConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = Open(config.HistoryConfig{Backend: "etcd"})
	assert.Error(t, err)
}
