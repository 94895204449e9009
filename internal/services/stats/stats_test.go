package stats

import (
	"context"
	"testing"
	"time"

	"github.com/kw-tgbot-go/internal/models"
	"github.com/kw-tgbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails stats saves on demand so rollback behavior is testable.
type flakyStore struct {
	storage.Store
	failSaves bool
}

func (s *flakyStore) SaveStats(ctx context.Context, data *models.StatsData) error {
	if s.failSaves {
		return models.ErrStoreUnavailable
	}
	return s.Store.SaveStats(ctx, data)
}

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *flakyStore) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := &flakyStore{Store: storage.NewMemoryStore(log)}
	engine, err := NewEngine(context.Background(), store, log)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }
	return engine, store
}

func TestRecordCreatesUser(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	firstSeen := testNow.Add(-time.Hour)
	require.NoError(t, engine.Record(ctx, 42, "alice", firstSeen))
	require.NoError(t, engine.Record(ctx, 42, "alice", testNow))

	assert.Equal(t, 1, engine.KnownUsers())
	assert.Equal(t, 2, engine.CountInWindow(42, "day"))

	// Write-through: the store sees both events and the first-seen time
	data, err := store.LoadStats(ctx)
	require.NoError(t, err)
	require.Contains(t, data.Users, "42")
	assert.True(t, data.Users["42"].FirstSeen.Equal(firstSeen))
	assert.Len(t, data.Messages["42"], 2)
}

func TestRecordRefreshesUsername(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.Record(ctx, 42, "old-name", testNow.Add(-time.Hour)))
	require.NoError(t, engine.Record(ctx, 42, "new-name", testNow))

	board := engine.Leaderboard("day", 10)
	require.Len(t, board, 1)
	assert.Equal(t, "new-name", board[0].Username)
}

func TestCountInWindow(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// One event inside the 24h window, one outside
	require.NoError(t, engine.Record(ctx, 42, "alice", testNow.Add(-30*time.Hour)))
	require.NoError(t, engine.Record(ctx, 42, "alice", testNow.Add(-2*time.Hour)))

	assert.Equal(t, 1, engine.CountInWindow(42, "day"))
	assert.Equal(t, 2, engine.CountInWindow(42, "week"))
	assert.Equal(t, 2, engine.CountInWindow(42, "month"))

	// Any unrecognized period means all time
	assert.Equal(t, 2, engine.CountInWindow(42, "bogus"))
	assert.Equal(t, 2, engine.CountInWindow(42, ""))
}

func TestCountInWindowUnknownUser(t *testing.T) {
	engine, _ := newTestEngine(t)
	assert.Equal(t, 0, engine.CountInWindow(99999, "day"))
	assert.Equal(t, 0, engine.CountInWindow(99999, "bogus"))
}

func TestCountInWindowBoundaryIsStrict(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Exactly on the window edge does not count: strictly greater only
	require.NoError(t, engine.Record(ctx, 42, "alice", testNow.Add(-24*time.Hour)))
	assert.Equal(t, 0, engine.CountInWindow(42, "day"))
	assert.Equal(t, 1, engine.CountInWindow(42, "week"))
}

func TestLeaderboardStableTiesAndLimit(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	base := testNow.Add(-time.Hour)
	record := func(id int64, name string, n int) {
		for i := 0; i < n; i++ {
			require.NoError(t, engine.Record(ctx, id, name, base.Add(time.Duration(i)*time.Second)))
		}
	}

	// Inserted in order A, B, C; A and B tie on count
	record(1, "a", 5)
	record(2, "b", 5)
	record(3, "c", 3)

	board := engine.Leaderboard("day", 2)
	require.Len(t, board, 2)
	assert.Equal(t, "a", board[0].Username)
	assert.Equal(t, "b", board[1].Username)
	assert.Equal(t, 5, board[0].Count)
	assert.Equal(t, 5, board[1].Count)

	full := engine.Leaderboard("day", 10)
	require.Len(t, full, 3)
	assert.Equal(t, "c", full[2].Username)
	assert.Equal(t, 3, full[2].Count)
}

func TestLeaderboardDefaultLimit(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for id := int64(1); id <= 15; id++ {
		require.NoError(t, engine.Record(ctx, id, "", testNow.Add(-time.Minute)))
	}

	board := engine.Leaderboard("day", 0)
	assert.Len(t, board, DefaultLeaderboardLimit)
}

func TestLeaderboardSurvivesReload(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := storage.NewMemoryStore(log)
	ctx := context.Background()

	engine, err := NewEngine(ctx, store, log)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }

	require.NoError(t, engine.Record(ctx, 1, "a", testNow.Add(-3*time.Hour)))
	require.NoError(t, engine.Record(ctx, 2, "b", testNow.Add(-2*time.Hour)))
	require.NoError(t, engine.Record(ctx, 2, "b", testNow.Add(-time.Hour)))

	// A fresh engine over the same store computes the same board
	reloaded, err := NewEngine(ctx, store, log)
	require.NoError(t, err)
	reloaded.now = func() time.Time { return testNow }

	board := reloaded.Leaderboard("day", 10)
	require.Len(t, board, 2)
	assert.Equal(t, "b", board[0].Username)
	assert.Equal(t, 2, board[0].Count)
	assert.Equal(t, "a", board[1].Username)
}

func TestNewEngineSynthesizesMissingUsers(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := storage.NewMemoryStore(log)
	ctx := context.Background()

	data := models.NewStatsData()
	data.Messages["7"] = []time.Time{testNow.Add(-time.Hour)}
	require.NoError(t, store.SaveStats(ctx, data))

	engine, err := NewEngine(ctx, store, log)
	require.NoError(t, err)
	engine.now = func() time.Time { return testNow }

	board := engine.Leaderboard("day", 10)
	require.Len(t, board, 1)
	assert.Equal(t, "7", board[0].UserID)
	assert.Equal(t, "7", board[0].Username)
	assert.Equal(t, 1, board[0].Count)
}

func TestRecordRollsBackOnSaveFailure(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.Record(ctx, 42, "alice", testNow.Add(-time.Hour)))

	store.failSaves = true
	err := engine.Record(ctx, 42, "renamed", testNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	// Memory matches the store: one event, original name
	assert.Equal(t, 1, engine.CountInWindow(42, "day"))
	board := engine.Leaderboard("day", 10)
	require.Len(t, board, 1)
	assert.Equal(t, "alice", board[0].Username)

	// A brand-new user is fully removed on failure
	err = engine.Record(ctx, 77, "bob", testNow)
	require.Error(t, err)
	assert.Equal(t, 1, engine.KnownUsers())

	store.failSaves = false
	require.NoError(t, engine.Record(ctx, 77, "bob", testNow))
	assert.Equal(t, 2, engine.KnownUsers())
}
