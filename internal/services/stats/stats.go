package stats

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kw-tgbot-go/internal/models"
	"github.com/kw-tgbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// DefaultLeaderboardLimit is used when a caller passes a non-positive limit.
const DefaultLeaderboardLimit = 10

// Engine records message events per user and computes counts over rolling
// time windows. It holds the authoritative working copy of the stats
// dataset and writes through to the store on every mutation.
type Engine struct {
	store  storage.Store
	logger *logrus.Logger
	now    func() time.Time

	mu    sync.RWMutex
	data  *models.StatsData
	order []string // user keys in first-seen order, ties broken by key
}

// NewEngine loads the stats dataset from the store. A message list without
// a matching user record gets a synthesized user so leaderboard name
// lookups cannot fail on a hand-edited dataset.
func NewEngine(ctx context.Context, store storage.Store, logger *logrus.Logger) (*Engine, error) {
	data, err := store.LoadStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	for key, events := range data.Messages {
		if _, ok := data.Users[key]; ok {
			continue
		}
		logger.WithField("user_id", key).Warn("Messages without user record, synthesizing user")
		user := &models.User{Username: key}
		if len(events) > 0 {
			user.FirstSeen = events[0]
		}
		data.Users[key] = user
	}

	order := make([]string, 0, len(data.Users))
	for key := range data.Users {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := data.Users[order[i]], data.Users[order[j]]
		if !a.FirstSeen.Equal(b.FirstSeen) {
			return a.FirstSeen.Before(b.FirstSeen)
		}
		return order[i] < order[j]
	})

	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
		data:   data,
		order:  order,
	}, nil
}

// Record appends a message event for the user, creating the user record on
// first sight with first_seen set to the event time. The stored username is
// refreshed on every message so display names follow renames. The dataset
// is persisted before Record returns; a failed persist is rolled back.
func (e *Engine) Record(ctx context.Context, userID int64, username string, at time.Time) error {
	key := models.UserKey(userID)

	e.mu.Lock()
	defer e.mu.Unlock()

	user, existed := e.data.Users[key]
	var prevUser models.User
	if existed {
		prevUser = *user
		if username != "" {
			user.Username = username
		}
	} else {
		if username == "" {
			username = key
		}
		e.data.Users[key] = &models.User{Username: username, FirstSeen: at}
		e.order = append(e.order, key)
	}

	prevLen := len(e.data.Messages[key])
	e.data.Messages[key] = append(e.data.Messages[key], at)

	if err := e.store.SaveStats(ctx, e.data); err != nil {
		e.data.Messages[key] = e.data.Messages[key][:prevLen]
		if existed {
			*e.data.Users[key] = prevUser
		} else {
			delete(e.data.Users, key)
			delete(e.data.Messages, key)
			e.order = e.order[:len(e.order)-1]
		}
		return fmt.Errorf("persist stats: %w", err)
	}

	return nil
}

// CountInWindow returns the number of the user's events with a timestamp
// strictly after now minus the period's window. Periods are "day" (24h),
// "week" (7d) and "month" (30d); any other value means all time, a
// fallback callers rely on for a total view. Unknown users count 0.
func (e *Engine) CountInWindow(userID int64, period string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.countLocked(models.UserKey(userID), period)
}

func (e *Engine) countLocked(key, period string) int {
	events, ok := e.data.Messages[key]
	if !ok {
		return 0
	}

	cutoff := e.windowStart(period)
	count := 0
	for _, at := range events {
		if at.After(cutoff) {
			count++
		}
	}
	return count
}

func (e *Engine) windowStart(period string) time.Time {
	now := e.now()
	switch period {
	case "day":
		return now.Add(-24 * time.Hour)
	case "week":
		return now.Add(-7 * 24 * time.Hour)
	case "month":
		return now.Add(-30 * 24 * time.Hour)
	default:
		// Unrecognized periods mean all time
		return time.Time{}
	}
}

// Leaderboard ranks every known user descending by their count in the
// period's window, ties kept in first-seen order, truncated to limit. The
// result is deterministic for a fixed dataset and clock.
func (e *Engine) Leaderboard(period string, limit int) []models.LeaderboardEntry {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	entries := make([]models.LeaderboardEntry, 0, len(e.order))
	for _, key := range e.order {
		username := key
		if user, ok := e.data.Users[key]; ok && user.Username != "" {
			username = user.Username
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID:   key,
			Username: username,
			Count:    e.countLocked(key, period),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// KnownUsers returns the number of users the engine has ever seen.
func (e *Engine) KnownUsers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.data.Users)
}
