package models

import (
	"strconv"
	"time"
)

// User is a chat member as tracked by the stats engine.
type User struct {
	Username  string    `json:"username"`
	FirstSeen time.Time `json:"first_seen"`
}

// KeywordEntry is the canned response registered for a trigger keyword.
type KeywordEntry struct {
	Response  string          `json:"response"`
	Level     PermissionLevel `json:"permission_level"`
	UpdatedBy int64           `json:"updated_by,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// KeywordRecord pairs a keyword with its entry.
type KeywordRecord struct {
	Keyword string `json:"keyword"`
	KeywordEntry
}

// KeywordData is the persisted keyword dataset. Records stay in insertion
// order because Match is first-match-wins over that order.
type KeywordData struct {
	Records []KeywordRecord `json:"keywords"`
}

// NewKeywordData returns an empty keyword dataset.
func NewKeywordData() *KeywordData {
	return &KeywordData{Records: []KeywordRecord{}}
}

// RoleData maps user identifier keys to assigned permission levels.
type RoleData map[string]PermissionLevel

// StatsData is the persisted stats dataset. Users and Messages are kept as
// separate sections: leaderboards iterate Messages and look display names
// up in Users.
type StatsData struct {
	Users    map[string]*User       `json:"users"`
	Messages map[string][]time.Time `json:"messages"`
}

// NewStatsData returns an empty stats dataset.
func NewStatsData() *StatsData {
	return &StatsData{
		Users:    make(map[string]*User),
		Messages: make(map[string][]time.Time),
	}
}

// LeaderboardEntry is one ranked row of a leaderboard.
type LeaderboardEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// UserKey converts a Telegram user ID to the string key used by the
// persisted datasets.
func UserKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
