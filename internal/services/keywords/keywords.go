package keywords

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kw-tgbot-go/internal/models"
	"github.com/kw-tgbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// Table owns the keyword -> response mappings. Entries keep their insertion
// order because Match is first-match-wins over that order; keys are compared
// exactly for uniqueness while matching itself is case-insensitive.
type Table struct {
	store  storage.Store
	logger *logrus.Logger

	mu      sync.RWMutex
	entries map[string]models.KeywordEntry
	order   []string
}

// NewTable loads the keyword dataset from the store. Records with an empty
// keyword or response, or a key already seen, are quarantined with a
// warning rather than propagated into matching.
func NewTable(ctx context.Context, store storage.Store, logger *logrus.Logger) (*Table, error) {
	data, err := store.LoadKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	t := &Table{
		store:   store,
		logger:  logger,
		entries: make(map[string]models.KeywordEntry, len(data.Records)),
		order:   make([]string, 0, len(data.Records)),
	}

	for _, rec := range data.Records {
		if rec.Keyword == "" || rec.Response == "" {
			logger.WithField("keyword", rec.Keyword).Warn("Quarantining malformed keyword record")
			continue
		}
		if _, dup := t.entries[rec.Keyword]; dup {
			logger.WithField("keyword", rec.Keyword).Warn("Quarantining duplicate keyword record")
			continue
		}
		t.entries[rec.Keyword] = rec.KeywordEntry
		t.order = append(t.order, rec.Keyword)
	}

	return t, nil
}

// Add registers a new keyword. Keys are compared exactly; a duplicate key
// is ErrAlreadyExists and leaves the first entry unchanged. The table is
// persisted before Add returns.
func (t *Table) Add(ctx context.Context, keyword, response string, level models.PermissionLevel) error {
	if keyword == "" {
		return fmt.Errorf("%w: keyword must not be empty", models.ErrInvalidInput)
	}
	if response == "" {
		return fmt.Errorf("%w: response must not be empty", models.ErrInvalidInput)
	}
	if level == "" {
		level = models.LevelPublic
	}
	// Store the canonical form so a lower-cased level never ranks as 0
	parsed, err := models.ParseLevel(string(level))
	if err != nil {
		return err
	}
	level = parsed

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[keyword]; exists {
		return fmt.Errorf("%w: keyword %q", models.ErrAlreadyExists, keyword)
	}

	t.entries[keyword] = models.KeywordEntry{Response: response, Level: level}
	t.order = append(t.order, keyword)

	if err := t.store.SaveKeywords(ctx, t.snapshotLocked()); err != nil {
		delete(t.entries, keyword)
		t.order = t.order[:len(t.order)-1]
		return fmt.Errorf("persist keywords: %w", err)
	}

	return nil
}

// Edit replaces the response and required level of an existing keyword and
// records who edited it. The level string must parse into one of the four
// enumerated levels; invalid strings are rejected, not coerced.
func (t *Table) Edit(ctx context.Context, keyword, levelStr, response string, editorID int64, editedAt time.Time) error {
	level, err := models.ParseLevel(levelStr)
	if err != nil {
		return err
	}
	if response == "" {
		return fmt.Errorf("%w: response must not be empty", models.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prev, exists := t.entries[keyword]
	if !exists {
		return fmt.Errorf("%w: keyword %q", models.ErrNotFound, keyword)
	}

	t.entries[keyword] = models.KeywordEntry{
		Response:  response,
		Level:     level,
		UpdatedBy: editorID,
		UpdatedAt: editedAt,
	}

	if err := t.store.SaveKeywords(ctx, t.snapshotLocked()); err != nil {
		t.entries[keyword] = prev
		return fmt.Errorf("persist keywords: %w", err)
	}

	return nil
}

// Delete removes a keyword and returns the prior entry so callers can
// report what was deleted.
func (t *Table) Delete(ctx context.Context, keyword string) (models.KeywordEntry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, exists := t.entries[keyword]
	if !exists {
		return models.KeywordEntry{}, fmt.Errorf("%w: keyword %q", models.ErrNotFound, keyword)
	}

	pos := -1
	for i, key := range t.order {
		if key == keyword {
			pos = i
			break
		}
	}

	delete(t.entries, keyword)
	t.order = append(t.order[:pos], t.order[pos+1:]...)

	if err := t.store.SaveKeywords(ctx, t.snapshotLocked()); err != nil {
		t.entries[keyword] = prev
		t.order = append(t.order, "")
		copy(t.order[pos+1:], t.order[pos:])
		t.order[pos] = keyword
		return models.KeywordEntry{}, fmt.Errorf("persist keywords: %w", err)
	}

	return prev, nil
}

// List returns a snapshot of all keywords in table order.
func (t *Table) List() []models.KeywordRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked().Records
}

// Len returns the number of registered keywords.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Match returns the first keyword in table order whose lower-cased form is
// a substring of the lower-cased text. Later keywords are not checked once
// one matches. A stored required level that does not parse degrades to
// PUBLIC with a warning instead of failing message handling.
func (t *Table) Match(text string) (string, models.KeywordEntry, bool) {
	lower := strings.ToLower(text)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, keyword := range t.order {
		if !strings.Contains(lower, strings.ToLower(keyword)) {
			continue
		}

		entry := t.entries[keyword]
		level, err := models.ParseLevel(string(entry.Level))
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"keyword": keyword,
				"level":   entry.Level,
			}).Warn("Invalid stored permission level, falling back to PUBLIC")
			level = models.LevelPublic
		}
		entry.Level = level

		return keyword, entry, true
	}

	return "", models.KeywordEntry{}, false
}

func (t *Table) snapshotLocked() *models.KeywordData {
	data := &models.KeywordData{Records: make([]models.KeywordRecord, 0, len(t.order))}
	for _, keyword := range t.order {
		data.Records = append(data.Records, models.KeywordRecord{
			Keyword:      keyword,
			KeywordEntry: t.entries[keyword],
		})
	}
	return data
}
