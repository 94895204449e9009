package permissions

import (
	"context"
	"fmt"
	"sync"

	"github.com/kw-tgbot-go/internal/models"
	"github.com/kw-tgbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// Engine resolves user roles and decides whether a role satisfies a
// required permission level. It holds the authoritative working copy of
// the role dataset and writes through to the store on every mutation.
type Engine struct {
	store  storage.Store
	logger *logrus.Logger

	mu    sync.RWMutex
	roles models.RoleData
}

// NewEngine loads the role dataset from the store. Stored levels that do
// not parse are dropped with a warning; a dropped user falls back to the
// MEMBER default, which is the same effective rank an unrecognized role
// string would have carried.
func NewEngine(ctx context.Context, store storage.Store, logger *logrus.Logger) (*Engine, error) {
	roles, err := store.LoadRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	for key, level := range roles {
		if _, err := models.ParseLevel(string(level)); err != nil || !level.Assignable() {
			logger.WithFields(logrus.Fields{
				"user_id": key,
				"level":   level,
			}).Warn("Dropping unrecognized stored role")
			delete(roles, key)
		}
	}

	return &Engine{store: store, logger: logger, roles: roles}, nil
}

// ResolveRole returns the user's assigned role, or MEMBER when the user
// has no assignment. It never fails.
func (e *Engine) ResolveRole(userID int64) models.PermissionLevel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolveLocked(userID)
}

func (e *Engine) resolveLocked(userID int64) models.PermissionLevel {
	if level, ok := e.roles[models.UserKey(userID)]; ok {
		return level
	}
	return models.LevelMember
}

// HasPermission reports whether the user's resolved role satisfies the
// required level. Pure read, no mutation.
func (e *Engine) HasPermission(userID int64, required models.PermissionLevel) bool {
	return e.ResolveRole(userID).Satisfies(required)
}

// SetRole assigns a role to the target user. The acting user must rank at
// least ADMIN; granting OWNER, or changing the role of a current OWNER,
// additionally requires the acting user to be OWNER. The assignment is
// persisted before SetRole returns; a failed persist is rolled back.
func (e *Engine) SetRole(ctx context.Context, actingUserID, targetUserID int64, level models.PermissionLevel) error {
	if !level.Assignable() {
		return fmt.Errorf("%w: level %q is not assignable", models.ErrInvalidInput, level)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acting := e.resolveLocked(actingUserID)
	if !acting.Satisfies(models.LevelAdmin) {
		return fmt.Errorf("%w: role assignment requires %s", models.ErrDenied, models.LevelAdmin)
	}

	key := models.UserKey(targetUserID)
	prev, hadPrev := e.roles[key]
	if (level == models.LevelOwner || prev == models.LevelOwner) && acting != models.LevelOwner {
		return fmt.Errorf("%w: only %s may grant or revoke %s", models.ErrDenied, models.LevelOwner, models.LevelOwner)
	}

	e.roles[key] = level
	if err := e.store.SaveRoles(ctx, e.roles); err != nil {
		if hadPrev {
			e.roles[key] = prev
		} else {
			delete(e.roles, key)
		}
		return fmt.Errorf("persist roles: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"acting_user": actingUserID,
		"target_user": targetUserID,
		"level":       level,
	}).Info("Role assigned")

	return nil
}
