package models

import (
	"fmt"
	"strings"
)

// PermissionLevel gates who may trigger a keyword or run an administrative
// command. Levels form a strict total order PUBLIC < MEMBER < ADMIN < OWNER.
// PUBLIC is only meaningful as a keyword's required level ("anyone may
// trigger this"); it is never assignable as a user role.
type PermissionLevel string

const (
	LevelPublic PermissionLevel = "PUBLIC"
	LevelMember PermissionLevel = "MEMBER"
	LevelAdmin  PermissionLevel = "ADMIN"
	LevelOwner  PermissionLevel = "OWNER"
)

// Rank returns the ordinal of the level in the hierarchy. Unrecognized
// levels rank as PUBLIC so a corrupt stored requirement can never fail a
// permission check open for write actions; the caller decides whether to
// reject or coerce before ranking.
func (l PermissionLevel) Rank() int {
	switch l {
	case LevelMember:
		return 1
	case LevelAdmin:
		return 2
	case LevelOwner:
		return 3
	default:
		return 0
	}
}

// Satisfies reports whether a holder of level l may trigger something
// requiring the given level.
func (l PermissionLevel) Satisfies(required PermissionLevel) bool {
	return l.Rank() >= required.Rank()
}

// Assignable reports whether the level may be held by a user.
func (l PermissionLevel) Assignable() bool {
	return l == LevelMember || l == LevelAdmin || l == LevelOwner
}

// ParseLevel parses s into one of the four enumerated levels. Matching is
// case-insensitive; anything else is ErrInvalidInput. Call sites choose
// between rejecting the error (mutating paths) and coercing to PUBLIC
// (reading a stored keyword at match time).
func ParseLevel(s string) (PermissionLevel, error) {
	switch PermissionLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelPublic:
		return LevelPublic, nil
	case LevelMember:
		return LevelMember, nil
	case LevelAdmin:
		return LevelAdmin, nil
	case LevelOwner:
		return LevelOwner, nil
	default:
		return "", fmt.Errorf("%w: unknown permission level %q", ErrInvalidInput, s)
	}
}
