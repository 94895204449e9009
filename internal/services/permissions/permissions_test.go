package permissions

import (
	"context"
	"testing"

	"github.com/kw-tgbot-go/internal/models"
	"github.com/kw-tgbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID  int64 = 1
	adminID  int64 = 2
	memberID int64 = 3
)

// flakyStore fails role saves on demand so rollback behavior is testable.
type flakyStore struct {
	storage.Store
	failSaves bool
}

func (s *flakyStore) SaveRoles(ctx context.Context, roles models.RoleData) error {
	if s.failSaves {
		return models.ErrStoreUnavailable
	}
	return s.Store.SaveRoles(ctx, roles)
}

func newTestEngine(t *testing.T) (*Engine, *flakyStore) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := &flakyStore{Store: storage.NewMemoryStore(log)}
	ctx := context.Background()

	require.NoError(t, store.SaveRoles(ctx, models.RoleData{
		models.UserKey(ownerID): models.LevelOwner,
		models.UserKey(adminID): models.LevelAdmin,
	}))

	engine, err := NewEngine(ctx, store, log)
	require.NoError(t, err)
	return engine, store
}

func TestResolveRoleDefaultsToMember(t *testing.T) {
	engine, _ := newTestEngine(t)

	assert.Equal(t, models.LevelOwner, engine.ResolveRole(ownerID))
	assert.Equal(t, models.LevelAdmin, engine.ResolveRole(adminID))
	assert.Equal(t, models.LevelMember, engine.ResolveRole(99999))
}

func TestHasPermission(t *testing.T) {
	engine, _ := newTestEngine(t)

	// An unassigned user trivially satisfies PUBLIC and MEMBER
	assert.True(t, engine.HasPermission(memberID, models.LevelPublic))
	assert.True(t, engine.HasPermission(memberID, models.LevelMember))
	assert.False(t, engine.HasPermission(memberID, models.LevelAdmin))
	assert.False(t, engine.HasPermission(memberID, models.LevelOwner))

	assert.True(t, engine.HasPermission(adminID, models.LevelAdmin))
	assert.False(t, engine.HasPermission(adminID, models.LevelOwner))
	assert.True(t, engine.HasPermission(ownerID, models.LevelOwner))

	// A corrupt required level ranks as PUBLIC, never failing open for writes
	assert.True(t, engine.HasPermission(memberID, models.PermissionLevel("BOGUS")))
}

func TestSetRoleRequiresAdmin(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	err := engine.SetRole(ctx, memberID, 50, models.LevelAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDenied)

	// No state change on denial, in memory or in the store
	assert.Equal(t, models.LevelMember, engine.ResolveRole(50))
	roles, err := store.LoadRoles(ctx)
	require.NoError(t, err)
	assert.NotContains(t, roles, models.UserKey(50))
}

func TestSetRolePersistsAssignment(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.SetRole(ctx, adminID, 50, models.LevelAdmin))
	assert.Equal(t, models.LevelAdmin, engine.ResolveRole(50))

	roles, err := store.LoadRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LevelAdmin, roles[models.UserKey(50)])
}

func TestSetRoleOwnerPolicy(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// An admin may not grant OWNER
	err := engine.SetRole(ctx, adminID, 50, models.LevelOwner)
	assert.ErrorIs(t, err, models.ErrDenied)

	// Nor demote an existing OWNER
	err = engine.SetRole(ctx, adminID, ownerID, models.LevelMember)
	assert.ErrorIs(t, err, models.ErrDenied)

	// The owner may do both
	require.NoError(t, engine.SetRole(ctx, ownerID, 50, models.LevelOwner))
	require.NoError(t, engine.SetRole(ctx, ownerID, 50, models.LevelMember))
	assert.Equal(t, models.LevelMember, engine.ResolveRole(50))
}

func TestSetRoleRejectsPublic(t *testing.T) {
	engine, _ := newTestEngine(t)

	err := engine.SetRole(context.Background(), ownerID, 50, models.LevelPublic)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSetRoleRollsBackOnSaveFailure(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	store.failSaves = true
	err := engine.SetRole(ctx, ownerID, 50, models.LevelAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	// Memory matches the store: the assignment did not stick
	assert.Equal(t, models.LevelMember, engine.ResolveRole(50))

	store.failSaves = false
	require.NoError(t, engine.SetRole(ctx, ownerID, 50, models.LevelAdmin))
	assert.Equal(t, models.LevelAdmin, engine.ResolveRole(50))
}

func TestNewEngineDropsUnrecognizedRoles(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := storage.NewMemoryStore(log)
	ctx := context.Background()
	require.NoError(t, store.SaveRoles(ctx, models.RoleData{
		"1": models.LevelOwner,
		"2": models.PermissionLevel("GOD"),
		"3": models.LevelPublic, // not assignable as a role
	}))

	engine, err := NewEngine(ctx, store, log)
	require.NoError(t, err)

	assert.Equal(t, models.LevelOwner, engine.ResolveRole(1))
	assert.Equal(t, models.LevelMember, engine.ResolveRole(2))
	assert.Equal(t, models.LevelMember, engine.ResolveRole(3))
}
