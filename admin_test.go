package shield_test

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shield "github.com/goliatone/go-shield"
)

func TestRevokeLastAdmin(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	first := f.register("a1@x.com", "admin")
	second := f.register("a2@x.com", "admin")

	require.NoError(t, f.stack.Admin.RevokeRole(f.ctx, first.ID, "admin"))

	err := f.stack.Admin.RevokeRole(f.ctx, second.ID, "admin")
	require.ErrorIs(t, err, shield.ErrLastAdmin)
	assert.True(t, shield.IsProtectedViolation(err))
	assert.True(t, f.authz(second.ID).HasRole("admin"))
}

func TestDeleteLastAdmin(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	first := f.register("a1@x.com", "admin")
	second := f.register("a2@x.com", "admin")

	require.NoError(t, f.stack.Admin.DeleteUser(f.ctx, first.ID))

	err := f.stack.Admin.DeleteUser(f.ctx, second.ID)
	require.ErrorIs(t, err, shield.ErrLastAdmin)

	_, err = f.stack.Repos.Users().FindByID(f.ctx, second.ID)
	assert.NoError(t, err)
}

func TestDeleteAdminRoleWithHolders(t *testing.T) {
	cfg := testConfig(shield.DriverOpaque)
	cfg.ProtectedRoleSlugs = nil
	f := newFixture(t, cfg)
	owner := f.register("a1@x.com", "admin")
	admin := f.role("admin")

	err := f.stack.Admin.DeleteRole(f.ctx, admin.ID)
	require.ErrorIs(t, err, shield.ErrLastAdmin)
	assert.True(t, f.authz(owner.ID).HasRole("admin"))

	_, err = f.stack.Admin.FindRole(f.ctx, "admin")
	assert.NoError(t, err)
}

func TestRevokeNonAdminRoleSkipsGuard(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	assert.Equal(t, []string{"user"}, f.authz(user.ID).Roles)

	require.NoError(t, f.stack.Admin.RevokeRole(f.ctx, user.ID, "user"))
	assert.Empty(t, f.authz(user.ID).Roles)

	// revoking a role the user does not hold is a no-op
	require.NoError(t, f.stack.Admin.RevokeRole(f.ctx, user.ID, "user"))
}

func TestProtectedRoleRename(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	admin := f.role("admin")

	slug := "superuser"
	_, err := f.stack.Admin.UpdateRole(f.ctx, admin.ID, shield.RoleUpdate{Slug: &slug})
	require.ErrorIs(t, err, shield.ErrProtectedResource)

	name := "Super Administrator"
	updated, err := f.stack.Admin.UpdateRole(f.ctx, admin.ID, shield.RoleUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, "admin", updated.Slug)

	same := "admin"
	_, err = f.stack.Admin.UpdateRole(f.ctx, admin.ID, shield.RoleUpdate{Slug: &same})
	assert.NoError(t, err)

	err = f.stack.Admin.DeleteRole(f.ctx, admin.ID)
	assert.ErrorIs(t, err, shield.ErrProtectedResource)
}

func TestRoleCRUD(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))

	role, err := f.stack.Admin.CreateRole(f.ctx, shield.RoleInput{Name: "Editor", Slug: "editor"})
	require.NoError(t, err)

	_, err = f.stack.Admin.CreateRole(f.ctx, shield.RoleInput{Name: "Editor", Slug: "editor"})
	assert.ErrorIs(t, err, shield.ErrDuplicate)

	_, err = f.stack.Admin.CreateRole(f.ctx, shield.RoleInput{Name: "Bad", Slug: "Not A Slug"})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", shield.ErrorCode(err))

	slug := "writer"
	updated, err := f.stack.Admin.UpdateRole(f.ctx, role.ID, shield.RoleUpdate{Slug: &slug})
	require.NoError(t, err)
	assert.Equal(t, "writer", updated.Slug)

	roles, err := f.stack.Admin.ListRoles(f.ctx)
	require.NoError(t, err)
	slugs := make([]string, len(roles))
	for i, r := range roles {
		slugs[i] = r.Slug
	}
	assert.Equal(t, []string{"admin", "user", "writer"}, slugs)

	require.NoError(t, f.stack.Admin.DeleteRole(f.ctx, role.ID))
	_, err = f.stack.Admin.FindRole(f.ctx, "writer")
	assert.ErrorIs(t, err, shield.ErrRoleNotFound)

	err = f.stack.Admin.DeleteRole(f.ctx, uuid.New())
	assert.ErrorIs(t, err, shield.ErrRoleNotFound)
}

func TestAssignRoleLookups(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")

	err := f.stack.Admin.AssignRole(f.ctx, user.ID, "ghost")
	assert.ErrorIs(t, err, shield.ErrRoleNotFound)

	err = f.stack.Admin.AssignRole(f.ctx, uuid.New(), "user")
	assert.ErrorIs(t, err, shield.ErrUserNotFound)

	err = f.stack.Admin.AttachPrivilege(f.ctx, "user", "ghost")
	assert.ErrorIs(t, err, shield.ErrPrivilegeNotFound)
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))

	user, err := f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{
		Name:     "Ada",
		Email:    "Ada@Example.com",
		Mobile:   "(415) 555-2671",
		Password: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	require.NotNil(t, user.Mobile)
	assert.Equal(t, "+14155552671", *user.Mobile)
	assert.False(t, user.IsVerified())
	assert.Equal(t, []string{"user"}, f.authz(user.ID).Roles)
	assert.Contains(t, f.sink.Types(), shield.ActivityEventUserRegistered)

	_, err = f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{Name: "Ada", Email: "ada@example.com", Password: testPassword})
	assert.ErrorIs(t, err, shield.ErrDuplicate)

	_, err = f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{Name: "Short", Email: "short@example.com", Password: "123"})
	assert.Equal(t, "VALIDATION_FAILED", shield.ErrorCode(err))
}

func TestRegisterUserPasswordBytes(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))

	// 37 runes, 74 bytes
	_, err := f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{Name: "Long", Email: "long@example.com", Password: strings.Repeat("é", 37)})
	assert.Equal(t, "VALIDATION_FAILED", shield.ErrorCode(err))

	_, err = f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{Name: "Fits", Email: "fits@example.com", Password: strings.Repeat("é", 36)})
	require.NoError(t, err)

	_, err = f.stack.Orchestrator.Login(f.ctx, shield.Credentials{"email": "fits@example.com", shield.CredentialPassword: strings.Repeat("é", 36)})
	assert.NoError(t, err)
}

func TestRegisterUserWithHashIDs(t *testing.T) {
	cfg := testConfig(shield.DriverOpaque)
	cfg.HashIDUserIDs = true
	f := newFixture(t, cfg)

	user, err := f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{Name: "Ada", Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)

	want, err := hashid.NewUUID("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, want, user.ID)
}

func TestRegisterUserWithoutDefaultRole(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	require.NoError(t, f.stack.Admin.PurgeRoles(f.ctx))

	_, err := f.stack.Admin.RegisterUser(f.ctx, shield.NewUser{Name: "Ada", Email: "ada@example.com", Password: testPassword})
	require.ErrorIs(t, err, shield.ErrRoleNotFound)

	_, err = f.stack.Repos.Users().FindByField(f.ctx, "email", "ada@example.com")
	assert.ErrorIs(t, err, shield.ErrUserNotFound)
}

func TestSeedIsIdempotent(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	spy := &spyInvalidator{}
	admin := shield.NewAdmin(f.cfg, f.stack.Repos, spy, f.stack.Hasher)

	data := shield.SeedData{
		Privileges: []shield.PrivilegeInput{{Name: "Write posts", Slug: "posts.write"}},
		Roles: []shield.SeedRole{
			{Name: "Editor", Slug: "editor", Privileges: []string{"posts.write"}},
		},
	}

	require.NoError(t, admin.Seed(f.ctx, data))
	assert.Equal(t, 2, spy.handled)

	require.NoError(t, admin.Seed(f.ctx, data))
	assert.Equal(t, 2, spy.handled)

	user := f.register("u1@x.com", "editor")
	assert.Equal(t, []string{"posts.write"}, f.authz(user.ID).Privileges)
}

func TestUserStateChangesLeaveCacheAlone(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	spy := &spyInvalidator{}
	admin := shield.NewAdmin(f.cfg, f.stack.Repos, spy, f.stack.Hasher)

	suspended, err := admin.SuspendUser(f.ctx, user.ID, "fraud")
	require.NoError(t, err)
	assert.True(t, suspended.IsSuspended())
	assert.Equal(t, "fraud", suspended.SuspensionReason)

	restored, err := admin.UnsuspendUser(f.ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsSuspended())

	assert.Zero(t, spy.handled)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	next := "N3w-passw0rd"

	err := f.stack.Admin.ChangePassword(f.ctx, user.ID, shield.PasswordChange{Current: "wrong-password", Next: next})
	require.ErrorIs(t, err, shield.ErrInvalidCredentials)

	err = f.stack.Admin.ChangePassword(f.ctx, user.ID, shield.PasswordChange{Current: testPassword, Next: "short"})
	assert.Equal(t, "VALIDATION_FAILED", shield.ErrorCode(err))

	require.NoError(t, f.stack.Admin.ChangePassword(f.ctx, user.ID, shield.PasswordChange{Current: testPassword, Next: next}))
	assert.Contains(t, f.sink.Types(), shield.ActivityEventPasswordChanged)

	_, err = f.stack.Orchestrator.Login(f.ctx, shield.Credentials{"email": "u1@x.com", shield.CredentialPassword: testPassword})
	require.ErrorIs(t, err, shield.ErrInvalidCredentials)

	_, err = f.stack.Orchestrator.Login(f.ctx, shield.Credentials{"email": "u1@x.com", shield.CredentialPassword: next})
	assert.NoError(t, err)

	err = f.stack.Admin.ChangePassword(f.ctx, uuid.New(), shield.PasswordChange{Current: testPassword, Next: next})
	assert.ErrorIs(t, err, shield.ErrUserNotFound)
}

type spyInvalidator struct {
	handled    int
	cleared    int
	failHandle func(call int) bool
	failClear  bool
	events     []shield.MutationEvent
}

func (s *spyInvalidator) Handle(_ context.Context, event shield.MutationEvent) error {
	s.handled++
	s.events = append(s.events, event)
	if s.failHandle != nil && s.failHandle(s.handled) {
		return assert.AnError
	}
	return nil
}

func (s *spyInvalidator) InvalidateAll(context.Context) error {
	s.cleared++
	if s.failClear {
		return assert.AnError
	}
	return nil
}

func TestMutationRollsBackWhenInvalidationFails(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	spy := &spyInvalidator{failHandle: func(int) bool { return true }}
	admin := shield.NewAdmin(f.cfg, f.stack.Repos, spy, f.stack.Hasher)

	_, err := admin.CreateRole(f.ctx, shield.RoleInput{Name: "Editor", Slug: "editor"})
	require.ErrorIs(t, err, shield.ErrCacheInvalidation)

	_, err = f.stack.Admin.FindRole(f.ctx, "editor")
	assert.ErrorIs(t, err, shield.ErrRoleNotFound)
}

func TestMutationFallsBackToClearAfterCommit(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	_, err := f.stack.Admin.CreateRole(f.ctx, shield.RoleInput{Name: "Editor", Slug: "editor"})
	require.NoError(t, err)

	spy := &spyInvalidator{failHandle: func(call int) bool { return call == 2 }}
	admin := shield.NewAdmin(f.cfg, f.stack.Repos, spy, f.stack.Hasher)

	require.NoError(t, admin.AssignRole(f.ctx, user.ID, "editor"))
	assert.Equal(t, 2, spy.handled)
	assert.Equal(t, 1, spy.cleared)
	require.Len(t, spy.events, 2)
	assert.Equal(t, shield.MutationRoleAssigned, spy.events[0].Kind)
	assert.Equal(t, []uuid.UUID{user.ID}, spy.events[0].UserIDs)

	has, err := f.stack.Repos.Roles().HasUserTx(f.ctx, f.db, user.ID, f.role("editor").ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestMutationReportsFailedClear(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	_, err := f.stack.Admin.CreateRole(f.ctx, shield.RoleInput{Name: "Editor", Slug: "editor"})
	require.NoError(t, err)

	spy := &spyInvalidator{failHandle: func(call int) bool { return call == 2 }, failClear: true}
	admin := shield.NewAdmin(f.cfg, f.stack.Repos, spy, f.stack.Hasher)

	err = admin.AssignRole(f.ctx, user.ID, "editor")
	assert.ErrorIs(t, err, shield.ErrCacheInvalidation)
}

func TestNoOpMutationSkipsInvalidation(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")
	spy := &spyInvalidator{}
	admin := shield.NewAdmin(f.cfg, f.stack.Repos, spy, f.stack.Hasher)

	require.NoError(t, admin.AssignRole(f.ctx, user.ID, "user"))
	assert.Zero(t, spy.handled)
}

func TestPrivilegeCRUD(t *testing.T) {
	f := newFixture(t, testConfig(shield.DriverOpaque))
	user := f.register("u1@x.com")

	priv, err := f.stack.Admin.CreatePrivilege(f.ctx, shield.PrivilegeInput{Name: "Read posts", Slug: "posts.read"})
	require.NoError(t, err)
	_, err = f.stack.Admin.CreatePrivilege(f.ctx, shield.PrivilegeInput{Name: "Read posts", Slug: "posts.read"})
	assert.ErrorIs(t, err, shield.ErrDuplicate)

	require.NoError(t, f.stack.Admin.AttachPrivilege(f.ctx, "user", "posts.read"))
	assert.Equal(t, []string{"posts.read"}, f.authz(user.ID).Privileges)

	name := "View posts"
	updated, err := f.stack.Admin.UpdatePrivilege(f.ctx, priv.ID, shield.PrivilegeUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	list, err := f.stack.Admin.ListPrivileges(f.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "posts.read", list[0].Slug)

	require.NoError(t, f.stack.Admin.PurgePrivileges(f.ctx))
	list, err = f.stack.Admin.ListPrivileges(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.authz(user.ID).Privileges)
	assert.Equal(t, []string{"user"}, f.authz(user.ID).Roles)
}
