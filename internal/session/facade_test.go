package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/session"
)

func newFacadeFixture(t *testing.T, principal authz.Principal) (*session.Facade, *managerFixture) {
	t.Helper()
	fx := newManagerFixture(t, session.Config{})
	fx.verifier.principal = principal
	catalog, err := authz.NewCatalog(authz.DefaultDefinitions())
	require.NoError(t, err)
	return session.NewFacade(fx.manager, authz.NewEvaluator(catalog)), fx
}

func TestFacadePermissionQueries(t *testing.T) {
	facade, _ := newFacadeFixture(t, authz.Principal{
		ID:                "u-10",
		Role:              authz.RoleAdmin,
		CustomPermissions: []string{"exports:csv"},
	})
	ctx := context.Background()

	result, err := facade.Login(ctx, "admin@portal.local", "secret", false)
	require.NoError(t, err)
	id := result.Session.ID

	require.True(t, facade.HasPermission(ctx, id, "reports:view:all"))
	require.True(t, facade.HasPermission(ctx, id, "exports:csv"))
	require.False(t, facade.HasPermission(ctx, id, "roles:manage"))
	require.True(t, facade.HasAnyPermission(ctx, id, []string{"roles:manage", "reports:assign"}))
	require.False(t, facade.HasAllPermissions(ctx, id, []string{"reports:assign", "roles:manage"}))

	// Access-list vs hierarchy gating.
	require.False(t, facade.HasAnyRole(ctx, id, []authz.Role{authz.RoleOfficer}))
	require.True(t, facade.MeetsMinimumRole(ctx, id, authz.RoleOfficer))
}

func TestFacadeQueriesDegradeToNoAccess(t *testing.T) {
	facade, _ := newFacadeFixture(t, authz.Principal{ID: "u-11", Role: authz.RoleCitizen})
	ctx := context.Background()

	require.False(t, facade.HasPermission(ctx, "no-such-session", "reports:create"))
	require.False(t, facade.MeetsMinimumRole(ctx, "no-such-session", authz.RoleCitizen))
	require.False(t, facade.HasAnyRole(ctx, "no-such-session", []authz.Role{authz.RoleCitizen}))
}

func TestFacadeQueriesStopAfterLogout(t *testing.T) {
	facade, _ := newFacadeFixture(t, authz.Principal{ID: "u-12", Role: authz.RoleOfficer})
	ctx := context.Background()

	result, err := facade.Login(ctx, "officer@portal.local", "secret", false)
	require.NoError(t, err)
	id := result.Session.ID
	require.True(t, facade.HasPermission(ctx, id, "reports:comment"))

	facade.Logout(ctx, id)
	require.False(t, facade.HasPermission(ctx, id, "reports:comment"))
	valid, err := facade.Validate(ctx, id)
	require.NoError(t, err)
	require.False(t, valid)
}

func TestFacadeExtendAndActivity(t *testing.T) {
	facade, fx := newFacadeFixture(t, authz.Principal{ID: "u-13", Role: authz.RoleCitizen})
	ctx := context.Background()

	result, err := facade.Login(ctx, "citizen@portal.local", "secret", false)
	require.NoError(t, err)
	id := result.Session.ID

	require.NoError(t, facade.RecordActivity(ctx, id))
	require.NoError(t, facade.Extend(ctx, id))

	sess, err := fx.store.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, sess.ExpiresAt.After(result.Session.ExpiresAt))
}
