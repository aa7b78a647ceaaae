package authz_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/authz"
)

func TestDefaultCatalogSupersetInvariant(t *testing.T) {
	catalog, err := authz.NewCatalog(authz.DefaultDefinitions())
	require.NoError(t, err)

	roles := catalog.Roles()
	require.Equal(t, []authz.Role{authz.RoleCitizen, authz.RoleOfficer, authz.RoleAdmin, authz.RoleSuperAdmin}, roles)

	for i := 1; i < len(roles); i++ {
		lower := catalog.DefaultPermissions(roles[i-1])
		higher := catalog.DefaultPermissions(roles[i])
		for perm := range lower {
			require.Contains(t, higher, perm, "role %s must include %s from %s", roles[i], perm, roles[i-1])
		}
		require.Less(t, catalog.HierarchyLevel(roles[i-1]), catalog.HierarchyLevel(roles[i]))
	}
}

func TestNewCatalogRejectsSupersetViolation(t *testing.T) {
	defs := []authz.RoleDefinition{
		{Role: authz.RoleCitizen, Level: 1, Permissions: []string{"reports:create"}},
		{Role: authz.RoleOfficer, Level: 2, Permissions: []string{"reports:comment"}},
	}
	_, err := authz.NewCatalog(defs)
	require.Error(t, err)
	var cfgErr *authz.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	t.Run("duplicate role", func(t *testing.T) {
		_, err := authz.NewCatalog([]authz.RoleDefinition{
			{Role: authz.RoleCitizen, Level: 1},
			{Role: authz.RoleCitizen, Level: 2},
		})
		require.Error(t, err)
	})
	t.Run("duplicate level", func(t *testing.T) {
		_, err := authz.NewCatalog([]authz.RoleDefinition{
			{Role: authz.RoleCitizen, Level: 1},
			{Role: authz.RoleOfficer, Level: 1, Permissions: []string{"x"}},
		})
		require.Error(t, err)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := authz.NewCatalog(nil)
		require.Error(t, err)
	})
}

func TestUnknownRoleAnswers(t *testing.T) {
	catalog, err := authz.NewCatalog(authz.DefaultDefinitions())
	require.NoError(t, err)

	require.Empty(t, catalog.DefaultPermissions(authz.Role("ghost")))
	require.Equal(t, -1, catalog.HierarchyLevel(authz.Role("ghost")))
	require.False(t, catalog.IsAtLeast(authz.Role("ghost"), authz.RoleCitizen))
	require.False(t, catalog.IsAtLeast(authz.RoleAdmin, authz.Role("ghost")))
}
