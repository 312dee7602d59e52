package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAssignIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.services.Roles.Assign(ctx, "HR", "leave.approve"))
	once, err := f.services.Roles.PermissionsForRole(ctx, "HR")
	require.NoError(t, err)

	require.NoError(t, f.services.Roles.Assign(ctx, "HR", "LEAVE.APPROVE"))
	twice, err := f.services.Roles.PermissionsForRole(ctx, "HR")
	require.NoError(t, err)

	assert.Equal(t, []string{"LEAVE.APPROVE"}, once)
	assert.Equal(t, once, twice)
}

func TestRoleAssignUnknownCode(t *testing.T) {
	f := newFixture()
	err := f.services.Roles.Assign(context.Background(), "HR", "PAYROLL.RUN")
	require.ErrorIs(t, err, ErrNotFound)

	err = f.services.Roles.Assign(context.Background(), " ", "REPORT.VIEW")
	require.ErrorIs(t, err, ErrValidation)
}

func TestRoleRemoveAndReverseLookup(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.services.Roles.Assign(ctx, "MANAGER", "REPORT.VIEW"))
	require.NoError(t, f.services.Roles.Assign(ctx, "HR", "REPORT.VIEW"))

	roles, err := f.services.Roles.RolesGrantingPermission(ctx, "report.view")
	require.NoError(t, err)
	assert.Equal(t, []string{"HR", "MANAGER"}, roles)

	removed, err := f.services.Roles.Remove(ctx, "HR", "REPORT.VIEW")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.services.Roles.Remove(ctx, "HR", "REPORT.VIEW")
	require.NoError(t, err)
	assert.False(t, removed)

	roles, err = f.services.Roles.RolesGrantingPermission(ctx, "REPORT.VIEW")
	require.NoError(t, err)
	assert.Equal(t, []string{"MANAGER"}, roles)
}

func TestSetRolePermissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.services.Roles.Assign(ctx, "HR", "REPORT.VIEW"))
	require.NoError(t, f.services.Roles.Assign(ctx, "HR", "DASHBOARD.VIEW"))

	added, removed, err := f.services.Roles.SetRolePermissions(ctx, "HR", []string{"report.view", "LEAVE.APPROVE", "LEAVE.APPROVE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"LEAVE.APPROVE"}, added)
	assert.Equal(t, []string{"DASHBOARD.VIEW"}, removed)

	codes, err := f.services.Roles.PermissionsForRole(ctx, "HR")
	require.NoError(t, err)
	assert.Equal(t, []string{"LEAVE.APPROVE", "REPORT.VIEW"}, codes)
}

func TestSetRolePermissionsRejectsUnknownCodes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.services.Roles.Assign(ctx, "HR", "REPORT.VIEW"))

	_, _, err := f.services.Roles.SetRolePermissions(ctx, "HR", []string{"LEAVE.APPROVE", "PAYROLL.RUN"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "PAYROLL.RUN")

	codes, err := f.services.Roles.PermissionsForRole(ctx, "HR")
	require.NoError(t, err)
	assert.Equal(t, []string{"REPORT.VIEW"}, codes)
}
