package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakil5281/HrHub-sub001/internal/rbac"
)

type fakeCatalog struct {
	perms map[string]rbac.Permission
}

func (c *fakeCatalog) GetByCode(ctx context.Context, code string) (rbac.Permission, error) {
	p, ok := c.perms[code]
	if !ok {
		return rbac.Permission{}, rbac.ErrNotFound
	}
	return p, nil
}

func (c *fakeCatalog) Create(ctx context.Context, input rbac.PermissionInput) (rbac.Permission, error) {
	p := rbac.Permission{Code: input.Code, Module: input.Module, Action: input.Action}
	c.perms[input.Code] = p
	return p, nil
}

type fakeRoles struct {
	sets map[string][]string
}

func (r *fakeRoles) SetRolePermissions(ctx context.Context, role string, codes []string) ([]string, []string, error) {
	r.sets[role] = codes
	return codes, nil, nil
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDefaultManifestIsValid(t *testing.T) {
	m, err := ParseManifest(defaultManifest)
	require.NoError(t, err)
	assert.Contains(t, m.Roles, "ADMIN")
	assert.NotEmpty(t, m.Users)
}

func TestParseManifestRejectsUnknownCodes(t *testing.T) {
	_, err := ParseManifest([]byte("roles:\n  HR: [PAYROLL.RUN]\n"))
	assert.ErrorContains(t, err, "PAYROLL.RUN")

	_, err = ParseManifest([]byte("users:\n  - email: a@b.c\n"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte("roles: [oops"))
	assert.Error(t, err)
}

func TestLoadManifestHonoursEnv(t *testing.T) {
	t.Setenv("SEED_MANIFEST", "")
	m, err := loadManifest()
	require.NoError(t, err)
	assert.Contains(t, m.Roles, "ADMIN")

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  AUDITOR: [REPORT.VIEW]\n"), 0o600))
	t.Setenv("SEED_MANIFEST", path)
	m, err = loadManifest()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"AUDITOR": {"REPORT.VIEW"}}, m.Roles)

	t.Setenv("SEED_MANIFEST", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = loadManifest()
	assert.Error(t, err)
}

func TestSeedCatalogIsIdempotent(t *testing.T) {
	catalog := &fakeCatalog{perms: map[string]rbac.Permission{}}
	created, err := SeedCatalog(context.Background(), catalog, quiet)
	require.NoError(t, err)
	assert.Equal(t, len(catalogCodes()), created)

	attendance := catalog.perms["EMPLOYEE.ATTENDANCE.VIEW"]
	assert.Equal(t, "EMPLOYEE", attendance.Module)
	assert.Equal(t, "VIEW", attendance.Action)

	created, err = SeedCatalog(context.Background(), catalog, quiet)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestSeedRoles(t *testing.T) {
	roles := &fakeRoles{sets: map[string][]string{}}
	m := Manifest{Roles: map[string][]string{"HR": {"REPORT.VIEW"}, "AUDITOR": {"PERMISSIONS.VIEW"}}}
	require.NoError(t, SeedRoles(context.Background(), roles, m, quiet))
	assert.Equal(t, []string{"REPORT.VIEW"}, roles.sets["HR"])
	assert.Len(t, roles.sets, 2)
}
