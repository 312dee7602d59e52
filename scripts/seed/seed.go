package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shakil5281/HrHub-sub001/internal/rbac"
	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// Manifest is the seed data read from roles.yaml.
type Manifest struct {
	Roles map[string][]string `yaml:"roles"`
	Users []UserSeed          `yaml:"users"`
}

// UserSeed is one user row with its role memberships.
type UserSeed struct {
	ID    string   `yaml:"id"`
	Email string   `yaml:"email"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// ParseManifest decodes and checks a manifest.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("seed: parse manifest: %w", err)
	}
	known := make(map[string]bool)
	for _, code := range catalogCodes() {
		known[code] = true
	}
	for role, codes := range m.Roles {
		for _, code := range codes {
			if !known[rbac.NormalizeCode(code)] {
				return Manifest{}, fmt.Errorf("seed: role %s references unknown permission %s", role, code)
			}
		}
	}
	for _, u := range m.Users {
		if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" {
			return Manifest{}, errors.New("seed: users need id and email")
		}
	}
	return m, nil
}

func catalogCodes() []string {
	var codes []string
	codes = append(codes, shared.CoreScopes()...)
	codes = append(codes, shared.HRScopes()...)
	codes = append(codes, shared.SystemScopes()...)
	return codes
}

// permissionInput derives module and action from the dotted code:
// EMPLOYEE.ATTENDANCE.VIEW belongs to module EMPLOYEE with action VIEW.
func permissionInput(code string) rbac.PermissionInput {
	parts := strings.Split(code, ".")
	return rbac.PermissionInput{
		Code:        code,
		Module:      parts[0],
		Action:      parts[len(parts)-1],
		Description: strings.ToLower(strings.Join(parts, " ")),
	}
}

type catalogWriter interface {
	GetByCode(ctx context.Context, code string) (rbac.Permission, error)
	Create(ctx context.Context, input rbac.PermissionInput) (rbac.Permission, error)
}

type roleWriter interface {
	SetRolePermissions(ctx context.Context, role string, codes []string) ([]string, []string, error)
}

// SeedCatalog creates every declared permission that does not exist yet.
func SeedCatalog(ctx context.Context, catalog catalogWriter, logger *slog.Logger) (int, error) {
	created := 0
	for _, code := range catalogCodes() {
		if _, err := catalog.GetByCode(ctx, code); err == nil {
			continue
		} else if !errors.Is(err, rbac.ErrNotFound) {
			return created, fmt.Errorf("seed: lookup %s: %w", code, err)
		}
		if _, err := catalog.Create(ctx, permissionInput(code)); err != nil {
			if errors.Is(err, rbac.ErrDuplicateCode) {
				continue
			}
			return created, fmt.Errorf("seed: create %s: %w", code, err)
		}
		created++
	}
	logger.Info("catalog seeded", slog.Int("created", created))
	return created, nil
}

// SeedRoles replaces each manifest role's permission set.
func SeedRoles(ctx context.Context, roles roleWriter, m Manifest, logger *slog.Logger) error {
	names := make([]string, 0, len(m.Roles))
	for name := range m.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		added, removed, err := roles.SetRolePermissions(ctx, name, m.Roles[name])
		if err != nil {
			return fmt.Errorf("seed: role %s: %w", name, err)
		}
		logger.Info("role seeded", slog.String("role", name), slog.Int("added", len(added)), slog.Int("removed", len(removed)))
	}
	return nil
}
