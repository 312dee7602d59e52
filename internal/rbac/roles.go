package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RoleStore manages which permissions each role implies.
type RoleStore struct {
	repo RepositoryPort
	cfg  Config
}

// NewRoleStore builds RoleStore.
func NewRoleStore(repo RepositoryPort, cfg Config) *RoleStore {
	return &RoleStore{repo: repo, cfg: cfg.withDefaults()}
}

// Assign attaches a permission to a role. Assigning an existing pair is a successful no-op.
func (s *RoleStore) Assign(ctx context.Context, role, code string) error {
	role, code = NormalizeRole(role), NormalizeCode(code)
	if role == "" || code == "" {
		return fmt.Errorf("%w: role and permission code required", ErrValidation)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if _, err := s.repo.GetPermissionByCode(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: permission %s", ErrNotFound, code)
		}
		return storeError(err)
	}
	inserted, err := s.repo.AssignRolePermission(ctx, role, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: permission %s", ErrNotFound, code)
		}
		return storeError(err)
	}
	if inserted {
		s.cfg.Logger.Debug("role permission assigned", "role", role, "permission", code)
	}
	return nil
}

// Remove detaches a permission from a role and reports whether the pair existed.
func (s *RoleStore) Remove(ctx context.Context, role, code string) (bool, error) {
	role, code = NormalizeRole(role), NormalizeCode(code)
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	removed, err := s.repo.RemoveRolePermission(ctx, role, code)
	if err != nil {
		return false, storeError(err)
	}
	return removed, nil
}

// PermissionsForRole returns the sorted permission codes a role implies.
func (s *RoleStore) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	codes, err := s.repo.ListRolePermissions(ctx, NormalizeRole(role))
	if err != nil {
		return nil, storeError(err)
	}
	return sortedUnique(codes), nil
}

// RolesGrantingPermission returns the sorted roles that imply code.
func (s *RoleStore) RolesGrantingPermission(ctx context.Context, code string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	roles, err := s.repo.ListRolesGranting(ctx, NormalizeCode(code))
	if err != nil {
		return nil, storeError(err)
	}
	return sortedUnique(roles), nil
}

// SetRolePermissions replaces the role's permissions with codes. Unknown codes reject the whole call.
func (s *RoleStore) SetRolePermissions(ctx context.Context, role string, codes []string) (added, removed []string, err error) {
	role = NormalizeRole(role)
	if role == "" {
		return nil, nil, fmt.Errorf("%w: role required", ErrValidation)
	}
	codes = normalizeCodes(codes)

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if _, unknown, err := lookupCodes(ctx, s.repo, codes); err != nil {
		return nil, nil, storeError(err)
	} else if len(unknown) > 0 {
		return nil, nil, fmt.Errorf("%w: unknown permission codes %s", ErrValidation, strings.Join(unknown, ", "))
	}
	added, removed, err = s.repo.SyncRolePermissions(ctx, role, codes)
	if err != nil {
		return nil, nil, storeError(err)
	}
	s.cfg.Logger.Info("role permissions synced", "role", role, "added", len(added), "removed", len(removed))
	return sortedUnique(added), sortedUnique(removed), nil
}

// lookupCodes fetches the catalog rows for codes and lists the ones the catalog does not know.
func lookupCodes(ctx context.Context, repo CatalogRepository, codes []string) (map[string]Permission, []string, error) {
	found := make(map[string]Permission, len(codes))
	if len(codes) == 0 {
		return found, nil, nil
	}
	perms, err := repo.PermissionsByCodes(ctx, codes)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range perms {
		found[p.Code] = p
	}
	var unknown []string
	for _, code := range codes {
		if _, ok := found[code]; !ok {
			unknown = append(unknown, code)
		}
	}
	return found, unknown, nil
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func sortedUnique(values []string) []string {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
