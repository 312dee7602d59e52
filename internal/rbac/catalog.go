package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// CatalogService owns the set of defined permissions.
type CatalogService struct {
	repo     RepositoryPort
	validate *validator.Validate
	cfg      Config
}

// NewCatalogService builds CatalogService.
func NewCatalogService(repo RepositoryPort, cfg Config) *CatalogService {
	return &CatalogService{repo: repo, validate: newValidator(), cfg: cfg.withDefaults()}
}

// Create inserts a new permission. Codes are compared case-insensitively.
func (s *CatalogService) Create(ctx context.Context, input PermissionInput) (Permission, error) {
	input.Code = NormalizeCode(input.Code)
	input.Module = strings.TrimSpace(input.Module)
	input.Action = strings.TrimSpace(input.Action)
	input.ResourceScope = NormalizeResource(input.ResourceScope)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validate.Struct(input); err != nil {
		return Permission{}, validationError(err)
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	now := s.cfg.Now()
	perm, err := s.repo.CreatePermission(ctx, Permission{
		Code:          input.Code,
		Module:        input.Module,
		Action:        input.Action,
		ResourceScope: input.ResourceScope,
		IsActive:      active,
		Description:   input.Description,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return Permission{}, fmt.Errorf("%w: %s", ErrDuplicateCode, input.Code)
		}
		return Permission{}, storeError(err)
	}
	return perm, nil
}

// Update edits an existing permission. Once referenced, only description and active flag may change.
func (s *CatalogService) Update(ctx context.Context, id int64, update PermissionUpdate) (Permission, error) {
	if update.Code != nil {
		code := NormalizeCode(*update.Code)
		update.Code = &code
	}
	if err := s.validate.Struct(update); err != nil {
		return Permission{}, validationError(err)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	current, err := s.repo.GetPermissionByID(ctx, id)
	if err != nil {
		return Permission{}, s.lookupError(err, fmt.Sprintf("permission %d", id))
	}

	next := current
	if update.Code != nil {
		next.Code = *update.Code
	}
	if update.Module != nil {
		next.Module = strings.TrimSpace(*update.Module)
	}
	if update.Action != nil {
		next.Action = strings.TrimSpace(*update.Action)
	}
	if update.ResourceScope != nil {
		next.ResourceScope = NormalizeResource(*update.ResourceScope)
	}
	if update.Description != nil {
		next.Description = strings.TrimSpace(*update.Description)
	}
	if update.IsActive != nil {
		next.IsActive = *update.IsActive
	}
	if next.Module == "" || next.Action == "" {
		return Permission{}, fmt.Errorf("%w: module and action required", ErrValidation)
	}

	identityChanged := next.Code != current.Code ||
		next.Module != current.Module ||
		next.Action != current.Action ||
		next.ResourceScope != current.ResourceScope
	if identityChanged {
		if err := s.ensureUnreferenced(ctx, current); err != nil {
			return Permission{}, err
		}
	}

	next.UpdatedAt = s.cfg.Now()
	updated, err := s.repo.UpdatePermission(ctx, next)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return Permission{}, fmt.Errorf("%w: %s", ErrDuplicateCode, next.Code)
		}
		return Permission{}, s.lookupError(err, fmt.Sprintf("permission %d", id))
	}
	return updated, nil
}

// Delete removes a permission that no role or user override references.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	current, err := s.repo.GetPermissionByID(ctx, id)
	if err != nil {
		return s.lookupError(err, fmt.Sprintf("permission %d", id))
	}
	if err := s.ensureUnreferenced(ctx, current); err != nil {
		return err
	}
	if err := s.repo.DeletePermission(ctx, id); err != nil {
		return s.lookupError(err, fmt.Sprintf("permission %d", id))
	}
	return nil
}

// GetByID fetches a permission by id.
func (s *CatalogService) GetByID(ctx context.Context, id int64) (Permission, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	perm, err := s.repo.GetPermissionByID(ctx, id)
	if err != nil {
		return Permission{}, s.lookupError(err, fmt.Sprintf("permission %d", id))
	}
	return perm, nil
}

// GetByCode fetches a permission by its code.
func (s *CatalogService) GetByCode(ctx context.Context, code string) (Permission, error) {
	code = NormalizeCode(code)
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	perm, err := s.repo.GetPermissionByCode(ctx, code)
	if err != nil {
		return Permission{}, s.lookupError(err, "permission "+code)
	}
	return perm, nil
}

// ListByModule returns every permission of a module ordered by code.
func (s *CatalogService) ListByModule(ctx context.Context, module string) ([]Permission, error) {
	return s.listAll(ctx, PermissionFilter{Module: strings.TrimSpace(module)})
}

// ListByAction returns every permission with the given action ordered by module and code.
func (s *CatalogService) ListByAction(ctx context.Context, action string) ([]Permission, error) {
	return s.listAll(ctx, PermissionFilter{Action: strings.TrimSpace(action)})
}

// List returns one page of the catalog.
func (s *CatalogService) List(ctx context.Context, filter PermissionFilter, page, pageSize int) (PermissionPage, error) {
	p := shared.NewPagination(page, pageSize, 0)

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	items, total, err := s.repo.ListPermissions(ctx, filter, p.PerPage, p.Offset())
	if err != nil {
		return PermissionPage{}, storeError(err)
	}
	if items == nil {
		items = []Permission{}
	}
	return PermissionPage{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

func (s *CatalogService) listAll(ctx context.Context, filter PermissionFilter) ([]Permission, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	items, _, err := s.repo.ListPermissions(ctx, filter, 0, 0)
	if err != nil {
		return nil, storeError(err)
	}
	return items, nil
}

func (s *CatalogService) ensureUnreferenced(ctx context.Context, perm Permission) error {
	roles, err := s.repo.ListRolesGranting(ctx, perm.Code)
	if err != nil {
		return storeError(err)
	}
	overrides, err := s.repo.CountUserOverrides(ctx, perm.Code)
	if err != nil {
		return storeError(err)
	}
	if len(roles) == 0 && overrides == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s is assigned to roles [%s] and %d user overrides",
		ErrInUse, perm.Code, strings.Join(roles, ", "), overrides)
}

func (s *CatalogService) lookupError(err error, what string) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return storeError(err)
}
