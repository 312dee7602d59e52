package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListRoles(ctx context.Context, id string) ([]string, error)
}

// Directory answers identity questions for the permission resolver.
// Deactivated users still exist but hold no roles.
type Directory struct {
	repo RepositoryPort
}

// NewDirectory builds Directory instance.
func NewDirectory(repo RepositoryPort) *Directory {
	return &Directory{repo: repo}
}

// Exists reports whether the user is known.
func (d *Directory) Exists(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	if _, err := d.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RolesOf returns the roles the user holds. Unknown users yield shared.ErrNotFound.
func (d *Directory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	user, err := d.repo.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, shared.ErrNotFound)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}
	roles, err := d.repo.ListRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			out = append(out, role)
		}
	}
	return out, nil
}
