package rbac

import (
	"strings"
	"time"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// AnyResource is the resource qualifier meaning "every resource".
const AnyResource = ""

// Effect is the outcome a direct user override forces.
type Effect string

const (
	// EffectGrant adds the permission for the user.
	EffectGrant Effect = "GRANT"
	// EffectDeny removes the permission for the user, regardless of roles.
	EffectDeny Effect = "DENY"
)

// Valid reports whether e is a known effect.
func (e Effect) Valid() bool {
	return e == EffectGrant || e == EffectDeny
}

// ParseEffect normalises textual input into an Effect.
func ParseEffect(raw string) (Effect, bool) {
	e := Effect(strings.ToUpper(strings.TrimSpace(raw)))
	if e == "" {
		return EffectGrant, true
	}
	return e, e.Valid()
}

// Source tells where an effective permission came from.
type Source string

const (
	// SourceRole marks permissions implied by a role the user holds.
	SourceRole Source = "ROLE"
	// SourceOverride marks permissions added by a direct grant.
	SourceOverride Source = "OVERRIDE"
)

// Permission represents an atomic capability.
type Permission struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Module        string    `json:"module"`
	Action        string    `json:"action"`
	ResourceScope string    `json:"resource_scope,omitempty"`
	IsActive      bool      `json:"is_active"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PermissionInput carries the fields for a new catalog entry.
type PermissionInput struct {
	Code          string `json:"code" validate:"required,max=128,permcode"`
	Module        string `json:"module" validate:"required,max=64"`
	Action        string `json:"action" validate:"required,max=64"`
	ResourceScope string `json:"resource_scope" validate:"max=128"`
	Description   string `json:"description" validate:"max=512"`
	IsActive      *bool  `json:"is_active"`
}

// PermissionUpdate carries optional edits. Nil fields stay unchanged.
type PermissionUpdate struct {
	Code          *string `json:"code" validate:"omitempty,max=128,permcode"`
	Module        *string `json:"module" validate:"omitempty,max=64"`
	Action        *string `json:"action" validate:"omitempty,max=64"`
	ResourceScope *string `json:"resource_scope" validate:"omitempty,max=128"`
	Description   *string `json:"description" validate:"omitempty,max=512"`
	IsActive      *bool   `json:"is_active"`
}

// PermissionFilter narrows catalog listings.
type PermissionFilter struct {
	Module   string
	Action   string
	Search   string
	IsActive *bool
}

// PermissionPage is one page of catalog entries.
type PermissionPage struct {
	Items      []Permission      `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// RoleAssignment ties a permission to a role.
type RoleAssignment struct {
	Role           string    `json:"role"`
	PermissionCode string    `json:"permission_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// Override is a direct per-user grant or denial.
type Override struct {
	UserID         string    `json:"user_id"`
	PermissionCode string    `json:"permission_code"`
	Effect         Effect    `json:"effect"`
	Resource       string    `json:"resource,omitempty"`
	AssignedBy     string    `json:"assigned_by"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// Key identifies the override slot the row occupies for its user.
func (o Override) Key() OverrideKey {
	return OverrideKey{Code: o.PermissionCode, Resource: o.Resource}
}

// OverrideKey is the (permission, resource) pair a user holds at most one override for.
type OverrideKey struct {
	Code     string
	Resource string
}

// OverrideInput is one requested override inside a bulk call.
type OverrideInput struct {
	PermissionCode string `json:"permission_code" validate:"required,max=128"`
	Effect         Effect `json:"effect"`
	Resource       string `json:"resource" validate:"max=128"`
}

// OverridePage is one page of a user's raw overrides.
type OverridePage struct {
	Items      []Override        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ChangeSet describes what a mutation did to a user's overrides.
type ChangeSet struct {
	Added     []Override `json:"added"`
	Updated   []Override `json:"updated"`
	Removed   []Override `json:"removed"`
	Unchanged int        `json:"unchanged"`
}

// Empty reports whether nothing was written.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// EffectivePermission is one entry of a user's computed permission set.
type EffectivePermission struct {
	Permission
	Resource          string   `json:"resource,omitempty"`
	Source            Source   `json:"source"`
	ExcludedResources []string `json:"excluded_resources,omitempty"`
}

// Covers reports whether the entry applies to resource.
func (e EffectivePermission) Covers(resource string) bool {
	if e.Resource == resource {
		return true
	}
	if e.Resource != AnyResource {
		return false
	}
	for _, excluded := range e.ExcludedResources {
		if excluded == resource {
			return false
		}
	}
	return true
}

// Summary bundles everything that feeds a user's effective permissions.
type Summary struct {
	UserID    string                `json:"user_id"`
	Roles     []string              `json:"roles"`
	Overrides []Override            `json:"overrides"`
	Effective []EffectivePermission `json:"effective"`
}

// Reason explains a Decision.
type Reason string

const (
	ReasonRoleGrant         Reason = "role_grant"
	ReasonOverrideGrant     Reason = "override_grant"
	ReasonDenied            Reason = "denied_by_override"
	ReasonNoGrant           Reason = "no_grant"
	ReasonUnknownPermission Reason = "unknown_permission"
)

// Decision is the outcome of a point permission check.
type Decision struct {
	UserID         string `json:"user_id"`
	PermissionCode string `json:"permission_code"`
	Resource       string `json:"resource,omitempty"`
	Allowed        bool   `json:"allowed"`
	Reason         Reason `json:"reason"`
}

// NormalizeCode trims and upper-cases a permission code so comparisons are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeRole trims a role identifier.
func NormalizeRole(role string) string {
	return strings.TrimSpace(role)
}

// NormalizeResource trims a resource qualifier. "*" and "any" are accepted spellings of AnyResource.
func NormalizeResource(resource string) string {
	resource = strings.TrimSpace(resource)
	if resource == "*" || strings.EqualFold(resource, "any") {
		return AnyResource
	}
	return resource
}
