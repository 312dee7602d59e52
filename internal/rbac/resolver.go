package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// Resolver computes effective permissions from roles and direct overrides.
// It keeps no state between calls; every read recomputes from the stores.
type Resolver struct {
	repo     RepositoryPort
	identity IdentityProvider
	cfg      Config
}

// NewResolver builds Resolver.
func NewResolver(repo RepositoryPort, identity IdentityProvider, cfg Config) *Resolver {
	return &Resolver{repo: repo, identity: identity, cfg: cfg.withDefaults()}
}

// resolution is the intermediate result of one merge.
type resolution struct {
	roles     []string
	overrides []Override
	entries   map[OverrideKey]*EffectivePermission
	denied    map[OverrideKey]struct{}
}

// EffectivePermissions returns the user's effective set ordered by module, code and resource.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) ([]EffectivePermission, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()
	res, err := r.resolve(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return res.sorted(), nil
}

// CheckPermission reports whether the user holds code on resource. An unknown code or
// user yields false without error.
func (r *Resolver) CheckPermission(ctx context.Context, userID, code, resource string) (bool, error) {
	decision, err := r.Decide(ctx, userID, code, resource)
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Decide is CheckPermission with the reason for the outcome.
func (r *Resolver) Decide(ctx context.Context, userID, code, resource string) (Decision, error) {
	userID = strings.TrimSpace(userID)
	decision := Decision{UserID: userID, PermissionCode: NormalizeCode(code), Resource: NormalizeResource(resource)}

	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	perm, err := r.repo.GetPermissionByCode(ctx, decision.PermissionCode)
	switch {
	case errors.Is(err, ErrNotFound):
		decision.Reason = ReasonUnknownPermission
		r.cfg.Metrics.ObserveDecision(false, string(decision.Reason))
		return decision, nil
	case err != nil:
		return Decision{}, storeError(err)
	case !perm.IsActive:
		decision.Reason = ReasonUnknownPermission
		r.cfg.Metrics.ObserveDecision(false, string(decision.Reason))
		return decision, nil
	}

	res, err := r.resolve(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	decision.Allowed, decision.Reason = res.decide(decision.PermissionCode, decision.Resource)
	r.cfg.Metrics.ObserveDecision(decision.Allowed, string(decision.Reason))
	return decision, nil
}

// Summary returns roles, raw overrides and the effective set. Unknown users yield ErrNotFound.
func (r *Resolver) Summary(ctx context.Context, userID string) (Summary, error) {
	userID = strings.TrimSpace(userID)
	ctx, cancel := withTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	if r.identity != nil {
		ok, err := r.identity.Exists(ctx, userID)
		if err != nil {
			return Summary{}, storeError(err)
		}
		if !ok {
			return Summary{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
	}
	res, err := r.resolve(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	overrides := append([]Override(nil), res.overrides...)
	sortOverrides(overrides)
	if overrides == nil {
		overrides = []Override{}
	}
	roles := sortedUnique(res.roles)
	return Summary{UserID: userID, Roles: roles, Overrides: overrides, Effective: res.sorted()}, nil
}

func (r *Resolver) resolve(ctx context.Context, userID string) (*resolution, error) {
	res := &resolution{
		entries: make(map[OverrideKey]*EffectivePermission),
		denied:  make(map[OverrideKey]struct{}),
	}
	if userID == "" {
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if r.identity == nil {
			return nil
		}
		roles, err := r.identity.RolesOf(gctx, userID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		res.roles = roles
		return nil
	})
	g.Go(func() error {
		overrides, err := r.repo.ListUserOverrides(gctx, userID)
		if err != nil {
			return err
		}
		res.overrides = overrides
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(err)
	}

	var roleCodes []string
	if len(res.roles) > 0 {
		codes, err := r.repo.ListRolesPermissions(ctx, res.roles)
		if err != nil {
			return nil, storeError(err)
		}
		roleCodes = codes
	}

	wanted := append([]string(nil), roleCodes...)
	for _, o := range res.overrides {
		if o.Effect == EffectGrant {
			wanted = append(wanted, o.PermissionCode)
		}
	}
	catalog, _, err := lookupCodes(ctx, r.repo, sortedUnique(wanted))
	if err != nil {
		return nil, storeError(err)
	}

	res.merge(roleCodes, catalog)
	return res, nil
}

// merge applies role grants, then override grants, then override denials.
func (res *resolution) merge(roleCodes []string, catalog map[string]Permission) {
	for _, code := range roleCodes {
		perm, ok := catalog[code]
		if !ok || !perm.IsActive {
			continue
		}
		res.entries[OverrideKey{Code: code}] = &EffectivePermission{Permission: perm, Resource: AnyResource, Source: SourceRole}
	}

	for _, o := range res.overrides {
		if o.Effect != EffectGrant {
			continue
		}
		perm, ok := catalog[o.PermissionCode]
		if !ok || !perm.IsActive {
			continue
		}
		res.entries[o.Key()] = &EffectivePermission{Permission: perm, Resource: o.Resource, Source: SourceOverride}
	}

	// Denials run last so they win regardless of storage order.
	for _, o := range res.overrides {
		if o.Effect != EffectDeny {
			continue
		}
		res.denied[o.Key()] = struct{}{}
		if o.Resource == AnyResource {
			for key := range res.entries {
				if key.Code == o.PermissionCode {
					delete(res.entries, key)
				}
			}
			continue
		}
		delete(res.entries, o.Key())
		if wide, ok := res.entries[OverrideKey{Code: o.PermissionCode}]; ok {
			wide.ExcludedResources = appendUnique(wide.ExcludedResources, o.Resource)
		}
	}
}

func (res *resolution) decide(code, resource string) (bool, Reason) {
	if e, ok := res.entries[OverrideKey{Code: code, Resource: resource}]; ok {
		return true, reasonFor(e.Source)
	}
	if e, ok := res.entries[OverrideKey{Code: code}]; ok && e.Covers(resource) {
		return true, reasonFor(e.Source)
	}
	_, deniedExact := res.denied[OverrideKey{Code: code, Resource: resource}]
	_, deniedWide := res.denied[OverrideKey{Code: code}]
	if deniedExact || deniedWide {
		return false, ReasonDenied
	}
	return false, ReasonNoGrant
}

func (res *resolution) sorted() []EffectivePermission {
	out := make([]EffectivePermission, 0, len(res.entries))
	for _, e := range res.entries {
		entry := *e
		sort.Strings(entry.ExcludedResources)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Resource < out[j].Resource
	})
	return out
}

func reasonFor(source Source) Reason {
	if source == SourceOverride {
		return ReasonOverrideGrant
	}
	return ReasonRoleGrant
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
