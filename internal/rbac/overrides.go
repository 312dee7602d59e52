package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// OverrideStore maintains direct per-user grants and denials.
// Every mutation for a user runs inside that user's critical section and one backing-store transaction.
type OverrideStore struct {
	repo     RepositoryPort
	identity IdentityProvider
	cfg      Config
}

// NewOverrideStore builds OverrideStore. identity may be nil, in which case user existence is not checked.
func NewOverrideStore(repo RepositoryPort, identity IdentityProvider, cfg Config) *OverrideStore {
	return &OverrideStore{repo: repo, identity: identity, cfg: cfg.withDefaults()}
}

// Assign upserts one override. Re-assigning the same effect leaves the row untouched.
func (s *OverrideStore) Assign(ctx context.Context, userID, code string, effect Effect, resource, assignedBy string) (ChangeSet, error) {
	userID = strings.TrimSpace(userID)
	code, resource = NormalizeCode(code), NormalizeResource(resource)
	if userID == "" || code == "" {
		return ChangeSet{}, fmt.Errorf("%w: user id and permission code required", ErrValidation)
	}
	if !effect.Valid() {
		return ChangeSet{}, fmt.Errorf("%w: invalid effect %q", ErrValidation, effect)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.ensureUser(ctx, userID); err != nil {
		return ChangeSet{}, err
	}
	if _, err := s.repo.GetPermissionByCode(ctx, code); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ChangeSet{}, fmt.Errorf("%w: permission %s", ErrNotFound, code)
		}
		return ChangeSet{}, storeError(err)
	}

	desired := []Override{{UserID: userID, PermissionCode: code, Effect: effect, Resource: resource, AssignedBy: assignedBy}}
	return s.mutate(ctx, userID, func(ctx context.Context, tx OverrideTx) (ChangeSet, error) {
		return s.apply(ctx, tx, desired, false)
	})
}

// Remove deletes the override for (code, resource) and reports whether one existed.
func (s *OverrideStore) Remove(ctx context.Context, userID, code, resource string) (bool, ChangeSet, error) {
	userID = strings.TrimSpace(userID)
	key := OverrideKey{Code: NormalizeCode(code), Resource: NormalizeResource(resource)}
	if userID == "" || key.Code == "" {
		return false, ChangeSet{}, fmt.Errorf("%w: user id and permission code required", ErrValidation)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	changes, err := s.mutate(ctx, userID, func(ctx context.Context, tx OverrideTx) (ChangeSet, error) {
		var cs ChangeSet
		existing, err := tx.ListOverrides(ctx)
		if err != nil {
			return cs, err
		}
		for _, o := range existing {
			if o.Key() != key {
				continue
			}
			removed, err := tx.DeleteOverride(ctx, key)
			if err != nil {
				return cs, err
			}
			if removed {
				cs.Removed = append(cs.Removed, o)
			}
		}
		return cs, nil
	})
	if err != nil {
		return false, ChangeSet{}, err
	}
	return len(changes.Removed) > 0, changes, nil
}

// ListForUser returns one page of the user's raw overrides ordered by code then resource.
func (s *OverrideStore) ListForUser(ctx context.Context, userID string, page, pageSize int) (OverridePage, error) {
	p := shared.NewPagination(page, pageSize, 0)

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	items, total, err := s.repo.PageUserOverrides(ctx, strings.TrimSpace(userID), p.PerPage, p.Offset())
	if err != nil {
		return OverridePage{}, storeError(err)
	}
	if items == nil {
		items = []Override{}
	}
	return OverridePage{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// BulkAssign upserts every input or nothing. Unknown codes, invalid effects and
// conflicting duplicates reject the whole batch.
func (s *OverrideStore) BulkAssign(ctx context.Context, userID string, inputs []OverrideInput, assignedBy string) (ChangeSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ChangeSet{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	desired, err := normalizeInputs(userID, inputs, assignedBy)
	if err != nil {
		return ChangeSet{}, err
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.ensureUser(ctx, userID); err != nil {
		return ChangeSet{}, err
	}
	if err := s.ensureKnown(ctx, overrideCodes(desired)); err != nil {
		return ChangeSet{}, err
	}
	return s.mutate(ctx, userID, func(ctx context.Context, tx OverrideTx) (ChangeSet, error) {
		return s.apply(ctx, tx, desired, false)
	})
}

// BulkRemove deletes every override (any resource) whose code is listed. Unknown codes are skipped.
func (s *OverrideStore) BulkRemove(ctx context.Context, userID string, codes []string, removedBy string) (ChangeSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ChangeSet{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	codes = normalizeCodes(codes)
	targets := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		targets[c] = struct{}{}
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	changes, err := s.mutate(ctx, userID, func(ctx context.Context, tx OverrideTx) (ChangeSet, error) {
		var cs ChangeSet
		if len(targets) == 0 {
			return cs, nil
		}
		existing, err := tx.ListOverrides(ctx)
		if err != nil {
			return cs, err
		}
		for _, o := range existing {
			if _, ok := targets[o.PermissionCode]; !ok {
				cs.Unchanged++
				continue
			}
			removed, err := tx.DeleteOverride(ctx, o.Key())
			if err != nil {
				return cs, err
			}
			if removed {
				cs.Removed = append(cs.Removed, o)
			}
		}
		return cs, nil
	})
	if err != nil {
		return ChangeSet{}, err
	}
	s.cfg.Logger.Debug("bulk remove overrides", "user_id", userID, "removed_by", removedBy, "removed", len(changes.Removed))
	return changes, nil
}

// ReplaceAll makes the user's overrides exactly one any-resource Grant per listed code.
// Rows already in that shape keep their assignment timestamp.
func (s *OverrideStore) ReplaceAll(ctx context.Context, userID string, codes []string, syncedBy string) (ChangeSet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ChangeSet{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	codes = normalizeCodes(codes)
	desired := make([]Override, 0, len(codes))
	for _, code := range codes {
		desired = append(desired, Override{UserID: userID, PermissionCode: code, Effect: EffectGrant, Resource: AnyResource, AssignedBy: syncedBy})
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.ensureUser(ctx, userID); err != nil {
		return ChangeSet{}, err
	}
	if err := s.ensureKnown(ctx, codes); err != nil {
		return ChangeSet{}, err
	}
	return s.mutate(ctx, userID, func(ctx context.Context, tx OverrideTx) (ChangeSet, error) {
		return s.apply(ctx, tx, desired, true)
	})
}

// CopyAll replaces the target's overrides with the source's (code, effect, resource) tuples.
// It fails with ErrNotFound when the source holds neither overrides nor roles.
func (s *OverrideStore) CopyAll(ctx context.Context, sourceUserID, targetUserID, copiedBy string) (ChangeSet, error) {
	sourceUserID, targetUserID = strings.TrimSpace(sourceUserID), strings.TrimSpace(targetUserID)
	if sourceUserID == "" || targetUserID == "" {
		return ChangeSet{}, fmt.Errorf("%w: source and target user ids required", ErrValidation)
	}
	if sourceUserID == targetUserID {
		return ChangeSet{}, fmt.Errorf("%w: source and target must differ", ErrValidation)
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.ensureUser(ctx, targetUserID); err != nil {
		return ChangeSet{}, err
	}
	source, err := s.repo.ListUserOverrides(ctx, sourceUserID)
	if err != nil {
		return ChangeSet{}, storeError(err)
	}
	if len(source) == 0 {
		var roles []string
		if s.identity != nil {
			roles, err = s.identity.RolesOf(ctx, sourceUserID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return ChangeSet{}, storeError(err)
			}
		}
		if len(roles) == 0 {
			return ChangeSet{}, fmt.Errorf("%w: user %s has no permissions to copy", ErrNotFound, sourceUserID)
		}
	}

	desired := make([]Override, 0, len(source))
	for _, o := range source {
		desired = append(desired, Override{UserID: targetUserID, PermissionCode: o.PermissionCode, Effect: o.Effect, Resource: o.Resource, AssignedBy: copiedBy})
	}
	return s.mutate(ctx, targetUserID, func(ctx context.Context, tx OverrideTx) (ChangeSet, error) {
		return s.apply(ctx, tx, desired, true)
	})
}

// mutate runs fn inside the user's critical section and a single transaction.
func (s *OverrideStore) mutate(ctx context.Context, userID string, fn func(context.Context, OverrideTx) (ChangeSet, error)) (ChangeSet, error) {
	started := time.Now()
	release, err := s.cfg.Locker.Acquire(ctx, shared.UserOverridesLockKey(userID))
	s.cfg.Metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return ChangeSet{}, fmt.Errorf("%w: lock user %s: %v", ErrUnavailable, userID, err)
	}
	defer release()

	var changes ChangeSet
	err = s.repo.WithUserTx(ctx, userID, func(ctx context.Context, tx OverrideTx) error {
		cs, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		changes = cs
		return nil
	})
	if err != nil {
		return ChangeSet{}, storeError(err)
	}
	sortOverrides(changes.Added)
	sortOverrides(changes.Updated)
	sortOverrides(changes.Removed)
	return changes, nil
}

// apply writes desired rows. With exclusive set, rows not in desired are deleted.
func (s *OverrideStore) apply(ctx context.Context, tx OverrideTx, desired []Override, exclusive bool) (ChangeSet, error) {
	var cs ChangeSet
	existing, err := tx.ListOverrides(ctx)
	if err != nil {
		return cs, err
	}
	current := make(map[OverrideKey]Override, len(existing))
	for _, o := range existing {
		current[o.Key()] = o
	}

	now := s.cfg.Now()
	wanted := make(map[OverrideKey]struct{}, len(desired))
	for _, d := range desired {
		key := d.Key()
		wanted[key] = struct{}{}
		prev, ok := current[key]
		if ok && prev.Effect == d.Effect {
			cs.Unchanged++
			continue
		}
		d.AssignedAt = now
		if err := tx.UpsertOverride(ctx, d); err != nil {
			return cs, err
		}
		if ok {
			cs.Updated = append(cs.Updated, d)
		} else {
			cs.Added = append(cs.Added, d)
		}
	}

	if !exclusive {
		cs.Unchanged = len(existing) - len(cs.Updated)
		return cs, nil
	}
	for _, o := range existing {
		if _, ok := wanted[o.Key()]; ok {
			continue
		}
		removed, err := tx.DeleteOverride(ctx, o.Key())
		if err != nil {
			return cs, err
		}
		if removed {
			cs.Removed = append(cs.Removed, o)
		}
	}
	return cs, nil
}

func (s *OverrideStore) ensureUser(ctx context.Context, userID string) error {
	if s.identity == nil {
		return nil
	}
	ok, err := s.identity.Exists(ctx, userID)
	if err != nil {
		return storeError(err)
	}
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

func (s *OverrideStore) ensureKnown(ctx context.Context, codes []string) error {
	_, unknown, err := lookupCodes(ctx, s.repo, codes)
	if err != nil {
		return storeError(err)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown permission codes %s", ErrValidation, strings.Join(unknown, ", "))
	}
	return nil
}

func normalizeInputs(userID string, inputs []OverrideInput, assignedBy string) ([]Override, error) {
	out := make([]Override, 0, len(inputs))
	seen := make(map[OverrideKey]Effect, len(inputs))
	var problems []string
	for _, in := range inputs {
		code := NormalizeCode(in.PermissionCode)
		if code == "" {
			problems = append(problems, "empty permission code")
			continue
		}
		effect, ok := ParseEffect(string(in.Effect))
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: invalid effect %q", code, in.Effect))
			continue
		}
		key := OverrideKey{Code: code, Resource: NormalizeResource(in.Resource)}
		if prev, dup := seen[key]; dup {
			if prev != effect {
				problems = append(problems, fmt.Sprintf("%s: conflicting effects", code))
			}
			continue
		}
		seen[key] = effect
		out = append(out, Override{UserID: userID, PermissionCode: key.Code, Effect: effect, Resource: key.Resource, AssignedBy: assignedBy})
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return out, nil
}

func overrideCodes(overrides []Override) []string {
	codes := make([]string, 0, len(overrides))
	for _, o := range overrides {
		codes = append(codes, o.PermissionCode)
	}
	return sortedUnique(codes)
}

func sortOverrides(list []Override) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].PermissionCode != list[j].PermissionCode {
			return list[i].PermissionCode < list[j].PermissionCode
		}
		return list[i].Resource < list[j].Resource
	})
}
