package rbac

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// Audit actions emitted by Coordinator.
const (
	AuditEntityOverrides = "user_permission_overrides"

	ActionOverrideAssign     = "permission.override.assign"
	ActionOverrideRemove     = "permission.override.remove"
	ActionOverrideBulkAssign = "permission.override.bulk_assign"
	ActionOverrideBulkRemove = "permission.override.bulk_remove"
	ActionOverrideSync       = "permission.override.sync"
	ActionOverrideCopy       = "permission.override.copy"
)

const auditTimeout = 5 * time.Second

// Result is what a coordinated mutation returns to its caller.
type Result struct {
	OperationID string    `json:"operation_id"`
	Changes     ChangeSet `json:"changes"`
}

// Coordinator runs override mutations atomically and leaves an audit record for each.
// Audit failures are logged and never fail the mutation.
type Coordinator struct {
	store *OverrideStore
	audit AuditPort
	cfg   Config
	newID func() string
}

// NewCoordinator builds Coordinator. audit may be nil.
func NewCoordinator(store *OverrideStore, audit AuditPort, cfg Config) *Coordinator {
	return &Coordinator{store: store, audit: audit, cfg: cfg.withDefaults(), newID: uuid.NewString}
}

// Assign sets a single override.
func (c *Coordinator) Assign(ctx context.Context, actorID, userID string, input OverrideInput) (Result, error) {
	effect, ok := ParseEffect(string(input.Effect))
	if !ok {
		effect = input.Effect
	}
	return c.run(ctx, actorID, userID, ActionOverrideAssign, map[string]any{"permission_code": NormalizeCode(input.PermissionCode), "effect": effect, "resource": NormalizeResource(input.Resource)},
		func(ctx context.Context) (ChangeSet, error) {
			return c.store.Assign(ctx, userID, input.PermissionCode, effect, input.Resource, actorID)
		})
}

// Remove deletes a single override.
func (c *Coordinator) Remove(ctx context.Context, actorID, userID, code, resource string) (Result, error) {
	return c.run(ctx, actorID, userID, ActionOverrideRemove, map[string]any{"permission_code": NormalizeCode(code), "resource": NormalizeResource(resource)},
		func(ctx context.Context) (ChangeSet, error) {
			_, cs, err := c.store.Remove(ctx, userID, code, resource)
			return cs, err
		})
}

// BulkAssign applies every input or none.
func (c *Coordinator) BulkAssign(ctx context.Context, actorID, userID string, inputs []OverrideInput) (Result, error) {
	return c.run(ctx, actorID, userID, ActionOverrideBulkAssign, map[string]any{"requested": len(inputs)},
		func(ctx context.Context) (ChangeSet, error) {
			return c.store.BulkAssign(ctx, userID, inputs, actorID)
		})
}

// BulkRemove deletes every override with a listed code.
func (c *Coordinator) BulkRemove(ctx context.Context, actorID, userID string, codes []string) (Result, error) {
	return c.run(ctx, actorID, userID, ActionOverrideBulkRemove, map[string]any{"requested": len(codes)},
		func(ctx context.Context) (ChangeSet, error) {
			return c.store.BulkRemove(ctx, userID, codes, actorID)
		})
}

// ReplaceAll syncs the user's overrides to exactly codes as grants.
func (c *Coordinator) ReplaceAll(ctx context.Context, actorID, userID string, codes []string) (Result, error) {
	return c.run(ctx, actorID, userID, ActionOverrideSync, map[string]any{"requested": len(codes)},
		func(ctx context.Context) (ChangeSet, error) {
			return c.store.ReplaceAll(ctx, userID, codes, actorID)
		})
}

// CopyAll mirrors the source user's overrides onto the target.
func (c *Coordinator) CopyAll(ctx context.Context, actorID, sourceUserID, targetUserID string) (Result, error) {
	return c.run(ctx, actorID, targetUserID, ActionOverrideCopy, map[string]any{"source_user_id": sourceUserID},
		func(ctx context.Context) (ChangeSet, error) {
			return c.store.CopyAll(ctx, sourceUserID, targetUserID, actorID)
		})
}

func (c *Coordinator) run(ctx context.Context, actorID, userID, action string, details map[string]any, fn func(context.Context) (ChangeSet, error)) (Result, error) {
	opID := c.newID()
	logger := c.cfg.Logger.With(slog.String("operation_id", opID), slog.String("action", action), slog.String("user_id", userID), slog.String("actor_id", actorID))

	changes, err := fn(ctx)
	c.cfg.Metrics.ObserveMutation(action, shared.KindOf(err))
	if err != nil {
		logger.Warn("override mutation failed", slog.String("kind", shared.KindOf(err)), slog.Any("error", err))
		return Result{}, err
	}
	logger.Info("override mutation committed",
		slog.Int("added", len(changes.Added)),
		slog.Int("updated", len(changes.Updated)),
		slog.Int("removed", len(changes.Removed)),
		slog.Int("unchanged", changes.Unchanged))

	c.record(ctx, logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   AuditEntityOverrides,
		EntityID: userID,
		Meta:     auditMeta(opID, details, changes),
		At:       c.cfg.Now(),
	})
	return Result{OperationID: opID, Changes: changes}, nil
}

func (c *Coordinator) record(ctx context.Context, logger *slog.Logger, entry shared.AuditLog) {
	if c.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := c.audit.Record(ctx, entry); err != nil {
		logger.Warn("audit record failed", slog.Any("error", err))
	}
}

func auditMeta(opID string, details map[string]any, changes ChangeSet) map[string]any {
	meta := make(map[string]any, len(details)+5)
	for k, v := range details {
		meta[k] = v
	}
	meta["operation_id"] = opID
	meta["added"] = auditRows(changes.Added)
	meta["updated"] = auditRows(changes.Updated)
	meta["removed"] = auditRows(changes.Removed)
	meta["unchanged"] = changes.Unchanged
	return meta
}

func auditRows(list []Override) []map[string]string {
	rows := make([]map[string]string, 0, len(list))
	for _, o := range list {
		rows = append(rows, map[string]string{
			"permission_code": o.PermissionCode,
			"effect":          string(o.Effect),
			"resource":        o.Resource,
		})
	}
	return rows
}
