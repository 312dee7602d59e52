package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shakil5281/HrHub-sub001/internal/platform/db"
)

// Repository persists the permission catalog, role assignments and user overrides in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds waits on the per-user advisory lock.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// lockedTxOptions configures transactions that open with pg_advisory_xact_lock.
// ReadCommitted gives every statement after the lock a fresh snapshot, so a
// waiter observes what the previous holder committed. With LOCK_BACKEND=memory
// this lock is the only serialization between instances.
func (r *Repository) lockedTxOptions() db.TxOptions {
	return db.TxOptions{LockTimeout: r.lockTimeout, IsoLevel: pgx.ReadCommitted}
}

const permissionColumns = `p.id, p.code, p.module, p.action, p.resource_scope, p.is_active, p.description, p.created_at, p.updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Code, &p.Module, &p.Action, &p.ResourceScope, &p.IsActive, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePermission inserts a catalog row.
func (r *Repository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions AS p (code, module, action, resource_scope, is_active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+permissionColumns,
		p.Code, p.Module, p.Action, p.ResourceScope, p.IsActive, p.Description, p.CreatedAt, p.UpdatedAt)
	created, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapWriteError(err)
	}
	return created, nil
}

// UpdatePermission overwrites the mutable columns of a catalog row.
func (r *Repository) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions AS p
		SET code = $2, module = $3, action = $4, resource_scope = $5, is_active = $6, description = $7, updated_at = $8
		WHERE p.id = $1
		RETURNING `+permissionColumns,
		p.ID, p.Code, p.Module, p.Action, p.ResourceScope, p.IsActive, p.Description, p.UpdatedAt)
	updated, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapWriteError(err)
	}
	return updated, nil
}

// DeletePermission removes a catalog row. Foreign keys reject deletion while referenced.
func (r *Repository) DeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPermissionByID fetches a catalog row by id.
func (r *Repository) GetPermissionByID(ctx context.Context, id int64) (Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions p WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	return p, err
}

// GetPermissionByCode fetches a catalog row by code.
func (r *Repository) GetPermissionByCode(ctx context.Context, code string) (Permission, error) {
	p, err := scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions p WHERE upper(p.code) = upper($1)`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	return p, err
}

// ListPermissions returns filtered catalog rows ordered by module then code.
func (r *Repository) ListPermissions(ctx context.Context, filter PermissionFilter, limit, offset int) ([]Permission, int, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Module != "" {
		add("lower(p.module) = lower($%d)", filter.Module)
	}
	if filter.Action != "" {
		add("lower(p.action) = lower($%d)", filter.Action)
	}
	if filter.Search != "" {
		add("(p.code ILIKE $%[1]d OR p.description ILIKE $%[1]d)", "%"+filter.Search+"%")
	}
	if filter.IsActive != nil {
		add("p.is_active = $%d", *filter.IsActive)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions p`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + permissionColumns + ` FROM permissions p` + where + ` ORDER BY p.module, p.code`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	perms, err := r.queryPermissions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

// PermissionsByCodes returns the catalog rows for codes; unknown codes are absent from the result.
func (r *Repository) PermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return r.queryPermissions(ctx, `SELECT `+permissionColumns+` FROM permissions p WHERE p.code = ANY($1) ORDER BY p.module, p.code`, codes)
}

// CountUserOverrides counts user overrides referencing code.
func (r *Repository) CountUserOverrides(ctx context.Context, code string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_permission_overrides o
		JOIN permissions p ON p.id = o.permission_id
		WHERE p.code = $1`, code).Scan(&n)
	return n, err
}

func (r *Repository) queryPermissions(ctx context.Context, query string, args ...any) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// AssignRolePermission inserts the pair unless present.
func (r *Repository) AssignRolePermission(ctx context.Context, role, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role, permission_id, created_at)
		SELECT $1, p.id, NOW() FROM permissions p WHERE p.code = $2
		ON CONFLICT (role, permission_id) DO NOTHING`, role, code)
	if err != nil {
		return false, mapWriteError(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetPermissionByCode(ctx, code); err != nil {
		return false, err
	}
	return false, nil
}

// RemoveRolePermission deletes the pair and reports whether it existed.
func (r *Repository) RemoveRolePermission(ctx context.Context, role, code string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions rp
		USING permissions p
		WHERE rp.permission_id = p.id AND rp.role = $1 AND p.code = $2`, role, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListRolePermissions returns the codes assigned to role.
func (r *Repository) ListRolePermissions(ctx context.Context, role string) ([]string, error) {
	return r.queryStrings(ctx, `
		SELECT p.code FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = $1 ORDER BY p.code`, role)
}

// ListRolesPermissions returns the distinct codes assigned to any of roles.
func (r *Repository) ListRolesPermissions(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return r.queryStrings(ctx, `
		SELECT DISTINCT p.code FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role = ANY($1) ORDER BY p.code`, roles)
}

// ListRolesGranting returns the roles holding code.
func (r *Repository) ListRolesGranting(ctx context.Context, code string) ([]string, error) {
	return r.queryStrings(ctx, `
		SELECT rp.role FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE p.code = $1 ORDER BY rp.role`, code)
}

// SyncRolePermissions makes role hold exactly codes.
func (r *Repository) SyncRolePermissions(ctx context.Context, role string, codes []string) ([]string, []string, error) {
	var added, removed []string
	err := db.WithTxOptions(ctx, r.pool, r.lockedTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('role:' || $1, 0))`, role); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			DELETE FROM role_permissions rp
			USING permissions p
			WHERE rp.permission_id = p.id AND rp.role = $1 AND NOT (p.code = ANY($2))
			RETURNING p.code`, role, codes)
		if err != nil {
			return err
		}
		removed, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		rows, err = tx.Query(ctx, `
			WITH ins AS (
				INSERT INTO role_permissions (role, permission_id, created_at)
				SELECT $1, p.id, NOW() FROM permissions p WHERE p.code = ANY($2)
				ON CONFLICT (role, permission_id) DO NOTHING
				RETURNING permission_id
			)
			SELECT p.code FROM ins JOIN permissions p ON p.id = ins.permission_id`, role, codes)
		if err != nil {
			return err
		}
		added, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, nil, mapWriteError(err)
	}
	return added, removed, nil
}

func (r *Repository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const overrideSelect = `
	SELECT o.user_id, p.code, o.effect, o.resource, o.assigned_by, o.assigned_at
	FROM user_permission_overrides o
	JOIN permissions p ON p.id = o.permission_id`

func scanOverrides(rows pgx.Rows) ([]Override, error) {
	defer rows.Close()
	var out []Override
	for rows.Next() {
		var (
			o      Override
			effect string
		)
		if err := rows.Scan(&o.UserID, &o.PermissionCode, &effect, &o.Resource, &o.AssignedBy, &o.AssignedAt); err != nil {
			return nil, err
		}
		o.Effect = Effect(effect)
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListUserOverrides returns every override of the user.
func (r *Repository) ListUserOverrides(ctx context.Context, userID string) ([]Override, error) {
	rows, err := r.pool.Query(ctx, overrideSelect+` WHERE o.user_id = $1 ORDER BY p.code, o.resource`, userID)
	if err != nil {
		return nil, err
	}
	return scanOverrides(rows)
}

// PageUserOverrides returns one page of the user's overrides and the total count.
func (r *Repository) PageUserOverrides(ctx context.Context, userID string, limit, offset int) ([]Override, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_permission_overrides WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, overrideSelect+` WHERE o.user_id = $1 ORDER BY p.code, o.resource LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanOverrides(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// WithUserTx runs fn in a transaction holding the user's advisory lock.
func (r *Repository) WithUserTx(ctx context.Context, userID string, fn func(context.Context, OverrideTx) error) error {
	return db.WithTxOptions(ctx, r.pool, r.lockedTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('user:' || $1, 0))`, userID); err != nil {
			return err
		}
		return fn(ctx, &overrideTx{tx: tx, userID: userID})
	})
}

type overrideTx struct {
	tx     pgx.Tx
	userID string
}

func (t *overrideTx) ListOverrides(ctx context.Context) ([]Override, error) {
	rows, err := t.tx.Query(ctx, overrideSelect+` WHERE o.user_id = $1 ORDER BY p.code, o.resource`, t.userID)
	if err != nil {
		return nil, err
	}
	return scanOverrides(rows)
}

func (t *overrideTx) UpsertOverride(ctx context.Context, o Override) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO user_permission_overrides (user_id, permission_id, effect, resource, assigned_by, assigned_at)
		SELECT $1, p.id, $3, $4, $5, $6 FROM permissions p WHERE p.code = $2
		ON CONFLICT (user_id, permission_id, resource)
		DO UPDATE SET effect = EXCLUDED.effect, assigned_by = EXCLUDED.assigned_by, assigned_at = EXCLUDED.assigned_at`,
		t.userID, o.PermissionCode, string(o.Effect), o.Resource, o.AssignedBy, o.AssignedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unknown permission code %s", ErrValidation, o.PermissionCode)
	}
	return nil
}

func (t *overrideTx) DeleteOverride(ctx context.Context, key OverrideKey) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM user_permission_overrides o
		USING permissions p
		WHERE o.permission_id = p.id AND o.user_id = $1 AND p.code = $2 AND o.resource = $3`,
		t.userID, key.Code, key.Resource)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func mapWriteError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicateCode, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrInUse, err)
	default:
		return err
	}
}
