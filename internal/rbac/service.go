package rbac

import (
	"context"
	"log/slog"
	"time"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// DefaultStoreTimeout bounds every store operation when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// CatalogRepository persists the permission catalog.
type CatalogRepository interface {
	CreatePermission(ctx context.Context, p Permission) (Permission, error)
	UpdatePermission(ctx context.Context, p Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error
	GetPermissionByID(ctx context.Context, id int64) (Permission, error)
	GetPermissionByCode(ctx context.Context, code string) (Permission, error)
	// ListPermissions returns one page and the total match count. limit <= 0 returns every match.
	ListPermissions(ctx context.Context, filter PermissionFilter, limit, offset int) ([]Permission, int, error)
	PermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error)
	CountUserOverrides(ctx context.Context, code string) (int, error)
}

// RoleRepository persists role → permission assignments.
type RoleRepository interface {
	// AssignRolePermission inserts the pair and reports whether a new row was written.
	AssignRolePermission(ctx context.Context, role, code string) (bool, error)
	RemoveRolePermission(ctx context.Context, role, code string) (bool, error)
	ListRolePermissions(ctx context.Context, role string) ([]string, error)
	ListRolesPermissions(ctx context.Context, roles []string) ([]string, error)
	ListRolesGranting(ctx context.Context, code string) ([]string, error)
	// SyncRolePermissions makes the role hold exactly codes in one transaction.
	SyncRolePermissions(ctx context.Context, role string, codes []string) (added, removed []string, err error)
}

// OverrideRepository persists direct user overrides.
type OverrideRepository interface {
	ListUserOverrides(ctx context.Context, userID string) ([]Override, error)
	PageUserOverrides(ctx context.Context, userID string, limit, offset int) ([]Override, int, error)
	// WithUserTx runs fn in one transaction holding the user's row-set exclusively.
	// Nothing fn wrote is visible unless fn returns nil and the commit succeeds.
	WithUserTx(ctx context.Context, userID string, fn func(context.Context, OverrideTx) error) error
}

// OverrideTx exposes one user's overrides inside a transaction.
type OverrideTx interface {
	ListOverrides(ctx context.Context) ([]Override, error)
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, key OverrideKey) (bool, error)
}

// RepositoryPort is the full persistence backend.
type RepositoryPort interface {
	CatalogRepository
	RoleRepository
	OverrideRepository
}

// IdentityProvider resolves users and the roles they hold.
type IdentityProvider interface {
	RolesOf(ctx context.Context, userID string) ([]string, error)
	Exists(ctx context.Context, userID string) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config groups optional settings shared by the services.
type Config struct {
	StoreTimeout time.Duration
	Locker       shared.Locker
	Metrics      MetricsRecorder
	Logger       *slog.Logger
	Now          func() time.Time
}

func (c Config) withDefaults() Config {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.Locker == nil {
		c.Locker = shared.NewKeyedMutex()
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Services bundles the permission components wired over one backend.
type Services struct {
	Catalog     *CatalogService
	Roles       *RoleStore
	Overrides   *OverrideStore
	Resolver    *Resolver
	Coordinator *Coordinator
}

// NewServices wires every component over repo.
func NewServices(repo RepositoryPort, identity IdentityProvider, audit AuditPort, cfg Config) *Services {
	cfg = cfg.withDefaults()
	overrides := NewOverrideStore(repo, identity, cfg)
	return &Services{
		Catalog:     NewCatalogService(repo, cfg),
		Roles:       NewRoleStore(repo, cfg),
		Overrides:   overrides,
		Resolver:    NewResolver(repo, identity, cfg),
		Coordinator: NewCoordinator(overrides, audit, cfg),
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
