package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu sync.Mutex

	// Catalog storage
	perms  map[int64]Permission
	nextID int64

	// Role storage: role -> code set
	roles map[string]map[string]struct{}

	// Override storage: user -> key -> row
	overrides map[string]map[OverrideKey]Override

	// Error injection
	listOverridesError error
	upsertFailAfter    int // fail the Nth upsert inside a transaction (0 disables)
	upsertCalls        int
	commitError        error
	blockReads         bool // block ListUserOverrides until the context ends
	txDelay            time.Duration

	userTx *shared.KeyedMutex
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		perms:     make(map[int64]Permission),
		nextID:    1,
		roles:     make(map[string]map[string]struct{}),
		overrides: make(map[string]map[OverrideKey]Override),
		userTx:    shared.NewKeyedMutex(),
	}
}

// seedPermission adds an active catalog entry and returns it.
func (m *mockRepository) seedPermission(code, module, action string) Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Permission{ID: m.nextID, Code: code, Module: module, Action: action, IsActive: true, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	m.perms[p.ID] = p
	m.nextID++
	return p
}

func (m *mockRepository) setActive(code string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.perms {
		if p.Code == code {
			p.IsActive = active
			m.perms[id] = p
		}
	}
}

func (m *mockRepository) seedOverride(o Override) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overrides[o.UserID] == nil {
		m.overrides[o.UserID] = make(map[OverrideKey]Override)
	}
	m.overrides[o.UserID][o.Key()] = o
}

func (m *mockRepository) snapshot(userID string) []Override {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked(userID)
}

func (m *mockRepository) listLocked(userID string) []Override {
	out := make([]Override, 0, len(m.overrides[userID]))
	for _, o := range m.overrides[userID] {
		out = append(out, o)
	}
	sortOverrides(out)
	return out
}

func (m *mockRepository) codeLocked(code string) (Permission, bool) {
	for _, p := range m.perms {
		if strings.EqualFold(p.Code, code) {
			return p, true
		}
	}
	return Permission{}, false
}

// ----------------------------------------------------------------------------
// CatalogRepository
// ----------------------------------------------------------------------------

func (m *mockRepository) CreatePermission(ctx context.Context, p Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codeLocked(p.Code); ok {
		return Permission{}, ErrDuplicateCode
	}
	p.ID = m.nextID
	m.nextID++
	m.perms[p.ID] = p
	return p, nil
}

func (m *mockRepository) UpdatePermission(ctx context.Context, p Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.perms[p.ID]; !ok {
		return Permission{}, ErrNotFound
	}
	if other, ok := m.codeLocked(p.Code); ok && other.ID != p.ID {
		return Permission{}, ErrDuplicateCode
	}
	m.perms[p.ID] = p
	return p, nil
}

func (m *mockRepository) DeletePermission(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return ErrNotFound
	}
	for _, codes := range m.roles {
		if _, used := codes[p.Code]; used {
			return ErrInUse
		}
	}
	delete(m.perms, id)
	return nil
}

func (m *mockRepository) GetPermissionByID(ctx context.Context, id int64) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.perms[id]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) GetPermissionByCode(ctx context.Context, code string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.codeLocked(code)
	if !ok {
		return Permission{}, ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) ListPermissions(ctx context.Context, filter PermissionFilter, limit, offset int) ([]Permission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Permission
	for _, p := range m.perms {
		if filter.Module != "" && !strings.EqualFold(p.Module, filter.Module) {
			continue
		}
		if filter.Action != "" && !strings.EqualFold(p.Action, filter.Action) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Code+" "+p.Description), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Code < out[j].Code
	})
	total := len(out)
	if limit > 0 {
		if offset > len(out) {
			offset = len(out)
		}
		end := offset + limit
		if end > len(out) {
			end = len(out)
		}
		out = out[offset:end]
	}
	return out, total, nil
}

func (m *mockRepository) PermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Permission
	for _, c := range codes {
		if p, ok := m.codeLocked(c); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) CountUserOverrides(ctx context.Context, code string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rows := range m.overrides {
		for key := range rows {
			if key.Code == code {
				n++
			}
		}
	}
	return n, nil
}

// ----------------------------------------------------------------------------
// RoleRepository
// ----------------------------------------------------------------------------

func (m *mockRepository) AssignRolePermission(ctx context.Context, role, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codeLocked(code); !ok {
		return false, ErrNotFound
	}
	if m.roles[role] == nil {
		m.roles[role] = make(map[string]struct{})
	}
	if _, ok := m.roles[role][code]; ok {
		return false, nil
	}
	m.roles[role][code] = struct{}{}
	return true, nil
}

func (m *mockRepository) RemoveRolePermission(ctx context.Context, role, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role][code]; !ok {
		return false, nil
	}
	delete(m.roles[role], code)
	return true, nil
}

func (m *mockRepository) ListRolePermissions(ctx context.Context, role string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for code := range m.roles[role] {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRepository) ListRolesPermissions(ctx context.Context, roles []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]struct{})
	for _, role := range roles {
		for code := range m.roles[role] {
			set[code] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRepository) ListRolesGranting(ctx context.Context, code string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for role, codes := range m.roles {
		if _, ok := codes[code]; ok {
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockRepository) SyncRolePermissions(ctx context.Context, role string, codes []string) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		want[c] = struct{}{}
	}
	if m.roles[role] == nil {
		m.roles[role] = make(map[string]struct{})
	}
	var added, removed []string
	for code := range m.roles[role] {
		if _, ok := want[code]; !ok {
			delete(m.roles[role], code)
			removed = append(removed, code)
		}
	}
	for code := range want {
		if _, ok := m.roles[role][code]; !ok {
			m.roles[role][code] = struct{}{}
			added = append(added, code)
		}
	}
	return added, removed, nil
}

// ----------------------------------------------------------------------------
// OverrideRepository
// ----------------------------------------------------------------------------

func (m *mockRepository) ListUserOverrides(ctx context.Context, userID string) ([]Override, error) {
	m.mu.Lock()
	block, injected := m.blockReads, m.listOverridesError
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if injected != nil {
		return nil, injected
	}
	return m.snapshot(userID), nil
}

func (m *mockRepository) PageUserOverrides(ctx context.Context, userID string, limit, offset int) ([]Override, int, error) {
	all := m.snapshot(userID)
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// WithUserTx stages writes on a private copy and publishes them only when fn and the commit succeed.
func (m *mockRepository) WithUserTx(ctx context.Context, userID string, fn func(context.Context, OverrideTx) error) error {
	release, err := m.userTx.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	staged := make(map[OverrideKey]Override, len(m.overrides[userID]))
	for k, v := range m.overrides[userID] {
		staged[k] = v
	}
	delay := m.txDelay
	m.mu.Unlock()

	tx := &mockTx{repo: m, userID: userID, rows: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitError != nil {
		return m.commitError
	}
	m.overrides[userID] = staged
	return nil
}

type mockTx struct {
	repo   *mockRepository
	userID string
	rows   map[OverrideKey]Override
}

func (t *mockTx) ListOverrides(ctx context.Context) ([]Override, error) {
	out := make([]Override, 0, len(t.rows))
	for _, o := range t.rows {
		out = append(out, o)
	}
	sortOverrides(out)
	return out, nil
}

func (t *mockTx) UpsertOverride(ctx context.Context, o Override) error {
	t.repo.mu.Lock()
	t.repo.upsertCalls++
	calls, failAfter := t.repo.upsertCalls, t.repo.upsertFailAfter
	_, known := t.repo.codeLocked(o.PermissionCode)
	t.repo.mu.Unlock()
	if failAfter > 0 && calls >= failAfter {
		return fmt.Errorf("injected upsert failure")
	}
	if !known {
		return fmt.Errorf("%w: unknown permission code %s", ErrValidation, o.PermissionCode)
	}
	t.rows[o.Key()] = o
	return nil
}

func (t *mockTx) DeleteOverride(ctx context.Context, key OverrideKey) (bool, error) {
	if _, ok := t.rows[key]; !ok {
		return false, nil
	}
	delete(t.rows, key)
	return true, nil
}

// ============================================================================
// MOCK IDENTITY PROVIDER
// ============================================================================

type mockDirectory struct {
	mu    sync.Mutex
	users map[string][]string
	err   error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{users: make(map[string][]string)}
}

func (d *mockDirectory) addUser(userID string, roles ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = roles
}

func (d *mockDirectory) RolesOf(ctx context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	roles, ok := d.users[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return append([]string(nil), roles...), nil
}

func (d *mockDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	_, ok := d.users[userID]
	return ok, nil
}

// ============================================================================
// MOCK AUDIT + METRICS
// ============================================================================

type mockAudit struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	err     error
}

func (a *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, log)
	return nil
}

func (a *mockAudit) all() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]shared.AuditLog(nil), a.entries...)
}

type mockMetrics struct {
	mu        sync.Mutex
	decisions map[string]int
	mutations map[string]int
	lockWaits int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{decisions: make(map[string]int), mutations: make(map[string]int)}
}

func (m *mockMetrics) ObserveDecision(allowed bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[fmt.Sprintf("%t/%s", allowed, reason)]++
}

func (m *mockMetrics) ObserveMutation(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations[operation+"/"+outcome]++
}

func (m *mockMetrics) ObserveLockWait(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockWaits++
}

// ============================================================================
// FIXTURE
// ============================================================================

type fixture struct {
	repo     *mockRepository
	dir      *mockDirectory
	audit    *mockAudit
	metrics  *mockMetrics
	services *Services
}

func newFixture() *fixture {
	repo := newMockRepository()
	for _, p := range []struct{ code, module, action string }{
		{"LEAVE.APPROVE", "LEAVE", "APPROVE"},
		{"REPORT.VIEW", "REPORT", "VIEW"},
		{"REPORT.EXPORT", "REPORT", "EXPORT"},
		{"EMPLOYEE.ATTENDANCE.VIEW", "EMPLOYEE", "VIEW"},
		{"EMPLOYEE.ATTENDANCE.EXPORT", "EMPLOYEE", "EXPORT"},
		{"DASHBOARD.VIEW", "DASHBOARD", "VIEW"},
	} {
		repo.seedPermission(p.code, p.module, p.action)
	}
	dir := newMockDirectory()
	dir.addUser("u-1", "HR")
	dir.addUser("u-2")
	dir.addUser("u-3", "MANAGER")
	audit := &mockAudit{}
	metrics := newMockMetrics()
	cfg := Config{StoreTimeout: time.Second, Metrics: metrics}
	return &fixture{repo: repo, dir: dir, audit: audit, metrics: metrics, services: NewServices(repo, dir, audit, cfg)}
}

func overrideTuples(list []Override) []string {
	out := make([]string, 0, len(list))
	for _, o := range list {
		out = append(out, fmt.Sprintf("%s|%s|%s", o.PermissionCode, o.Effect, o.Resource))
	}
	return out
}
