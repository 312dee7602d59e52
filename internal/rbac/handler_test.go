package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

type handlerHarness struct {
	f      *fixture
	router chi.Router
}

func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()
	f := newFixture()
	ctx := context.Background()
	for _, code := range []string{shared.PermPermissionsView, shared.PermPermissionsManage, shared.PermRolesManage, shared.PermUsersPermissions} {
		f.repo.seedPermission(code, "ADMIN", "MANAGE")
		require.NoError(t, f.services.Roles.Assign(ctx, "ADMIN", code))
	}
	require.NoError(t, f.services.Roles.Assign(ctx, "AUDITOR", shared.PermPermissionsView))
	f.dir.addUser("admin", "ADMIN")
	f.dir.addUser("auditor", "AUDITOR")

	h := NewHandler(nil, f.services, Middleware{Checker: f.services.Resolver})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := r.Header.Get("X-User-Id"); actor != "" {
				r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.MountRoutes(r)
	return &handlerHarness{f: f, router: r}
}

func (h *handlerHarness) do(t *testing.T, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set("X-User-Id", actor)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRequiresActorAndPermission(t *testing.T) {
	h := newHandlerHarness(t)

	rr := h.do(t, http.MethodGet, "/permissions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(t, http.MethodGet, "/permissions", "u-2", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.do(t, http.MethodGet, "/permissions", "auditor", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodPost, "/permissions", "auditor", PermissionInput{Code: "PAYROLL.RUN", Module: "PAYROLL", Action: "RUN"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerCatalogLifecycle(t *testing.T) {
	h := newHandlerHarness(t)

	rr := h.do(t, http.MethodPost, "/permissions", "admin", PermissionInput{Code: "payroll.run", Module: "PAYROLL", Action: "RUN"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Permission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "PAYROLL.RUN", created.Code)

	rr = h.do(t, http.MethodPost, "/permissions", "admin", PermissionInput{Code: "PAYROLL.RUN", Module: "PAYROLL", Action: "RUN"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = h.do(t, http.MethodGet, "/permissions/by-code/payroll.run", "admin", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodPut, "/roles/HR/permissions", "admin", codesRequest{Codes: []string{"PAYROLL.RUN"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	path := "/permissions/" + jsonNumber(created.ID)
	rr = h.do(t, http.MethodDelete, path, "admin", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = h.do(t, http.MethodDelete, "/roles/HR/permissions/PAYROLL.RUN", "admin", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodDelete, path, "admin", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(t, http.MethodGet, path, "admin", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodGet, "/permissions/abc", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerOverrideFlow(t *testing.T) {
	h := newHandlerHarness(t)

	rr := h.do(t, http.MethodPost, "/users/u-2/overrides", "admin", OverrideInput{PermissionCode: "REPORT.VIEW"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.NotEmpty(t, res.OperationID)
	assert.Len(t, res.Changes.Added, 1)

	rr = h.do(t, http.MethodGet, "/users/u-2/permissions/check?code=report.view", "auditor", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var decision Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonOverrideGrant, decision.Reason)

	rr = h.do(t, http.MethodPost, "/users/u-2/overrides/bulk", "admin", bulkAssignRequest{Overrides: []OverrideInput{
		{PermissionCode: "REPORT.EXPORT"},
		{PermissionCode: "MISSING.CODE"},
	}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPut, "/users/u-2/overrides", "admin", codesRequest{Codes: []string{"DASHBOARD.VIEW"}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/users/u-2/overrides", "admin", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var page OverridePage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, []string{"DASHBOARD.VIEW|GRANT|"}, overrideTuples(page.Items))

	rr = h.do(t, http.MethodPost, "/users/u-3/overrides/copy", "admin", copyRequest{SourceUserID: "u-2"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = h.do(t, http.MethodPost, "/users/u-3/overrides/bulk-remove", "admin", codesRequest{Codes: []string{"DASHBOARD.VIEW", "UNKNOWN"}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/users/u-3/permissions", "admin", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Empty(t, summary.Overrides)
	assert.Equal(t, []string{"MANAGER"}, summary.Roles)

	rr = h.do(t, http.MethodGet, "/users/ghost/permissions", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// The admin's own actions are audited under their id.
	entries := h.f.audit.all()
	require.NotEmpty(t, entries)
	assert.Equal(t, "admin", entries[0].ActorID)
}

func TestHandlerRejectsMalformedBodies(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/users/u-2/overrides", bytes.NewBufferString(`{"permission_code":`))
	req.Header.Set("X-User-Id", "admin")
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/users/u-3/overrides/copy", "admin", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodGet, "/users/u-2/permissions/check", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodGet, "/permissions?active=maybe", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
