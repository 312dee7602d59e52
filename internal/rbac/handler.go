package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shakil5281/HrHub-sub001/internal/platform/httpx"
	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// Handler exposes the permission services as a JSON API.
type Handler struct {
	logger   *slog.Logger
	services *Services
	rbac     Middleware
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, services *Services, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, services: services, rbac: rbac, validate: newValidator()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermPermissionsManage)).Get("/", h.listPermissions)
		r.With(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermPermissionsManage)).Get("/by-code/{code}", h.getPermissionByCode)
		r.With(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermPermissionsManage)).Get("/{id}", h.getPermission)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermPermissionsManage))
			r.Post("/", h.createPermission)
			r.Patch("/{id}", h.updatePermission)
			r.Delete("/{id}", h.deletePermission)
		})
	})

	r.Route("/roles/{role}/permissions", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermRolesManage)).Get("/", h.listRolePermissions)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermRolesManage))
			r.Post("/", h.assignRolePermission)
			r.Put("/", h.setRolePermissions)
			r.Delete("/{code}", h.removeRolePermission)
		})
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(shared.PermPermissionsView, shared.PermUsersPermissions))
			r.Get("/permissions", h.userSummary)
			r.Get("/permissions/check", h.checkPermission)
			r.Get("/overrides", h.listOverrides)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermUsersPermissions))
			r.Post("/overrides", h.assignOverride)
			r.Put("/overrides", h.syncOverrides)
			r.Delete("/overrides/{code}", h.removeOverride)
			r.Post("/overrides/bulk", h.bulkAssign)
			r.Post("/overrides/bulk-remove", h.bulkRemove)
			r.Post("/overrides/copy", h.copyOverrides)
		})
	})
}

type codesRequest struct {
	Codes []string `json:"codes" validate:"dive,required,max=128"`
}

type rolePermissionRequest struct {
	PermissionCode string `json:"permission_code" validate:"required,max=128"`
}

type bulkAssignRequest struct {
	Overrides []OverrideInput `json:"overrides" validate:"required,min=1,dive"`
}

type copyRequest struct {
	SourceUserID string `json:"source_user_id" validate:"required,max=64"`
}

type roleSyncResponse struct {
	Role    string   `json:"role"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := PermissionFilter{
		Module: strings.TrimSpace(q.Get("module")),
		Action: strings.TrimSpace(q.Get("action")),
		Search: strings.TrimSpace(q.Get("search")),
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: active must be a boolean", ErrValidation))
			return
		}
		filter.IsActive = &active
	}
	page, perPage := pageParams(r)
	result, err := h.services.Catalog.List(r.Context(), filter, page, perPage)
	if err != nil {
		h.fail(w, r, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.services.Catalog.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) getPermissionByCode(w http.ResponseWriter, r *http.Request) {
	perm, err := h.services.Catalog.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "get permission by code", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var input PermissionInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.services.Catalog.Create(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var update PermissionUpdate
	if err := httpx.DecodeJSON(w, r, &update); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.services.Catalog.Update(r.Context(), id, update)
	if err != nil {
		h.fail(w, r, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.services.Catalog.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	codes, err := h.services.Roles.PermissionsForRole(r.Context(), role)
	if err != nil {
		h.fail(w, r, "list role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": NormalizeRole(role), "permissions": codes})
}

func (h *Handler) assignRolePermission(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	role := chi.URLParam(r, "role")
	if err := h.services.Roles.Assign(r.Context(), role, req.PermissionCode); err != nil {
		h.fail(w, r, "assign role permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, RoleAssignment{Role: NormalizeRole(role), PermissionCode: NormalizeCode(req.PermissionCode)})
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req codesRequest
	if !h.decode(w, r, &req) {
		return
	}
	role := chi.URLParam(r, "role")
	added, removed, err := h.services.Roles.SetRolePermissions(r.Context(), role, req.Codes)
	if err != nil {
		h.fail(w, r, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleSyncResponse{Role: NormalizeRole(role), Added: added, Removed: removed})
}

func (h *Handler) removeRolePermission(w http.ResponseWriter, r *http.Request) {
	removed, err := h.services.Roles.Remove(r.Context(), chi.URLParam(r, "role"), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, "remove role permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) userSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.services.Resolver.Summary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, "user permission summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		httpx.RespondError(w, fmt.Errorf("%w: code query parameter required", ErrValidation))
		return
	}
	decision, err := h.services.Resolver.Decide(r.Context(), chi.URLParam(r, "userID"), code, r.URL.Query().Get("resource"))
	if err != nil {
		h.fail(w, r, "check permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	page, perPage := pageParams(r)
	result, err := h.services.Overrides.ListForUser(r.Context(), chi.URLParam(r, "userID"), page, perPage)
	if err != nil {
		h.fail(w, r, "list overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) assignOverride(w http.ResponseWriter, r *http.Request) {
	var input OverrideInput
	if !h.decode(w, r, &input) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.services.Coordinator.Assign(r.Context(), actor, chi.URLParam(r, "userID"), input)
	if err != nil {
		h.fail(w, r, "assign override", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.services.Coordinator.Remove(r.Context(), actor, chi.URLParam(r, "userID"), chi.URLParam(r, "code"), r.URL.Query().Get("resource"))
	if err != nil {
		h.fail(w, r, "remove override", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) bulkAssign(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.services.Coordinator.BulkAssign(r.Context(), actor, chi.URLParam(r, "userID"), req.Overrides)
	if err != nil {
		h.fail(w, r, "bulk assign overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) bulkRemove(w http.ResponseWriter, r *http.Request) {
	var req codesRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.services.Coordinator.BulkRemove(r.Context(), actor, chi.URLParam(r, "userID"), req.Codes)
	if err != nil {
		h.fail(w, r, "bulk remove overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) syncOverrides(w http.ResponseWriter, r *http.Request) {
	var req codesRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.services.Coordinator.ReplaceAll(r.Context(), actor, chi.URLParam(r, "userID"), req.Codes)
	if err != nil {
		h.fail(w, r, "sync overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) copyOverrides(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.services.Coordinator.CopyAll(r.Context(), actor, req.SourceUserID, chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, "copy overrides", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// decode reads and validates a JSON body, answering the request itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.RespondError(w, validationError(err))
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if shared.KindOf(err) == "internal" {
		h.logger.Error(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.String("kind", shared.KindOf(err)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid permission id", ErrValidation)
	}
	return id, nil
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return shared.NormalizePage(page, perPage)
}
