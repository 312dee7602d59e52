package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shakil5281/HrHub-sub001/internal/platform/httpx"
	"github.com/shakil5281/HrHub-sub001/internal/shared"
)

// PermissionChecker answers point permission checks.
type PermissionChecker interface {
	CheckPermission(ctx context.Context, userID, code, resource string) (bool, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Checker PermissionChecker
	Logger  *slog.Logger
}

// RequireAny ensures the current actor holds at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require any", normalizeCodes(perms), false)
}

// RequireAll ensures the current actor holds all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require("rbac require all", normalizeCodes(perms), true)
}

func (m Middleware) require(label string, required []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			granted, err := m.evaluate(r.Context(), actor, required, all)
			if err != nil {
				m.logger().Error(label, slog.String("actor_id", actor), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			if !granted {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) evaluate(ctx context.Context, actor string, required []string, all bool) (bool, error) {
	for _, code := range required {
		ok, err := m.Checker.CheckPermission(ctx, actor, code, AnyResource)
		if err != nil {
			return false, err
		}
		if ok && !all {
			return true, nil
		}
		if !ok && all {
			return false, nil
		}
	}
	return all, nil
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
