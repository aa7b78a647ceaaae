package httpapi

import (
	"net/http"

	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/platform/httpx"
	"github.com/fraudlens/fraudlens/internal/session"
)

func sessionIDFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	// Non-browser clients send the id as a bearer-style header.
	return r.Header.Get("X-Session-ID")
}

// RequirePermission gates a route on a single permission. A missing or
// dead session yields 401; a live session without the permission 403.
func RequirePermission(facade *session.Facade, cookieName, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionIDFromRequest(r, cookieName)
			if id == "" {
				httpx.RespondError(w, httpx.ErrNoSession)
				return
			}
			valid, err := facade.Validate(r.Context(), id)
			if err != nil {
				httpx.RespondError(w, httpx.ErrUnavailable)
				return
			}
			if !valid {
				httpx.RespondError(w, httpx.ErrSessionDead)
				return
			}
			if !facade.HasPermission(r.Context(), id, permission) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole gates a route on access-list membership: the session's
// role must be explicitly listed. Hierarchy does not apply here.
func RequireAnyRole(facade *session.Facade, cookieName string, roles ...authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionIDFromRequest(r, cookieName)
			if id == "" {
				httpx.RespondError(w, httpx.ErrNoSession)
				return
			}
			if !facade.HasAnyRole(r.Context(), id, roles) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireMinimumRole gates a route on hierarchy rank.
func RequireMinimumRole(facade *session.Facade, cookieName string, role authz.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionIDFromRequest(r, cookieName)
			if id == "" {
				httpx.RespondError(w, httpx.ErrNoSession)
				return
			}
			if !facade.MeetsMinimumRole(r.Context(), id, role) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
