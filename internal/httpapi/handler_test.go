package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/fraudlens/internal/authz"
	"github.com/fraudlens/fraudlens/internal/httpapi"
	"github.com/fraudlens/fraudlens/internal/session"
	_ "github.com/fraudlens/fraudlens/testing"
)

type stubVerifier struct {
	principal authz.Principal
	err       error
}

func (v *stubVerifier) Verify(_ context.Context, _, _ string) (authz.Principal, error) {
	if v.err != nil {
		return authz.Principal{}, v.err
	}
	return v.principal, nil
}

const cookieName = "test_session"

func newServer(t *testing.T, verifier session.Verifier) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := session.NewRedisStore(client, session.StoreConfig{Timeout: time.Second, Attempts: 2, Backoff: 5 * time.Millisecond})
	manager, err := session.NewManager(session.ManagerParams{
		Store:    store,
		Verifier: verifier,
		Config:   session.Config{TTL: time.Hour},
	})
	require.NoError(t, err)
	t.Cleanup(manager.Scheduler().Shutdown)

	catalog, err := authz.NewCatalog(authz.DefaultDefinitions())
	require.NoError(t, err)
	facade := session.NewFacade(manager, authz.NewEvaluator(catalog))

	handler := httpapi.NewHandler(nil, facade, httpapi.CookieConfig{Name: cookieName})
	r := chi.NewRouter()
	handler.MountRoutes(r)
	handler.MountAdminRoutes(r)
	r.With(httpapi.RequirePermission(facade, cookieName, "reports:view:all")).
		Get("/reports/all", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	return r
}

func login(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	return res
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == cookieName {
			return cookie
		}
	}
	t.Fatalf("session cookie not set")
	return nil
}

func TestLoginSetsSessionCookie(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-1", Role: authz.RoleOfficer}})

	res := login(t, srv, `{"email":"officer@portal.local","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, res.Code)

	cookie := sessionCookie(t, res)
	require.NotEmpty(t, cookie.Value)
	require.True(t, cookie.HttpOnly)

	var payload struct {
		Session struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
			State  string `json:"state"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, "u-1", payload.Session.UserID)
	require.Equal(t, "officer", payload.Session.Role)
	require.Equal(t, "active", payload.Session.State)
}

func TestLoginValidation(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-1", Role: authz.RoleCitizen}})

	res := login(t, srv, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLoginInvalidCredentialsIsGeneric(t *testing.T) {
	srv := newServer(t, &stubVerifier{err: session.ErrInvalidCredentials})

	res := login(t, srv, `{"email":"officer@portal.local","password":"wrong-password"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.NotContains(t, res.Body.String(), "email")
	require.NotContains(t, res.Body.String(), "password is")
}

func TestLoginLockedAccount(t *testing.T) {
	srv := newServer(t, &stubVerifier{err: &session.AccountLockedError{Remaining: 9 * time.Minute}})

	res := login(t, srv, `{"email":"officer@portal.local","password":"whatever-pw"}`)
	require.Equal(t, http.StatusLocked, res.Code)
	require.Contains(t, res.Body.String(), "9m0s")
}

func TestSessionEndpointRoundTrip(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-2", Role: authz.RoleAdmin}})

	loginRes := login(t, srv, `{"email":"admin@portal.local","password":"correct-horse"}`)
	cookie := sessionCookie(t, loginRes)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	// After logout the same id is gone.
	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(cookie)
	logoutRes := httptest.NewRecorder()
	srv.ServeHTTP(logoutRes, logoutReq)
	require.Equal(t, http.StatusNoContent, logoutRes.Code)

	req = httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(cookie)
	res = httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestExtendEndpoint(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-3", Role: authz.RoleCitizen}})

	loginRes := login(t, srv, `{"email":"citizen@portal.local","password":"correct-horse"}`)
	cookie := sessionCookie(t, loginRes)

	req := httptest.NewRequest(http.MethodPost, "/session/extend", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)

	// Without a session the extend is unauthorized.
	res = httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/session/extend", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestRequirePermissionGuard(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-4", Role: authz.RoleCitizen}})

	// No session at all.
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/reports/all", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)

	// Citizen lacks reports:view:all.
	loginRes := login(t, srv, `{"email":"citizen@portal.local","password":"correct-horse"}`)
	cookie := sessionCookie(t, loginRes)
	req := httptest.NewRequest(http.MethodGet, "/reports/all", nil)
	req.AddCookie(cookie)
	res = httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	require.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequirePermissionAllowsAuthorized(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-5", Role: authz.RoleAdmin}})

	loginRes := login(t, srv, `{"email":"admin@portal.local","password":"correct-horse"}`)
	cookie := sessionCookie(t, loginRes)

	req := httptest.NewRequest(http.MethodGet, "/reports/all", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestForcedTerminationRequiresPermission(t *testing.T) {
	srv := newServer(t, &stubVerifier{principal: authz.Principal{ID: "u-6", Role: authz.RoleSuperAdmin}})

	loginRes := login(t, srv, `{"email":"root@portal.local","password":"correct-horse"}`)
	cookie := sessionCookie(t, loginRes)

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/u-6/sessions", nil)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	srv.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)

	// The superadmin terminated their own sessions; the cookie is dead.
	sessReq := httptest.NewRequest(http.MethodGet, "/session", nil)
	sessReq.AddCookie(cookie)
	sessRes := httptest.NewRecorder()
	srv.ServeHTTP(sessRes, sessReq)
	require.Equal(t, http.StatusUnauthorized, sessRes.Code)
}
