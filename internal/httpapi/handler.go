// Package httpapi exposes the session engine over HTTP for the portal UI.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fraudlens/fraudlens/internal/platform/httpx"
	"github.com/fraudlens/fraudlens/internal/session"
)

// CookieConfig controls the session cookie the handler issues.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler wires HTTP endpoints for session flows.
type Handler struct {
	logger       *slog.Logger
	facade       *session.Facade
	cookie       CookieConfig
	validator    *validator.Validate
	loginLimiter func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, facade *session.Facade, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = "fraudlens_session"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		facade:    facade,
		cookie:    cookie,
		validator: validator.New(),
	}
}

// WithLoginLimiter installs a middleware applied to the login route only.
func (h *Handler) WithLoginLimiter(mw func(http.Handler) http.Handler) *Handler {
	h.loginLimiter = mw
	return h
}

// MountRoutes registers session routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h.loginLimiter != nil {
		r.With(h.loginLimiter).Post("/auth/login", h.handleLogin)
	} else {
		r.Post("/auth/login", h.handleLogin)
	}
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
	r.Post("/session/extend", h.handleExtend)
	r.Post("/session/activity", h.handleActivity)
}

// MountAdminRoutes registers guarded administrative routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.With(RequirePermission(h.facade, h.cookie.Name, "sessions:terminate:any")).
		Delete("/admin/users/{userID}/sessions", h.handleForcedTermination)
}

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	RememberMe bool   `json:"remember_me"`
}

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	RememberMe bool      `json:"remember_me"`
}

type loginResponse struct {
	Session  sessionResponse   `json:"session"`
	Conflict *session.Conflict `json:"conflict,omitempty"`
}

func toSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		SessionID:  sess.ID,
		UserID:     sess.UserID(),
		Role:       string(sess.Principal.Role),
		State:      string(sess.State),
		CreatedAt:  sess.CreatedAt,
		ExpiresAt:  sess.ExpiresAt,
		RememberMe: sess.RememberMe,
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email and password are required")
		return
	}

	result, err := h.facade.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		h.respondLoginError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    result.Session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  result.Session.ExpiresAt,
	})
	httpx.JSON(w, http.StatusOK, loginResponse{
		Session:  toSessionResponse(result.Session),
		Conflict: result.Conflict,
	})
}

func (h *Handler) respondLoginError(w http.ResponseWriter, err error) {
	var locked *session.AccountLockedError
	var conflict *session.ConflictError
	switch {
	case errors.As(err, &locked):
		httpx.Problem(w, http.StatusLocked, "Account Locked",
			"Too many failed attempts. Try again in "+locked.Remaining.Round(time.Second).String()+".")
	case errors.As(err, &conflict):
		httpx.Problem(w, http.StatusConflict, "Already Signed In",
			"You are already signed in elsewhere. Sign out of the other session first.")
	case errors.Is(err, session.ErrStoreUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable",
			"Could not complete sign in. Please try again.")
	default:
		// Deliberately generic: no hint which field was wrong.
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Credentials",
			"Email or password is incorrect.")
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
		h.facade.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromRequest(r, h.cookie.Name)
	if id == "" {
		httpx.RespondError(w, httpx.ErrNoSession)
		return
	}
	sess, err := h.facade.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			httpx.RespondError(w, httpx.ErrSessionDead)
			return
		}
		h.logger.Error("read session", slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, toSessionResponse(sess))
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromRequest(r, h.cookie.Name)
	if id == "" {
		httpx.RespondError(w, httpx.ErrNoSession)
		return
	}
	if err := h.facade.Extend(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			httpx.RespondError(w, httpx.ErrSessionDead)
			return
		}
		httpx.Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", "Could not extend the session. Please try again.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	id := sessionIDFromRequest(r, h.cookie.Name)
	if id == "" {
		httpx.RespondError(w, httpx.ErrNoSession)
		return
	}
	if err := h.facade.RecordActivity(r.Context(), id); err != nil {
		h.logger.Warn("record activity", slog.Any("error", err))
	}
	// Activity on a gone session is a no-op.
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForcedTermination(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user id required")
		return
	}
	actor := ""
	if id := sessionIDFromRequest(r, h.cookie.Name); id != "" {
		if sess, err := h.facade.Session(r.Context(), id); err == nil {
			actor = sess.UserID()
		}
	}
	if err := h.facade.Terminate(r.Context(), userID, actor); err != nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
