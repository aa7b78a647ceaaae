package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by the guard middlewares and handlers. They
// carry the user-facing detail text, so every surface reports the same
// condition the same way.
var (
	ErrNoSession   = errors.New("no session")
	ErrSessionDead = errors.New("session expired or terminated")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("temporarily unavailable")
)

// RespondError maps a sentinel (possibly wrapped) onto an RFC7807
// problem response. Unknown errors collapse to a detail-free 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrSessionDead):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Temporarily Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
