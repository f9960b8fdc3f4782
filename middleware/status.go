package middleware

import (
	"errors"
	"net/http"

	goRotate "github.com/MrEthical07/goRotate"
)

// StatusForError maps engine errors onto HTTP status codes. Invalid and reused
// refresh tokens are both 401 so clients re-authenticate; store outages are 503.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, goRotate.ErrRefreshReuse),
		errors.Is(err, goRotate.ErrRefreshInvalid),
		errors.Is(err, goRotate.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, goRotate.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, goRotate.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the public message of err with its mapped status.
func WriteError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusForError(err))
}
