package live

import (
	"errors"
	"net/http"

	"github.com/classlive/backend/internal/models"
)

// ErrorStatus maps a domain error to the HTTP status the API surfaces it
// with. Unclassified errors become 500; they are logged with context at the
// outermost boundary and never abort other sessions.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSessionNotActive),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidRole),
		errors.Is(err, models.ErrDuplicatePending),
		errors.Is(err, models.ErrNotPending),
		errors.Is(err, models.ErrNotGranted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
