package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusevents/internal/domain"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr *domain.ValidationError
		dup  *domain.DuplicateMarkError
		na   *domain.NotApprovedError
		pe   *domain.PersistenceError
	)
	switch {
	case errors.Is(err, domain.ErrEventNotFound), errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict), errors.As(err, &dup), errors.As(err, &na):
		return http.StatusConflict
	case errors.As(err, &pe), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
