package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"facekiosk/internal/auth"
	"facekiosk/internal/errs"
	"facekiosk/internal/kiosk"
	"facekiosk/internal/verify"
	"facekiosk/internal/workflow"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		verr *errs.ValidationError
		ferr *verify.FetchError
		cerr *verify.ComparisonError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, kiosk.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrLockedOut),
		errors.Is(err, workflow.ErrClosed):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidPIN), errors.Is(err, auth.ErrInvalidRefresh):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAdminDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, verify.ErrReferenceUnavailable):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ferr), errors.As(err, &cerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
