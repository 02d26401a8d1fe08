package httpapi

import (
	"errors"
	"net/http"

	"tabhost-server/internal/browser"
	"tabhost-server/internal/refs"

	"github.com/gin-gonic/gin"
)

// statusFor maps the failure taxonomy to HTTP status codes. Anything
// unrecognized is treated as an engine failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, browser.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, browser.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, browser.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, refs.ErrUnknownRef):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorResponse{Error: err.Error()})
}
