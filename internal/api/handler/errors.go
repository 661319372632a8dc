package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/sfbulk/internal/api/middleware"
	"github.com/timmy/sfbulk/internal/domain"
	"github.com/timmy/sfbulk/internal/repository"
)

// statusFor maps the bulk error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var terr *domain.TransportError
	var perr *domain.ProtocolError

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &terr):
		if terr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.As(err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON and records it on the gin context.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"error": err.Error()}
	var terr *domain.TransportError
	if errors.As(err, &terr) && terr.ErrorCode != "" {
		body["error_code"] = terr.ErrorCode
	}

	if status >= http.StatusInternalServerError {
		middleware.GetLogger(c).WithError(err).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, body)
}
