package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flowdesk/internal/apperr"
)

// respondError aborts the request with the status for err's kind. Server-side
// failures are attached to the context so gin's logger records them, and the
// client only sees a generic message.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	message := "internal server error"
	var e *apperr.Error
	if status < http.StatusInternalServerError && errors.As(err, &e) && e.Message != "" {
		message = e.Message
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	body := gin.H{"error": message, "kind": kind}
	if latest := apperr.LatestOf(err); latest != nil {
		body["latest"] = latest
	}
	c.AbortWithStatusJSON(status, body)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperr.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
