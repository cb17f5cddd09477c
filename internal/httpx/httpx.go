// Package httpx holds the response and binding helpers shared by handlers.
package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
)

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// RespondError renders err with the status of its kind. Internal errors
// are logged and their detail is withheld from the client.
func RespondError(c *gin.Context, logger *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)

	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": ErrorBody{
		Code:    string(kind),
		Message: apperr.PublicMessage(err),
		Fields:  apperr.FieldsOf(err),
	}})
}

// BindJSON decodes the request body, reporting malformed input as a validation error
func BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

// UUIDParam parses a path parameter as a UUID
func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}
