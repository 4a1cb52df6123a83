package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/example/bytespark/pkg/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"message": ...}. Internal causes are logged
// and never sent to the caller.
func (g *Gateway) respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		g.logger.Error("Unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	status := statusFor(appErr.Kind)
	if status == http.StatusInternalServerError && appErr.Err != nil {
		g.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("message", appErr.Message),
			zap.Error(appErr.Err))
	}
	c.JSON(status, gin.H{"message": appErr.Message})
}

// abortWith stops the handler chain with err's status and message.
func abortWith(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(statusFor(err.Kind), gin.H{"message": err.Message})
}

// bindJSON decodes the request body into dst. An empty body leaves dst
// zero so the service reports the missing fields.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return false
	}
	return true
}
