package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/domain/kv"
	"github.com/thesara-space/forge/internal/shared/apperr"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InputInvalid:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.RateLimited:
		return http.StatusTooManyRequests
	case apperr.UpstreamFailure:
		return http.StatusBadGateway
	case apperr.BuildFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body for err. A storage version conflict
// is a failed precondition and carries the current snapshot.
func (h *Handlers) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"error": kind, "message": apperr.Message(err)}

	var conflict *kv.ConflictError
	if errors.As(err, &conflict) {
		c.Header("ETag", etag(conflict.Current.Version))
		body["current"] = conflict.Current
		c.AbortWithStatusJSON(http.StatusPreconditionFailed, body)
		return
	}

	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", middleware.RequestIDFrom(c)),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

// badRequest answers a malformed body or query.
func (h *Handlers) badRequest(c *gin.Context, message string) {
	h.respondError(c, apperr.E(apperr.InputInvalid, "%s", message))
}
