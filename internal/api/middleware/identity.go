package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
)

// Headers set by the outer auth layer and by clients.
const (
	HeaderUser       = "X-Auth-User"
	HeaderRole       = "X-Auth-Role"
	HeaderRequestID  = "X-Request-ID"
	HeaderRoomToken  = "X-Room-Token"
	HeaderPinSession = "X-Pin-Session"
)

// RoleAdmin is the role allowed to run maintenance and seed apps.
const RoleAdmin = "admin"

const (
	identityKey  = "identity"
	requestIDKey = "request_id"
)

// Identity is the caller as asserted by the trusted outer auth layer.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller has the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Authenticated reports whether a user id was attached.
func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Attach reads the identity headers into the request context.
func Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, Identity{
			UserID: strings.TrimSpace(c.GetHeader(HeaderUser)),
			Role:   strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderRole))),
		})
		c.Next()
	}
}

// IdentityFrom returns the caller identity, empty when none was attached.
func IdentityFrom(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if ident, ok := v.(Identity); ok {
			return ident
		}
	}
	return Identity{}
}

// RequireUser rejects anonymous callers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IdentityFrom(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   apperr.Forbidden,
				"message": "authentication required",
			})
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IdentityFrom(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   apperr.Forbidden,
				"message": "admin role required",
			})
			return
		}
		c.Next()
	}
}

// RequestID tags every request with an id, reusing a well-formed inbound
// one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if !id.IsPrefixed(rid, id.RequestPrefix) {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

// RequestIDFrom returns the request id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
