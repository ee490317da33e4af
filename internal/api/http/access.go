package http

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// owned returns the app when the caller owns it or is an admin.
func (h *Handlers) owned(ctx context.Context, c *gin.Context, appID string) (*types.AppRecord, error) {
	app, err := h.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	ident := middleware.IdentityFrom(c)
	if ident.IsAdmin() {
		return app, nil
	}
	if !ident.Authenticated() || ident.UserID != app.OwnerID {
		return nil, apperr.E(apperr.Forbidden, "only the app owner may do this")
	}
	return app, nil
}

// callerKey identifies the caller for per-caller limits: the user when one
// is attached, the client IP otherwise.
func callerKey(c *gin.Context) string {
	if ident := middleware.IdentityFrom(c); ident.Authenticated() {
		return "user:" + ident.UserID
	}
	return "ip:" + c.ClientIP()
}
