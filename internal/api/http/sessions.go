package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/domain/session"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// VerifyPinRequest is the body of a PIN verification.
type VerifyPinRequest struct {
	Pin    string `json:"pin"`
	AnonID string `json:"anon_id"`
}

// VerifyPin exchanges an app PIN for a session.
func (h *Handlers) VerifyPin(c *gin.Context) {
	var err error
	defer h.track.TrackSessionOperation("verify", &err)()
	appID := c.Param("id")

	var req VerifyPinRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if !h.pins.Allow(c.ClientIP() + "|" + appID) {
		err = apperr.E(apperr.RateLimited, "too many attempts, try again later")
		h.respondError(c, err)
		return
	}

	sess, err := h.sessions.VerifyAndCreateSession(c.Request.Context(), appID, req.Pin, types.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		AnonID:    req.AnonID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"app_id":     sess.AppID,
		"expires_at": sess.ExpiresAt,
	})
}

// TouchSession keeps a session alive. The id comes from the session header
// or the body.
func (h *Handlers) TouchSession(c *gin.Context) {
	sid := c.GetHeader(middleware.HeaderPinSession)
	if sid == "" {
		var body struct {
			SessionID string `json:"session_id"`
		}
		_ = c.ShouldBindJSON(&body)
		sid = body.SessionID
	}
	if sid == "" {
		h.respondError(c, session.ErrAccessDenied)
		return
	}

	sess, err := h.sessions.Touch(c.Request.Context(), c.Param("id"), sid)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"last_seen_at": sess.LastSeenAt,
		"expires_at":   sess.ExpiresAt,
	})
}

// ListSessions lists an app's active sessions for its owner.
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	sessions, err := h.sessions.List(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// RevokeSession revokes one session.
func (h *Handlers) RevokeSession(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.sessions.Revoke(ctx, app.ID, c.Param("sid")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": 1})
}

// RevokeAllSessions revokes every session of an app.
func (h *Handlers) RevokeAllSessions(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	n, err := h.sessions.RevokeAll(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

// RotatePin sets a generated PIN and revokes every session. The PIN is
// only ever shown in this response.
func (h *Handlers) RotatePin(c *gin.Context) {
	var err error
	defer h.track.TrackSessionOperation("rotate_pin", &err)()
	ctx := c.Request.Context()

	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	pin, err := h.sessions.RotatePin(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"pin": pin})
}

// SetPin sets an owner-chosen PIN and revokes every session.
func (h *Handlers) SetPin(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	var req struct {
		Pin string `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if err := h.sessions.SetPin(ctx, app.ID, req.Pin); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
