package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesara-space/forge/internal/shared/apperr"
)

// RoomRequest is the body of room create and join requests.
type RoomRequest struct {
	AppID    string `json:"appId"`
	RoomName string `json:"roomName"`
	Pin      string `json:"pin"`
}

// CreateRoom creates a PIN-protected room.
func (h *Handlers) CreateRoom(c *gin.Context) {
	var err error
	defer h.track.TrackSessionOperation("create_room", &err)()

	var req RoomRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	access, err := h.sessions.CreateRoom(c.Request.Context(), req.AppID, req.RoomName, req.Pin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, access)
}

// JoinRoom enters an existing room with its PIN.
func (h *Handlers) JoinRoom(c *gin.Context) {
	var err error
	defer h.track.TrackSessionOperation("join_room", &err)()

	var req RoomRequest
	if err = c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	if !h.pins.Allow(c.ClientIP() + "|" + req.AppID) {
		err = apperr.E(apperr.RateLimited, "too many attempts, try again later")
		h.respondError(c, err)
		return
	}
	access, err := h.sessions.JoinRoom(c.Request.Context(), req.AppID, req.RoomName, req.Pin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, access)
}

// DemoRoom enters the app's shared demo room.
func (h *Handlers) DemoRoom(c *gin.Context) {
	var req struct {
		AppID string `json:"appId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AppID == "" {
		h.badRequest(c, "appId is required")
		return
	}
	access, err := h.sessions.DemoRoom(c.Request.Context(), req.AppID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, access)
}

// ListRooms lists an app's rooms for its owner.
func (h *Handlers) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	rooms, err := h.sessions.ListRooms(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}
