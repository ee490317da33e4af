package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// maxPatchBody bounds a patch request; the store enforces finer limits.
const maxPatchBody = 2 << 20

// PatchRequest is the body of a storage patch.
type PatchRequest struct {
	Ops     []types.PatchOp `json:"ops"`
	IfMatch string          `json:"if_match,omitempty"`
}

// GetStorage returns a namespace snapshot with its version as ETag.
func (h *Handlers) GetStorage(c *gin.Context) {
	ctx := c.Request.Context()
	ns := c.Query("ns")
	if err := h.authorizeStorage(ctx, c, ns); err != nil {
		h.respondError(c, err)
		return
	}

	snap, err := h.kv.Get(ctx, ns)
	if err != nil {
		h.respondError(c, err)
		return
	}
	tag := etag(snap.Version)
	c.Header("ETag", tag)
	c.Header("Cache-Control", "no-store")
	if c.GetHeader("If-None-Match") == tag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PatchStorage applies a batch of operations when If-Match names the
// current version. A stale version answers 412 with the current snapshot.
func (h *Handlers) PatchStorage(c *gin.Context) {
	ctx := c.Request.Context()
	ns := c.Query("ns")
	if err := h.authorizeStorage(ctx, c, ns); err != nil {
		h.respondError(c, err)
		return
	}
	if !h.patches.Allow(callerKey(c) + "|" + ns) {
		h.respondError(c, apperr.E(apperr.RateLimited, "too many storage writes, slow down"))
		return
	}

	var req PatchRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPatchBody)
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Wrap(err, apperr.InputInvalid, "invalid patch body"))
		return
	}
	ifMatch := c.GetHeader("If-Match")
	if ifMatch == "" {
		ifMatch = req.IfMatch
	}

	snap, err := h.kv.Patch(ctx, ns, req.Ops, ifMatch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("ETag", etag(snap.Version))
	c.JSON(http.StatusOK, snap)
}

// authorizeStorage admits a namespace of an existing app with storage
// enabled. Room namespaces also need a matching room token.
func (h *Handlers) authorizeStorage(ctx context.Context, c *gin.Context, ns string) error {
	parsed, err := utils.ParseNamespace(ns)
	if err != nil {
		return apperr.Wrap(err, apperr.InputInvalid, "invalid namespace")
	}
	app, err := h.apps.Get(ctx, parsed.AppID)
	if err != nil {
		return err
	}
	if !app.Capabilities.Storage && !(parsed.IsRoom() && app.Capabilities.Rooms) {
		return apperr.E(apperr.Forbidden, "storage is not enabled for this app")
	}
	return h.sessions.AuthorizeNamespace(ns, c.GetHeader(middleware.HeaderRoomToken))
}
