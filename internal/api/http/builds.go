package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thesara-space/forge/internal/domain/artifact"
	"github.com/thesara-space/forge/internal/domain/bundler"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// formOverhead is the slack allowed over the source limit for multipart
// framing and fields.
const formOverhead = 1 << 20

// SubmitBuild accepts JSON source or a multipart ZIP archive and queues a
// build.
func (h *Handlers) SubmitBuild(c *gin.Context) {
	var err error
	defer h.track.TrackBuildOperation("submit", &err)()
	ctx := c.Request.Context()

	var req types.BuildRequest
	var src *bundler.Source
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, src, err = h.archiveSource(c)
	} else {
		req, src, err = h.jsonSource(c)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	if _, err = h.owned(ctx, c, req.AppID); err != nil {
		h.respondError(c, err)
		return
	}

	rec, err := h.builds.Submit(ctx, req.AppID, req.Mode, src)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"buildId": rec.ID,
		"status":  rec.Status,
	})
}

func (h *Handlers) jsonSource(c *gin.Context) (types.BuildRequest, *bundler.Source, error) {
	var req types.BuildRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxBytes+formOverhead)
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, nil, apperr.Wrap(err, apperr.InputInvalid, "invalid build request")
	}
	if req.AppID == "" {
		return req, nil, apperr.E(apperr.InputInvalid, "app_id is required")
	}

	var src *bundler.Source
	var err error
	switch {
	case req.Source != "" && len(req.Files) > 0:
		return req, nil, apperr.E(apperr.InputInvalid, "send either source or files, not both")
	case req.Source != "":
		src, err = bundler.FromSingle(req.Entry, req.Source, h.limits)
	default:
		src, err = bundler.FromFiles(req.Entry, req.SourceFiles(), h.limits)
	}
	return req, src, err
}

func (h *Handlers) archiveSource(c *gin.Context) (types.BuildRequest, *bundler.Source, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxBytes+formOverhead)
	req := types.BuildRequest{
		AppID: c.PostForm("app_id"),
		Mode:  types.BuildMode(c.PostForm("mode")),
		Entry: c.PostForm("entry"),
	}
	if req.AppID == "" {
		return req, nil, apperr.E(apperr.InputInvalid, "app_id is required")
	}

	fh, err := c.FormFile("archive")
	if err != nil {
		return req, nil, apperr.Wrap(err, apperr.InputInvalid, "archive file is required")
	}
	if fh.Size > h.limits.MaxBytes {
		return req, nil, apperr.E(apperr.InputInvalid, "archive exceeds %d bytes", h.limits.MaxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return req, nil, apperr.Wrap(err, apperr.InputInvalid, "unreadable archive")
	}
	defer f.Close()

	src, err := bundler.FromZip(f, fh.Size, req.Entry, h.limits)
	return req, src, err
}

// GetBuild returns a build record and, once written, its artifact index.
func (h *Handlers) GetBuild(c *gin.Context) {
	rec, err := h.builds.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := gin.H{"build": rec}
	if rec.Status == types.BuildPublished {
		if idx, err := h.builds.Index(rec.ID); err == nil {
			resp["index"] = idx
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetBuildIndex returns a build's artifact index.
func (h *Handlers) GetBuildIndex(c *gin.Context) {
	rec, err := h.builds.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	idx, err := h.builds.Index(rec.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, idx)
}

// ServeArtifact serves one indexed file of a published build.
func (h *Handlers) ServeArtifact(c *gin.Context) {
	rec, err := h.builds.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rec.Status != types.BuildPublished {
		h.respondError(c, apperr.E(apperr.NotFound, "build %s is not published", rec.ID))
		return
	}

	name := strings.TrimPrefix(c.Param("file"), "/")
	data, meta, err := h.store.ReadArtifact(rec.ID, name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	tag := etag(meta.SHA256)
	c.Header("ETag", tag)
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("X-Content-Type-Options", "nosniff")
	if c.GetHeader("If-None-Match") == tag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, artifact.ContentType(name, data), data)
}

// ListBuilds lists an app's builds for its owner.
func (h *Handlers) ListBuilds(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	builds, err := h.builds.List(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if builds == nil {
		builds = []*types.BuildRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"builds": builds})
}

func etag(v string) string {
	return `"` + v + `"`
}
