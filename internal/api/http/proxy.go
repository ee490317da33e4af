package http

import (
	"github.com/gin-gonic/gin"
)

// Proxy relays a GET for a sandboxed app through its network policy.
func (h *Handlers) Proxy(c *gin.Context) {
	appID := c.Query("appId")
	target := c.Query("url")
	if appID == "" || target == "" {
		h.badRequest(c, "appId and url are required")
		return
	}

	resp, err := h.gateway.Proxy(c.Request.Context(), appID, target)
	if err != nil {
		h.respondError(c, err)
		return
	}

	for key, values := range resp.Header {
		for _, v := range values {
			c.Writer.Header().Add(key, v)
		}
	}
	c.Header("X-Content-Type-Options", "nosniff")
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.Status, contentType, resp.Body)
}
