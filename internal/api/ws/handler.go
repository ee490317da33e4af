package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// Builds is the build pipeline as seen by the event stream.
type Builds interface {
	Get(ctx context.Context, buildID string) (*types.BuildRecord, error)
	Subscribe(buildID string) (<-chan types.BuildEvent, func())
}

// Message is one frame sent to the client.
type Message struct {
	Type      string             `json:"type"`
	Build     *types.BuildRecord `json:"build,omitempty"`
	Event     *types.BuildEvent  `json:"event,omitempty"`
	Message   string             `json:"message,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// Handler manages WebSocket connections
type Handler struct {
	builds   Builds
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler. Origins lists the allowed
// browser origins; "*" or an empty list allows any.
func NewHandler(builds Builds, origins []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		builds: builds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		logger: logger,
	}
}

// WithMetrics adds metrics tracking to the handler
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// HandleBuildEvents upgrades the request and streams one build's events.
func (h *Handler) HandleBuildEvents(c *gin.Context) {
	ctx := c.Request.Context()
	buildID := c.Param("id")

	// Subscribe before reading the record so no transition falls between.
	events, cancel := h.builds.Subscribe(buildID)
	defer cancel()

	rec, err := h.builds.Get(ctx, buildID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": apperr.KindOf(err), "message": apperr.Message(err)})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.String("build_id", buildID), zap.Error(err))
		return
	}
	defer conn.Close()
	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	if err := h.send(conn, Message{Type: "snapshot", Build: rec}); err != nil {
		return
	}
	if rec.Status.Terminal() {
		h.closeNormal(conn, "build finished")
		return
	}

	gone := h.readLoop(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				h.finish(ctx, conn, buildID)
				return
			}
			if err := h.send(conn, Message{Type: "event", Event: &ev}); err != nil {
				return
			}
			if ev.Final {
				h.closeNormal(conn, "build finished")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-ctx.Done():
			return
		}
	}
}

// readLoop drains client frames so control messages are processed. The
// returned channel closes when the client goes away.
func (h *Handler) readLoop(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			h.metrics.RecordWSMessage("in", "client")
		}
	}()
	return gone
}

// finish ends a stream whose events were cut short with the stored record.
func (h *Handler) finish(ctx context.Context, conn *websocket.Conn, buildID string) {
	rec, err := h.builds.Get(context.WithoutCancel(ctx), buildID)
	if err != nil {
		h.sendError(conn, apperr.Message(err))
		return
	}
	if h.send(conn, Message{Type: "snapshot", Build: rec}) == nil {
		h.closeNormal(conn, "stream ended")
	}
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	msg.Timestamp = time.Now().Unix()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	h.metrics.RecordWSMessage("out", msg.Type)
	return nil
}

func (h *Handler) sendError(conn *websocket.Conn, message string) error {
	return h.send(conn, Message{Type: "error", Message: message})
}

func (h *Handler) closeNormal(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.InputInvalid:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
