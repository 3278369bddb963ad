package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"go.uber.org/zap"
)

const streamKeepAlive = 15 * time.Second

// StreamHandler pushes NewWave notifications to browsers as Server-Sent Events.
type StreamHandler struct {
	svc    *service.PortalService
	buffer int
	logger *zap.Logger
}

// NewStreamHandler creates a StreamHandler. buffer is the per-client event
// buffer (0 = broker default).
func NewStreamHandler(svc *service.PortalService, buffer int, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{svc: svc, buffer: buffer, logger: logger}
}

// Register mounts GET /waves/stream.
func (h *StreamHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/waves/stream", h.Stream)
}

// Stream handles GET /waves/stream. Each accepted wave after the client
// connects is sent as a "new_wave" event; the subscription ends with the request.
func (h *StreamHandler) Stream(c *gin.Context) {
	sub := h.svc.Subscribe(h.buffer)
	if sub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notifications disabled"})
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"subscriber": sub.ID})
	c.Writer.Flush()

	h.logger.Debug("stream subscriber joined", zap.String("subscriber", sub.ID))
	defer func() {
		h.logger.Debug("stream subscriber left",
			zap.String("subscriber", sub.ID),
			zap.Uint64("dropped", sub.Dropped()),
		)
	}()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent("new_wave", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}
