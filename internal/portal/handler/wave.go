package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/WavePortal/internal/identity"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"go.uber.org/zap"
)

// MaxBodyBytes caps every JSON request body accepted by the portal.
const MaxBodyBytes = 1 << 20

// WaveHandler exposes the wave ledger over HTTP.
type WaveHandler struct {
	svc    *service.PortalService
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewWaveHandler creates a new WaveHandler.
func NewWaveHandler(svc *service.PortalService, tokens *identity.TokenIssuer, logger *zap.Logger) *WaveHandler {
	return &WaveHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the wave routes on the given router group.
func (h *WaveHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/portal", h.Info)

	w := rg.Group("/waves")
	{
		w.GET("", h.List)
		w.GET("/count", h.Count)
		w.GET("/visible", identity.OptionalWaver(h.tokens), h.Visible)

		auth := w.Group("", identity.RequireWaver(h.tokens))
		auth.POST("", h.Wave)
		auth.PATCH("/:idx/approval", h.SetApproval)
		auth.POST("/:idx/approve", h.approveShorthand(true))
		auth.POST("/:idx/reject", h.approveShorthand(false))
	}
}

type waveRequest struct {
	Message *string `json:"message" binding:"required"`
}

type approvalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// Wave handles POST /waves: appends a wave from the authenticated caller.
func (h *WaveHandler) Wave(c *gin.Context) {
	sender, ok := identity.AddressFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	var req waveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	rec, err := h.svc.Wave(c.Request.Context(), sender, *req.Message)
	if err != nil {
		h.writeWaveError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"index": rec.Index,
		"wave":  rec,
	})
}

func (h *WaveHandler) writeWaveError(c *gin.Context, err error) {
	var rl *waveledger.RateLimitError
	switch {
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.FormatInt(int64(rl.RetryAfter()/time.Second), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":    waveledger.ErrRateLimited.Error(),
			"retry_at": rl.RetryAt,
		})
	case errors.Is(err, waveledger.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, waveledger.ErrMessageTooLong):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	default:
		h.logger.Error("wave", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store wave"})
	}
}

// List handles GET /waves: returns the full ledger in append order.
func (h *WaveHandler) List(c *gin.Context) {
	waves, err := h.svc.Waves(c.Request.Context())
	if err != nil {
		h.logger.Error("list waves", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query waves"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"waves": waves,
		"count": len(waves),
	})
}

// Count handles GET /waves/count.
func (h *WaveHandler) Count(c *gin.Context) {
	n, err := h.svc.TotalWaves(c.Request.Context())
	if err != nil {
		h.logger.Error("count waves", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query waves"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": n})
}

// Visible handles GET /waves/visible: the moderated view for the caller,
// newest first. Anonymous callers see approved waves only.
func (h *WaveHandler) Visible(c *gin.Context) {
	viewer, _ := identity.AddressFromCtx(c)
	waves, err := h.svc.VisibleWaves(c.Request.Context(), viewer)
	if err != nil {
		h.logger.Error("visible waves", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query waves"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"waves":    waves,
		"count":    len(waves),
		"is_owner": !viewer.IsZero() && viewer == h.svc.Owner(),
	})
}

// SetApproval handles PATCH /waves/:idx/approval.
func (h *WaveHandler) SetApproval(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	h.setApproval(c, *req.Approved)
}

// approveShorthand serves POST /waves/:idx/approve and /reject.
func (h *WaveHandler) approveShorthand(approved bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.setApproval(c, approved)
	}
}

func (h *WaveHandler) setApproval(c *gin.Context, approved bool) {
	caller, ok := identity.AddressFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be an integer"})
		return
	}

	if err := h.svc.SetApproval(c.Request.Context(), caller, idx, approved); err != nil {
		switch {
		case errors.Is(err, waveledger.ErrUnauthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, waveledger.ErrIndexOutOfRange):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			h.logger.Error("set approval", zap.Int("index", idx), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update approval"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"index":    idx,
		"approved": approved,
	})
}

// Info handles GET /portal.
func (h *WaveHandler) Info(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context())
	if err != nil {
		h.logger.Error("portal info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query portal"})
		return
	}
	c.JSON(http.StatusOK, info)
}
