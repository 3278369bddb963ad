package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/WavePortal/internal/identity"
	"go.uber.org/zap"
)

// AuthHandler serves the challenge/response login that yields waver tokens.
type AuthHandler struct {
	auth   *identity.Authenticator
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *identity.Authenticator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	{
		a.POST("/challenge", h.Challenge)
		a.POST("/verify", h.Verify)
	}
}

type challengeRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
}

type verifyRequest struct {
	PublicKey string `json:"public_key" binding:"required"`
	Signature string `json:"signature"  binding:"required"`
}

// Challenge handles POST /auth/challenge: returns a nonce for the key holder to sign.
func (h *AuthHandler) Challenge(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ch, err := h.auth.Challenge(c.Request.Context(), req.PublicKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Verify handles POST /auth/verify: exchanges a signed challenge for a bearer token.
func (h *AuthHandler) Verify(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	sess, err := h.auth.Verify(c.Request.Context(), req.PublicKey, req.Signature)
	if err != nil {
		if errors.Is(err, identity.ErrChallengeFailed) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warn("login verify", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":    sess.Address,
		"token":      sess.Token,
		"token_type": "Bearer",
		"expires_at": sess.ExpiresAt,
	})
}
