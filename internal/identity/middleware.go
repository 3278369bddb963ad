package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
)

const (
	ctxWaverAddress = "waveportal_waver_address"
	ctxWaverClaims  = "waveportal_waver_claims"
)

// BearerToken extracts the token from an "Authorization: Bearer ..." header value.
func BearerToken(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return tok, tok != ""
}

// RequireWaver returns a Gin middleware that enforces a valid Bearer session token.
//
// On success it injects the caller's address into the context under the
// "waveportal_waver_address" key.
func RequireWaver(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token: " + err.Error(),
			})
			return
		}
		addr, _ := claims.Waver()

		c.Set(ctxWaverClaims, claims)
		c.Set(ctxWaverAddress, addr)
		c.Next()
	}
}

// OptionalWaver is like RequireWaver but never aborts; it skips injection when
// the header is absent or the token fails verification.
func OptionalWaver(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr, ok := BearerToken(c.GetHeader("Authorization")); ok {
			if claims, err := tokens.Verify(tokenStr); err == nil {
				addr, _ := claims.Waver()
				c.Set(ctxWaverClaims, claims)
				c.Set(ctxWaverAddress, addr)
			}
		}
		c.Next()
	}
}

// AddressFromCtx retrieves the caller address injected by RequireWaver or
// OptionalWaver. ok is false for anonymous callers.
func AddressFromCtx(c *gin.Context) (waveledger.Address, bool) {
	v, exists := c.Get(ctxWaverAddress)
	if !exists {
		return waveledger.ZeroAddress, false
	}
	addr, ok := v.(waveledger.Address)
	return addr, ok
}

// ClaimsFromCtx retrieves the session claims injected by RequireWaver.
func ClaimsFromCtx(c *gin.Context) *WaverClaims {
	v, _ := c.Get(ctxWaverClaims)
	claims, _ := v.(*WaverClaims)
	return claims
}
