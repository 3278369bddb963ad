package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
)

// WaverClaims are the JWT claims of a waver session token. The subject is
// the waver's hex address and is the only place the address is carried.
type WaverClaims struct {
	jwt.RegisteredClaims
}

// Waver parses the address in the subject claim.
func (c *WaverClaims) Waver() (waveledger.Address, error) {
	return waveledger.ParseAddress(c.Subject)
}

// TokenIssuer issues and verifies waver session tokens signed with HS256.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer.
//
//	secret: HMAC key; must be at least 32 bytes.
//	issuer: the "iss" claim value.
//	ttl: token lifetime (default: 24 hours).
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue creates a signed session token for addr.
func (t *TokenIssuer) Issue(addr waveledger.Address) (string, error) {
	now := t.now().UTC()
	claims := WaverClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   addr.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims on success.
func (t *TokenIssuer) Verify(tokenStr string) (*WaverClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&WaverClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*WaverClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if _, err := claims.Waver(); err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	return claims, nil
}

// VerifyAddress verifies tokenStr and returns the waver address it carries.
func (t *TokenIssuer) VerifyAddress(tokenStr string) (waveledger.Address, error) {
	claims, err := t.Verify(tokenStr)
	if err != nil {
		return waveledger.ZeroAddress, err
	}
	return claims.Waver()
}
