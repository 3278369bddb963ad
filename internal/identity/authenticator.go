package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"go.uber.org/zap"
)

// ErrChallengeFailed is returned when a login signature cannot be accepted:
// no pending challenge, an expired one, or a bad signature.
var ErrChallengeFailed = errors.New("challenge failed")

// DefaultChallengeTTL is how long a login challenge may be answered.
const DefaultChallengeTTL = 5 * time.Minute

// Challenge is handed to a client that wants to log in.
type Challenge struct {
	Address   waveledger.Address `json:"address"`
	Nonce     string             `json:"nonce"`
	Message   string             `json:"message"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Session is the result of a successful login.
type Session struct {
	Address   waveledger.Address `json:"address"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Authenticator runs the challenge/response login.
type Authenticator struct {
	store  ChallengeStore
	tokens *TokenIssuer
	ttl    time.Duration
	logger *zap.Logger
}

// NewAuthenticator creates an Authenticator. A zero ttl uses DefaultChallengeTTL.
func NewAuthenticator(store ChallengeStore, tokens *TokenIssuer, ttl time.Duration, logger *zap.Logger) *Authenticator {
	if ttl == 0 {
		ttl = DefaultChallengeTTL
	}
	return &Authenticator{store: store, tokens: tokens, ttl: ttl, logger: logger}
}

// Challenge creates a fresh nonce for the holder of pubKeyHex.
func (a *Authenticator) Challenge(ctx context.Context, pubKeyHex string) (*Challenge, error) {
	pub, err := ParsePublicKey(pubKeyHex)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)

	if err := a.store.Put(ctx, hex.EncodeToString(pub), nonce, a.ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &Challenge{
		Address:   AddressFromPublicKey(pub),
		Nonce:     nonce,
		Message:   string(ChallengeMessage(nonce)),
		ExpiresAt: time.Now().UTC().Add(a.ttl),
	}, nil
}

// Verify checks a signature over the pending challenge and, on success,
// issues a session token for the derived address. The challenge is consumed
// whether or not the signature is valid.
func (a *Authenticator) Verify(ctx context.Context, pubKeyHex, sigHex string) (*Session, error) {
	pub, err := ParsePublicKey(pubKeyHex)
	if err != nil {
		return nil, err
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	nonce, ok, err := a.store.Take(ctx, hex.EncodeToString(pub))
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no pending challenge", ErrChallengeFailed)
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(pub, ChallengeMessage(nonce), sig) {
		return nil, fmt.Errorf("%w: bad signature", ErrChallengeFailed)
	}

	addr := AddressFromPublicKey(pub)
	token, err := a.tokens.Issue(addr)
	if err != nil {
		return nil, err
	}
	a.logger.Info("waver logged in", zap.String("address", addr.String()))

	return &Session{
		Address:   addr,
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(a.tokens.TTL()),
	}, nil
}

// SignChallenge signs the login message for nonce. Used by clients.
func SignChallenge(priv ed25519.PrivateKey, nonce string) string {
	return hex.EncodeToString(ed25519.Sign(priv, ChallengeMessage(nonce)))
}
