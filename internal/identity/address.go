package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"golang.org/x/crypto/sha3"
)

// AddressFromPublicKey derives a waver address from an ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) waveledger.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)

	var a waveledger.Address
	copy(a[:], sum[len(sum)-waveledger.AddressLength:])
	return a
}

// ParsePublicKey decodes a hex-encoded ed25519 public key (0x prefix optional).
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ChallengeMessage is the exact byte string a waver signs to log in.
func ChallengeMessage(nonce string) []byte {
	return []byte("WavePortal login\nnonce: " + nonce)
}
