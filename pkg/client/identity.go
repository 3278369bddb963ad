package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmerrifield20/WavePortal/internal/identity"
)

// Key is a waver's signing key.
type Key struct {
	Private ed25519.PrivateKey
}

// GenerateKey creates a fresh random key.
func GenerateKey() (*Key, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Key{Private: priv}, nil
}

// Public returns the hex-encoded public key.
func (k *Key) Public() string {
	return hex.EncodeToString(k.Private.Public().(ed25519.PublicKey))
}

// Address returns the waver address the portal derives for this key.
func (k *Key) Address() string {
	return identity.AddressFromPublicKey(k.Private.Public().(ed25519.PublicKey)).String()
}

// Sign signs the login challenge for nonce.
func (k *Key) Sign(nonce string) string {
	return identity.SignChallenge(k.Private, nonce)
}

// LoadKey reads a hex-encoded ed25519 seed from path.
func LoadKey(path string) (*Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("decode key %s: %w", path, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key %s: want %d-byte seed, got %d", path, ed25519.SeedSize, len(seed))
	}
	return &Key{Private: ed25519.NewKeyFromSeed(seed)}, nil
}

// SaveKey writes the key seed to path with 0600 permissions.
func SaveKey(path string, k *Key) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	seed := hex.EncodeToString(k.Private.Seed())
	if err := os.WriteFile(path, []byte(seed+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key %s: %w", path, err)
	}
	return nil
}

// LoadOrCreateKey loads the key at path, generating and saving one if absent.
func LoadOrCreateKey(path string) (*Key, error) {
	k, err := LoadKey(path)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	k, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := SaveKey(path, k); err != nil {
		return nil, err
	}
	return k, nil
}
