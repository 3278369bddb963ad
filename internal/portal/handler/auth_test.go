package handler_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/jmerrifield20/WavePortal/internal/identity"
)

func TestAuthLogin_thenWave(t *testing.T) {
	env := setupRouter(t)
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	pubHex := hex.EncodeToString(pub)

	w := env.do(t, http.MethodPost, "/api/v1/auth/challenge", "", map[string]string{"public_key": pubHex})
	if w.Code != http.StatusOK {
		t.Fatalf("challenge: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var ch struct {
		Nonce string `json:"nonce"`
	}
	decode(t, w, &ch)

	w = env.do(t, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"public_key": pubHex,
		"signature":  identity.SignChallenge(priv, ch.Nonce),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sess struct {
		Address string `json:"address"`
		Token   string `json:"token"`
	}
	decode(t, w, &sess)
	if sess.Address != identity.AddressFromPublicKey(pub).String() {
		t.Errorf("address: got %s", sess.Address)
	}

	w = env.do(t, http.MethodPost, "/api/v1/waves", sess.Token, map[string]string{"message": "gm"})
	if w.Code != http.StatusCreated {
		t.Fatalf("wave with login token: %d %s", w.Code, w.Body.String())
	}
}

func TestAuthVerify_401_badSignature(t *testing.T) {
	env := setupRouter(t)
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	_, other, _ := ed25519.GenerateKey(rand.Reader)
	pubHex := hex.EncodeToString(pub)

	w := env.do(t, http.MethodPost, "/api/v1/auth/challenge", "", map[string]string{"public_key": pubHex})
	var ch struct {
		Nonce string `json:"nonce"`
	}
	decode(t, w, &ch)

	w = env.do(t, http.MethodPost, "/api/v1/auth/verify", "", map[string]string{
		"public_key": pubHex,
		"signature":  identity.SignChallenge(other, ch.Nonce),
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthChallenge_400_badKey(t *testing.T) {
	env := setupRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/challenge", "", map[string]string{"public_key": "nope"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
