package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/identity"
	"github.com/jmerrifield20/WavePortal/internal/portal/handler"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"go.uber.org/zap"
)

var (
	ownerAddr = waveledger.MustParseAddress("0x823dd0bd4df84489ad8e11c22da4af3dab431108")
	userAddr  = waveledger.MustParseAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type testEnv struct {
	router     *gin.Engine
	svc        *service.PortalService
	broker     *events.Broker
	clock      *fixedClock
	tokens     *identity.TokenIssuer
	ownerToken string
	userToken  string
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(ownerAddr), clock)
	if err != nil {
		t.Fatal(err)
	}
	broker := events.NewBroker()
	t.Cleanup(broker.Close)
	svc := service.NewPortalService(ledger, broker, zap.NewNop())

	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "waveportal-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	auth := identity.NewAuthenticator(identity.NewMemoryChallengeStore(), tokens, time.Minute, zap.NewNop())

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewWaveHandler(svc, tokens, zap.NewNop()).Register(v1)
	handler.NewAuthHandler(auth, zap.NewNop()).Register(v1)
	handler.NewStreamHandler(svc, 0, zap.NewNop()).Register(v1)

	ownerToken, _ := tokens.Issue(ownerAddr)
	userToken, _ := tokens.Issue(userAddr)
	return &testEnv{
		router:     r,
		svc:        svc,
		broker:     broker,
		clock:      clock,
		tokens:     tokens,
		ownerToken: ownerToken,
		userToken:  userToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}
