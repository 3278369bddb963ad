package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/WavePortal/internal/email"
	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/health"
	"github.com/jmerrifield20/WavePortal/internal/identity"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOwner = "0x823dd0bd4df84489ad8e11c22da4af3dab431108"

func testConfig(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	v.Set("portal.owner", testOwner)
	return v
}

func TestPolicyFromConfig(t *testing.T) {
	v := testConfig(t)
	v.Set("portal.max_message_bytes", 280)

	p, err := policyFromConfig(v)
	require.NoError(t, err)
	assert.Equal(t, waveledger.MustParseAddress(testOwner), p.Owner)
	assert.Equal(t, 15*time.Minute, p.Cooldown)
	assert.Equal(t, 280, p.MaxMessageBytes)
}

func TestPolicyFromConfig_errors(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	_, err := policyFromConfig(v)
	assert.Error(t, err, "missing owner")

	v.Set("portal.owner", "0xnothex")
	_, err = policyFromConfig(v)
	assert.Error(t, err)
}

func TestOpenLedger(t *testing.T) {
	ctx := context.Background()
	v := testConfig(t)
	policy, err := policyFromConfig(v)
	require.NoError(t, err)

	l, closeFn, err := openLedger(ctx, v, policy, zap.NewNop())
	require.NoError(t, err)
	closeFn()
	_, ok := l.(*waveledger.MemoryLedger)
	assert.True(t, ok)

	v.Set("portal.store", "sqlite")
	v.Set("sqlite.path", filepath.Join(t.TempDir(), "waves.db"))
	l, closeFn, err = openLedger(ctx, v, policy, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	_, ok = l.(*waveledger.SQLLedger)
	assert.True(t, ok)

	v.Set("portal.store", "etcd")
	_, _, err = openLedger(ctx, v, policy, zap.NewNop())
	assert.Error(t, err)
}

func TestRouter_healthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(waveledger.MustParseAddress(testOwner)), waveledger.SystemClock)
	require.NoError(t, err)
	svc := service.NewPortalService(ledger, events.NewBroker(), zap.NewNop())
	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "waveportal", time.Hour)
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	r := newRouter(routerConfig{
		svc:          svc,
		tokens:       tokens,
		auth:         identity.NewAuthenticator(identity.NewMemoryChallengeStore(), tokens, 0, zap.NewNop()),
		corsOrigins:  []string{"*"},
		rateLimitRPS: 100,
		stop:         stop,
	}, zap.NewNop())

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/v1/portal", "/api/v1/waves"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
	}
}

func TestRouter_readyzReflectsCriticalChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(waveledger.MustParseAddress(testOwner)), waveledger.SystemClock)
	require.NoError(t, err)
	svc := service.NewPortalService(ledger, events.NewBroker(), zap.NewNop())
	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "waveportal", time.Hour)
	require.NoError(t, err)

	checks := dependencyChecks(ledger, nil, []string{"http://127.0.0.1:1/hook"})
	require.Len(t, checks, 2)
	checks = append(checks, health.Check{
		Name:     "redis",
		Critical: true,
		Probe:    func(context.Context) error { return errors.New("connection refused") },
	})
	checker := health.New(checks, health.Config{FailThreshold: 1, ProbeTimeout: time.Second}, zap.NewNop())

	stop := make(chan struct{})
	defer close(stop)
	r := newRouter(routerConfig{
		svc:         svc,
		tokens:      tokens,
		auth:        identity.NewAuthenticator(identity.NewMemoryChallengeStore(), tokens, 0, zap.NewNop()),
		corsOrigins: []string{"http://localhost:3000"},
		checker:     checker,
		stop:        stop,
	}, zap.NewNop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code, "nothing probed yet")

	checker.CheckAll(context.Background())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"ledger":{"status":"healthy"`)
	assert.Contains(t, w.Body.String(), "webhook:http://127.0.0.1:1/hook")
}

func TestEmailSenderFromConfig(t *testing.T) {
	v := testConfig(t)
	_, ok := emailSenderFromConfig(v, zap.NewNop()).(*email.LogSender)
	assert.True(t, ok, "no smtp.host falls back to logging")

	v.Set("smtp.host", "smtp.example.com")
	_, ok = emailSenderFromConfig(v, zap.NewNop()).(*email.SMTPSender)
	assert.True(t, ok)
}

func TestRouter_withoutCORSOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(waveledger.MustParseAddress(testOwner)), waveledger.SystemClock)
	require.NoError(t, err)
	svc := service.NewPortalService(ledger, events.NewBroker(), zap.NewNop())
	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "waveportal", time.Hour)
	require.NoError(t, err)

	stop := make(chan struct{})
	defer close(stop)
	var r *gin.Engine
	require.NotPanics(t, func() {
		r = newRouter(routerConfig{
			svc:    svc,
			tokens: tokens,
			auth:   identity.NewAuthenticator(identity.NewMemoryChallengeStore(), tokens, 0, zap.NewNop()),
			stop:   stop,
		}, zap.NewNop())
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
