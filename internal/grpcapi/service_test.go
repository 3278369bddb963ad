package grpcapi_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/grpcapi"
	"github.com/jmerrifield20/WavePortal/internal/identity"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var (
	owner = waveledger.MustParseAddress("0x823dd0bd4df84489ad8e11c22da4af3dab431108")
	user  = waveledger.MustParseAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
)

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

type env struct {
	conn   *grpc.ClientConn
	broker *events.Broker
	tokens *identity.TokenIssuer
}

func setup(t *testing.T) *env {
	t.Helper()
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(owner), &fixedClock{now: time.Unix(1_700_000_000, 0)})
	require.NoError(t, err)
	broker := events.NewBroker()
	svc := service.NewPortalService(ledger, broker, zap.NewNop())
	tokens, err := identity.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "waveportal-test", time.Hour)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := grpcapi.NewGRPCServer(grpcapi.NewServer(svc, 0, zap.NewNop()), tokens, zap.NewNop())
	go gs.Serve(lis) //nolint:errcheck

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		gs.Stop()
		broker.Close()
	})
	return &env{conn: conn, broker: broker, tokens: tokens}
}

func (e *env) client(t *testing.T, addr *waveledger.Address) *grpcapi.Client {
	t.Helper()
	if addr == nil {
		return grpcapi.NewClient(e.conn, "")
	}
	tok, err := e.tokens.Issue(*addr)
	require.NoError(t, err)
	return grpcapi.NewClient(e.conn, tok)
}

func TestWave_andCount(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c := e.client(t, &user)

	rec, err := c.Wave(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Index)
	assert.Equal(t, user, rec.Waver)
	assert.Equal(t, "hello", rec.Message)
	assert.Equal(t, int64(1_700_000_000), rec.Timestamp)
	assert.False(t, rec.OwnerApproved)

	n, err := e.client(t, nil).GetTotalWaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWave_rateLimited(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c := e.client(t, &user)

	_, err := c.Wave(ctx, "one")
	require.NoError(t, err)
	_, err = c.Wave(ctx, "two")
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	n, err := c.GetTotalWaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWave_unauthenticated(t *testing.T) {
	e := setup(t)
	_, err := e.client(t, nil).Wave(context.Background(), "hi")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = grpcapi.NewClient(e.conn, "garbage").Wave(context.Background(), "hi")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSetApproveMessage(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.client(t, &user).Wave(ctx, "hi")
	require.NoError(t, err)

	err = e.client(t, &user).SetApproveMessage(ctx, 0, true)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	err = e.client(t, &owner).SetApproveMessage(ctx, 5, true)
	assert.Equal(t, codes.OutOfRange, status.Code(err))

	require.NoError(t, e.client(t, &owner).SetApproveMessage(ctx, 0, true))

	all, err := e.client(t, nil).GetAllWaves(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].OwnerApproved)
}

func TestSubscribe(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, _, err := e.client(t, nil).Subscribe(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.broker.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = e.client(t, &user).Wave(ctx, "first")
	require.NoError(t, err)
	_, err = e.client(t, &owner).Wave(ctx, "second")
	require.NoError(t, err)

	for i, want := range []string{"first", "second"} {
		select {
		case ev := <-stream:
			assert.Equal(t, i, ev.Index)
			assert.Equal(t, want, ev.Message)
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
	}

	cancel()
	require.Eventually(t, func() bool { return e.broker.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
