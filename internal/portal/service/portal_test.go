package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	ctx   = context.Background()
	owner = waveledger.MustParseAddress("0x823dd0bd4df84489ad8e11c22da4af3dab431108")
	user  = waveledger.MustParseAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
)

type stubMetrics struct {
	mu        sync.Mutex
	waves     map[string]int
	approvals map[string]int
	total     int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{waves: map[string]int{}, approvals: map[string]int{}}
}

func (m *stubMetrics) RecordWave(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waves[outcome]++
}

func (m *stubMetrics) RecordApproval(_ bool, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals[outcome]++
}

func (m *stubMetrics) SetTotalWaves(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = n
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newService(t *testing.T) (*service.PortalService, *events.Broker, *stubMetrics, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(owner), clock)
	require.NoError(t, err)
	broker := events.NewBroker()
	t.Cleanup(broker.Close)

	svc := service.NewPortalService(ledger, broker, zap.NewNop())
	m := newStubMetrics()
	svc.SetMetricsRecorder(m)
	return svc, broker, m, clock
}

func TestWave_publishesNewWave(t *testing.T) {
	svc, _, m, clock := newService(t)
	sub := svc.Subscribe(4)
	require.NotNil(t, sub)
	defer sub.Close()

	rec, err := svc.Wave(ctx, user, "This is wave #1")
	require.NoError(t, err)

	ev := <-sub.C
	assert.Equal(t, events.NewWave{
		Index:     0,
		From:      user,
		Timestamp: clock.now.Unix(),
		Message:   "This is wave #1",
	}, ev)
	assert.Equal(t, rec.Index, ev.Index)
	assert.Equal(t, 1, m.waves[service.OutcomeAccepted])
	assert.Equal(t, 1, m.total)
}

func TestWave_rateLimitedEmitsNothing(t *testing.T) {
	svc, _, m, _ := newService(t)
	_, err := svc.Wave(ctx, user, "first")
	require.NoError(t, err)

	sub := svc.Subscribe(4)
	defer sub.Close()

	_, err = svc.Wave(ctx, user, "second")
	require.ErrorIs(t, err, waveledger.ErrRateLimited)

	select {
	case ev := <-sub.C:
		t.Fatalf("rejected wave emitted %+v", ev)
	default:
	}
	assert.Equal(t, 1, m.waves[service.OutcomeRateLimited])

	n, err := svc.TotalWaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWave_eventsFollowAppendOrder(t *testing.T) {
	svc, _, _, _ := newService(t)
	sub := svc.Subscribe(200)
	defer sub.Close()

	const senders = 100
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var a waveledger.Address
			a[0], a[1] = byte(i), 0xAA
			_, err := svc.Wave(ctx, a, "hi")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < senders; i++ {
		ev := <-sub.C
		assert.Equal(t, i, ev.Index)
	}
}

func TestSetApproval_outcomes(t *testing.T) {
	svc, _, m, _ := newService(t)
	_, err := svc.Wave(ctx, owner, "This is wave #1")
	require.NoError(t, err)
	_, err = svc.Wave(ctx, user, "This is wave #2")
	require.NoError(t, err)

	require.NoError(t, svc.SetApproval(ctx, owner, 1, true))
	assert.ErrorIs(t, svc.SetApproval(ctx, user, 1, false), waveledger.ErrUnauthorized)
	assert.ErrorIs(t, svc.SetApproval(ctx, owner, 2, false), waveledger.ErrIndexOutOfRange)

	waves, err := svc.Waves(ctx)
	require.NoError(t, err)
	assert.False(t, waves[0].OwnerApproved)
	assert.True(t, waves[1].OwnerApproved)

	assert.Equal(t, 1, m.approvals[service.OutcomeAccepted])
	assert.Equal(t, 1, m.approvals[service.OutcomeUnauthorized])
	assert.Equal(t, 1, m.approvals[service.OutcomeOutOfRange])
}

func TestVisibleWaves(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.Wave(ctx, owner, "one")
	require.NoError(t, err)
	_, err = svc.Wave(ctx, user, "two")
	require.NoError(t, err)
	require.NoError(t, svc.SetApproval(ctx, owner, 0, true))

	anon, err := svc.VisibleWaves(ctx, waveledger.ZeroAddress)
	require.NoError(t, err)
	require.Len(t, anon, 1)
	assert.Equal(t, 0, anon[0].Index)

	asUser, err := svc.VisibleWaves(ctx, user)
	require.NoError(t, err)
	assert.Len(t, asUser, 1)

	asOwner, err := svc.VisibleWaves(ctx, owner)
	require.NoError(t, err)
	require.Len(t, asOwner, 2)
	assert.Equal(t, 1, asOwner[0].Index, "newest first")
	assert.Equal(t, 0, asOwner[1].Index)
}

func TestInfo(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.Wave(ctx, user, "hi")
	require.NoError(t, err)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, int64(900), info.CooldownSeconds)
	assert.Equal(t, 1, info.TotalWaves)
}

func TestSubscribe_disabledBroker(t *testing.T) {
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(owner), nil)
	require.NoError(t, err)
	svc := service.NewPortalService(ledger, nil, zap.NewNop())

	assert.Nil(t, svc.Subscribe(1))
	_, err = svc.Wave(ctx, user, "hi")
	assert.NoError(t, err)
}

// The three walkthroughs from the original deploy script.
func TestScenarios(t *testing.T) {
	t.Run("same sender twice inside the cooldown", func(t *testing.T) {
		svc, _, _, _ := newService(t)
		_, err := svc.Wave(ctx, owner, "This is wave #1")
		require.NoError(t, err)
		_, err = svc.Wave(ctx, owner, "This is wave #2")
		assert.ErrorIs(t, err, waveledger.ErrRateLimited)

		total, err := svc.TotalWaves(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("two senders", func(t *testing.T) {
		svc, _, _, _ := newService(t)
		_, err := svc.Wave(ctx, owner, "This is wave #1")
		require.NoError(t, err)
		_, err = svc.Wave(ctx, user, "This is wave #2")
		require.NoError(t, err)

		waves, err := svc.Waves(ctx)
		require.NoError(t, err)
		require.Len(t, waves, 2)
		assert.Equal(t, owner, waves[0].Waver)
		assert.Equal(t, user, waves[1].Waver)
		assert.False(t, waves[0].OwnerApproved)
		assert.False(t, waves[1].OwnerApproved)
	})

	t.Run("owner approves, user cannot revoke", func(t *testing.T) {
		svc, _, _, _ := newService(t)
		_, err := svc.Wave(ctx, owner, "This is wave #1")
		require.NoError(t, err)
		_, err = svc.Wave(ctx, user, "This is wave #2")
		require.NoError(t, err)

		require.NoError(t, svc.SetApproval(ctx, owner, 1, true))
		assert.ErrorIs(t, svc.SetApproval(ctx, user, 1, false), waveledger.ErrUnauthorized)

		waves, err := svc.Waves(ctx)
		require.NoError(t, err)
		assert.False(t, waves[0].OwnerApproved)
		assert.True(t, waves[1].OwnerApproved)
	})
}
