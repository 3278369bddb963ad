package waveledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/stretchr/testify/require"
)

var (
	owner = waveledger.MustParseAddress("0x823dd0bd4df84489ad8e11c22da4af3dab431108")
	user  = waveledger.MustParseAddress("0x70997970c51812dc3a010c7d01b50e0d17dc79c8")
	other = waveledger.MustParseAddress("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc")
)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryLedger(t *testing.T) (*waveledger.MemoryLedger, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	l, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(owner), clock)
	require.NoError(t, err)
	return l, clock
}
