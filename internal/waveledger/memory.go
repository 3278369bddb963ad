package waveledger

import (
	"context"
	"sync"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
// State lives for the lifetime of the value; nothing is persisted.
type MemoryLedger struct {
	policy Policy
	clock  Clock

	mu         sync.RWMutex
	records    []Record
	lastWaveAt map[Address]int64
}

// NewMemoryLedger creates an empty MemoryLedger. A nil clock means SystemClock.
func NewMemoryLedger(policy Policy, clock Clock) (*MemoryLedger, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryLedger{
		policy:     policy,
		clock:      clock,
		lastWaveAt: make(map[Address]int64),
	}, nil
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, sender Address, message string) (Record, error) {
	if err := l.policy.CheckMessage(message); err != nil {
		return Record{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().Unix()
	last, ok := l.lastWaveAt[sender]
	if err := l.policy.CheckCooldown(sender, last, ok, now); err != nil {
		return Record{}, err
	}

	rec := Record{
		Index:     len(l.records),
		Waver:     sender,
		Message:   message,
		Timestamp: now,
	}
	l.records = append(l.records, rec)
	l.lastWaveAt[sender] = now
	return rec, nil
}

// All implements Ledger.
func (l *MemoryLedger) All(_ context.Context) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// SetApproval implements Ledger.
func (l *MemoryLedger) SetApproval(_ context.Context, caller Address, index int, approved bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.policy.CheckApproval(caller, index, len(l.records)); err != nil {
		return err
	}
	l.records[index].OwnerApproved = approved
	return nil
}

// LastWaveAt implements Ledger.
func (l *MemoryLedger) LastWaveAt(_ context.Context, sender Address) (int64, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ts, ok := l.lastWaveAt[sender]
	return ts, ok, nil
}

// Policy implements Ledger.
func (l *MemoryLedger) Policy() Policy { return l.policy }
