package waveledger

import "context"

// Ledger is the interface for the append-only wave ledger.
// MemoryLedger, PostgresLedger and SQLLedger implement it. Every mutating call
// is atomic: it either applies all of its effects or none.
type Ledger interface {
	// Append records a wave from sender stamped with the ledger clock.
	// It fails with a *RateLimitError when sender's cooldown has not elapsed.
	Append(ctx context.Context, sender Address, message string) (Record, error)

	// All returns every wave in append order. The slice is a copy.
	All(ctx context.Context) ([]Record, error)

	// Len returns the number of waves.
	Len(ctx context.Context) (int, error)

	// SetApproval sets the approval flag of the wave at index.
	// Only the owner may call it.
	SetApproval(ctx context.Context, caller Address, index int, approved bool) error

	// LastWaveAt returns the Unix time of sender's most recent accepted wave.
	LastWaveAt(ctx context.Context, sender Address) (int64, bool, error)

	// Policy returns the guards this ledger enforces.
	Policy() Policy
}
