package waveledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// mutations across every portal instance sharing the database.
const advisoryLockKey = int64(1_804_290_211)

// PostgresLedger persists the wave ledger to PostgreSQL.
// It implements the Ledger interface. The schema lives in migrations/.
// Messages are stored as BYTEA so any string, NUL bytes included, round-trips
// exactly as it does in the other backends.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	policy Policy
	clock  Clock
	logger *zap.Logger
}

// OpenPostgresLedger binds a ledger to pool. The first open records policy.Owner
// as the permanent owner; later opens must present the same owner or fail with
// ErrOwnerMismatch.
func OpenPostgresLedger(ctx context.Context, pool *pgxpool.Pool, policy Policy, clock Clock, logger *zap.Logger) (*PostgresLedger, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock
	}
	l := &PostgresLedger{pool: pool, policy: policy, clock: clock, logger: logger}

	if _, err := pool.Exec(ctx,
		`INSERT INTO wave_ledger_owner (id, owner, created_at) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		policy.Owner[:], clock.Now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("claim ledger owner: %w", err)
	}

	var stored []byte
	if err := pool.QueryRow(ctx, "SELECT owner FROM wave_ledger_owner WHERE id = 1").Scan(&stored); err != nil {
		return nil, fmt.Errorf("read ledger owner: %w", err)
	}
	owner, err := addressFromBytes(stored)
	if err != nil {
		return nil, fmt.Errorf("read ledger owner: %w", err)
	}
	if owner != policy.Owner {
		return nil, fmt.Errorf("%w: database owner %s, configured %s", ErrOwnerMismatch, owner, policy.Owner)
	}
	return l, nil
}

// Append implements Ledger.
// It takes a transaction-scoped advisory lock, checks the sender's cooldown,
// inserts the wave and updates the sender's last wave time in one transaction.
func (l *PostgresLedger) Append(ctx context.Context, sender Address, message string) (Record, error) {
	if err := l.policy.CheckMessage(message); err != nil {
		return Record{}, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return Record{}, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var last int64
	hasLast := true
	if err := tx.QueryRow(ctx,
		"SELECT last_wave_at FROM wavers WHERE address = $1", sender[:],
	).Scan(&last); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("read last wave: %w", err)
		}
		hasLast = false
	}

	now := l.clock.Now().Unix()
	if err := l.policy.CheckCooldown(sender, last, hasLast, now); err != nil {
		return Record{}, err
	}

	var n int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM waves").Scan(&n); err != nil {
		return Record{}, fmt.Errorf("count waves: %w", err)
	}

	rec := Record{Index: n, Waver: sender, Message: message, Timestamp: now}
	if _, err := tx.Exec(ctx,
		`INSERT INTO waves (idx, waver, message, timestamp, owner_approved)
		 VALUES ($1, $2, $3, $4, false)`,
		rec.Index, sender[:], []byte(rec.Message), rec.Timestamp,
	); err != nil {
		return Record{}, fmt.Errorf("insert wave: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO wavers (address, last_wave_at) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET last_wave_at = EXCLUDED.last_wave_at`,
		sender[:], now,
	); err != nil {
		return Record{}, fmt.Errorf("update last wave: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("commit wave tx: %w", err)
	}

	l.logger.Debug("wave appended",
		zap.Int("idx", rec.Index),
		zap.String("waver", sender.String()),
	)
	return rec, nil
}

// All implements Ledger.
func (l *PostgresLedger) All(ctx context.Context) ([]Record, error) {
	rows, err := l.pool.Query(ctx,
		"SELECT idx, waver, message, timestamp, owner_approved FROM waves ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("query waves: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec     Record
			waver   []byte
			message []byte
		)
		if err := rows.Scan(&rec.Index, &waver, &message, &rec.Timestamp, &rec.OwnerApproved); err != nil {
			return nil, fmt.Errorf("scan wave row: %w", err)
		}
		rec.Message = string(message)
		if rec.Waver, err = addressFromBytes(waver); err != nil {
			return nil, fmt.Errorf("wave %d: %w", rec.Index, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM waves").Scan(&n); err != nil {
		return 0, fmt.Errorf("count waves: %w", err)
	}
	return n, nil
}

// SetApproval implements Ledger.
func (l *PostgresLedger) SetApproval(ctx context.Context, caller Address, index int, approved bool) error {
	if !l.policy.IsOwner(caller) {
		return ErrUnauthorized
	}
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	tag, err := l.pool.Exec(ctx,
		"UPDATE waves SET owner_approved = $2 WHERE idx = $1", index, approved)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

// LastWaveAt implements Ledger.
func (l *PostgresLedger) LastWaveAt(ctx context.Context, sender Address) (int64, bool, error) {
	var ts int64
	err := l.pool.QueryRow(ctx, "SELECT last_wave_at FROM wavers WHERE address = $1", sender[:]).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read last wave: %w", err)
	}
	return ts, true, nil
}

// Policy implements Ledger.
func (l *PostgresLedger) Policy() Policy { return l.policy }

func addressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("stored address has %d bytes, want %d", len(b), AddressLength)
	}
	copy(a[:], b)
	return a, nil
}
