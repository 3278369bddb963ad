package waveledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS wave_ledger_owner (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		owner TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS waves (
		idx INTEGER PRIMARY KEY,
		waver TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		owner_approved BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS wavers (
		address TEXT PRIMARY KEY,
		last_wave_at INTEGER NOT NULL
	)`,
}

// OpenSQLite opens (creating if needed) a SQLite database file for SQLLedger.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps SQLite writes in one total order.
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLLedger persists the wave ledger through database/sql. The queries target
// SQLite; writes are serialised in-process and each runs in one transaction.
type SQLLedger struct {
	db     *sql.DB
	policy Policy
	clock  Clock

	mu sync.Mutex // serialises mutations
}

// OpenSQLLedger creates the schema if missing and binds the ledger to policy.Owner.
// Reopening with a different owner fails with ErrOwnerMismatch.
func OpenSQLLedger(ctx context.Context, db *sql.DB, policy Policy, clock Clock) (*SQLLedger, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock
	}
	for _, stmt := range sqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("migrate wave ledger: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO wave_ledger_owner (id, owner, created_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		policy.Owner.String(), clock.Now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("claim ledger owner: %w", err)
	}

	var stored string
	if err := db.QueryRowContext(ctx, "SELECT owner FROM wave_ledger_owner WHERE id = 1").Scan(&stored); err != nil {
		return nil, fmt.Errorf("read ledger owner: %w", err)
	}
	owner, err := ParseAddress(stored)
	if err != nil {
		return nil, fmt.Errorf("read ledger owner: %w", err)
	}
	if owner != policy.Owner {
		return nil, fmt.Errorf("%w: database owner %s, configured %s", ErrOwnerMismatch, owner, policy.Owner)
	}
	return &SQLLedger{db: db, policy: policy, clock: clock}, nil
}

// Append implements Ledger.
func (l *SQLLedger) Append(ctx context.Context, sender Address, message string) (Record, error) {
	if err := l.policy.CheckMessage(message); err != nil {
		return Record{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var last int64
	hasLast := true
	if err := tx.QueryRowContext(ctx,
		"SELECT last_wave_at FROM wavers WHERE address = ?", sender.String(),
	).Scan(&last); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("read last wave: %w", err)
		}
		hasLast = false
	}

	now := l.clock.Now().Unix()
	if err := l.policy.CheckCooldown(sender, last, hasLast, now); err != nil {
		return Record{}, err
	}

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM waves").Scan(&n); err != nil {
		return Record{}, fmt.Errorf("count waves: %w", err)
	}

	rec := Record{Index: n, Waver: sender, Message: message, Timestamp: now}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO waves (idx, waver, message, timestamp, owner_approved) VALUES (?, ?, ?, ?, 0)`,
		rec.Index, sender.String(), rec.Message, rec.Timestamp,
	); err != nil {
		return Record{}, fmt.Errorf("insert wave: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wavers (address, last_wave_at) VALUES (?, ?)
		 ON CONFLICT (address) DO UPDATE SET last_wave_at = excluded.last_wave_at`,
		sender.String(), now,
	); err != nil {
		return Record{}, fmt.Errorf("update last wave: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit wave tx: %w", err)
	}
	return rec, nil
}

// All implements Ledger.
func (l *SQLLedger) All(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT idx, waver, message, timestamp, owner_approved FROM waves ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("query waves: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			rec   Record
			waver string
		)
		if err := rows.Scan(&rec.Index, &waver, &rec.Message, &rec.Timestamp, &rec.OwnerApproved); err != nil {
			return nil, fmt.Errorf("scan wave row: %w", err)
		}
		if rec.Waver, err = ParseAddress(waver); err != nil {
			return nil, fmt.Errorf("wave %d: %w", rec.Index, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Len implements Ledger.
func (l *SQLLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM waves").Scan(&n); err != nil {
		return 0, fmt.Errorf("count waves: %w", err)
	}
	return n, nil
}

// SetApproval implements Ledger.
func (l *SQLLedger) SetApproval(ctx context.Context, caller Address, index int, approved bool) error {
	if !l.policy.IsOwner(caller) {
		return ErrUnauthorized
	}
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, "UPDATE waves SET owner_approved = ? WHERE idx = ?", approved, index)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}

// LastWaveAt implements Ledger.
func (l *SQLLedger) LastWaveAt(ctx context.Context, sender Address) (int64, bool, error) {
	var ts int64
	err := l.db.QueryRowContext(ctx, "SELECT last_wave_at FROM wavers WHERE address = ?", sender.String()).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read last wave: %w", err)
	}
	return ts, true, nil
}

// Policy implements Ledger.
func (l *SQLLedger) Policy() Policy { return l.policy }
