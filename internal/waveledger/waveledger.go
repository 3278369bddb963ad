// Package waveledger implements the append-only wave ledger and its access policy.
//
// A ledger holds every accepted wave in append order together with the time of
// each sender's most recent wave. Appends are gated by a per-sender cooldown;
// approval toggles are gated by the single owner fixed when the ledger is built.
//
// Three implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, for tests and single-node deployments.
//   - PostgresLedger: durable and shareable between portal instances.
//   - SQLLedger: durable, embedded (SQLite by default).
package waveledger
