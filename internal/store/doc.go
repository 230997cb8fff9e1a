// Package store provides SQLite-backed durable storage for the identity
// cache: the records collection (keyed by id) and a small metadata
// key/value collection.
//
// # Critical Patterns
//
// CP-1: Primary Key Is The Channel Identifier
//   - After MigratePrimaryKeys runs, a record's id equals its remote
//     channel identifier. Legacy numeric ids survive in original_id for
//     traceability and lookup of pre-migration references.
//
// CP-2: Secondary Indexes Over Table Scans
//   - Name and identifier matching goes through indexes on
//     name_normalized, channel_identifier, user_id and original_id,
//     maintained transactionally with every write. Expiry and recency
//     sweeps use the compound (is_pinned, last_opened_time) and
//     (is_recent, last_opened_time) indexes.
//
// CP-3: Convergent Maintenance
//   - Data migrations (duplicate removal, primary-key rewrite) are
//     idempotent and safely re-runnable; a partial failure leaves the
//     store no worse than before and the next run continues the work.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single writer: MaxOpenConns(1) avoids SQLITE_BUSY
//
// Structural schema changes are tracked with PRAGMA user_version; see
// runMigrations in store.go.
package store
