// Package taskindex maps task identifiers to their repository and
// deployment state across rounds.
//
// The Store interface is upsert-by-key with partial-field merge: only
// fields the caller supplies change, created_at is set exactly once, and
// latest_round never decreases. Backends: SQLite for durable use, the
// original flat CSV file for compatibility, and an in-memory store for
// tests. All backends serialize writes so concurrent rounds cannot lose
// each other's updates.
package taskindex
