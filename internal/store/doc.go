// Package store provides persistent storage for the responder using SQLite.
//
// # Architecture
//
// The store is a keyed blob "brain": each key holds an opaque byte slice
// and the caller owns the encoding. Two interfaces describe it:
//
//   - Store: Get/Set of a single key plus an atomic multi-key Write
//   - AuditStore: append-only log of registry changes
//
// SQLiteStore implements both in a single struct. MockStore is the
// in-memory twin used by unit tests.
//
// # Keys
//
// The responder uses a handful of keys:
//
//   - responds: the serialized trigger registry (JSON list of records)
//   - responds_migrations: the migration cursor (decimal integer)
//   - data.responds: the legacy top-level location, only read by migrations
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Development: ~/.local/share/coven/responder.db
//   - Testing: :memory: or a file under t.TempDir()
//
// # Error Handling
//
// Get returns ErrNotFound when a key is absent. Write is all-or-nothing.
//
// # Testing
//
// Use NewMockStore() for unit tests:
//
//	s := store.NewMockStore()
//	s.FailWrites = errors.New("disk full") // simulate a crash
//
// Use NewSQLiteStore(":memory:") for integration tests with real SQLite.
package store
