// Package queue persists the set of record identifiers awaiting a deep
// enhancement pass.
//
// The queue has set semantics: an identifier is either pending or not, and
// enqueueing a pending identifier is a no-op. Poll atomically removes the
// oldest pending identifier so the drain worker can process entries in
// insertion order. Entries survive restarts.
//
// Store is the SQLite backend used by default. The pgqueue subpackage offers a
// PostgreSQL backend behind the same Queue interface. Schema changes bump the
// version in schema.go; users purge or delete the database to adopt them.
package queue
