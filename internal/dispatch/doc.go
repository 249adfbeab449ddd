// Package dispatch runs enhancement passes over records and propagates
// invalidation to dependent records through the pending queue.
//
// A pass runs every applicable enhancer in registration order. When any of
// them changes the record, the record is persisted and the ids of records that
// depend on it are enqueued for a later deep pass. Passes that change nothing
// have no side effects, which is what bounds propagation through cyclic
// relationships. Deep passes first clear the record's own pending entry.
//
// Failed passes are all-or-nothing: the in-memory record is restored to its
// pre-pass state and nothing is written. Errors carry an ErrorKind so callers
// can classify them without string matching.
package dispatch
