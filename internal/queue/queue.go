package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queue is the pending-enhancement set consumed by the dispatcher and the
// drain worker.
type Queue interface {
	// Enqueue marks id pending. added is false when it was already pending.
	Enqueue(ctx context.Context, id uuid.UUID) (added bool, err error)
	// Poll removes and returns the oldest pending id. ok is false when empty.
	Poll(ctx context.Context) (id uuid.UUID, ok bool, err error)
	// Clear removes id if pending. removed reports whether an entry existed.
	Clear(ctx context.Context, id uuid.UUID) (removed bool, err error)
}

// Entry describes a pending identifier for operator listings.
type Entry struct {
	Seq        int64
	RecordID   uuid.UUID
	EnqueuedAt time.Time
}

// Stats summarises the pending set.
type Stats struct {
	Pending int
	Oldest  *time.Time
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	IntegrityCheck   bool
	Pending          int
	Error            string
}
