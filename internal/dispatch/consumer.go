package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"metaprop/internal/record"
)

// EventKind describes what happened to a record outside the engine.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// Event notifies the engine of a record change.
type Event struct {
	RecordID uuid.UUID
	Kind     EventKind
}

// Consumer turns change events into shallow passes. Within one batch each
// record is enhanced at most once; End starts a new batch.
type Consumer struct {
	dispatcher *Dispatcher

	mu        sync.Mutex
	processed map[uuid.UUID]struct{}
}

// NewConsumer returns a consumer driving d.
func NewConsumer(d *Dispatcher) *Consumer {
	return &Consumer{dispatcher: d, processed: make(map[uuid.UUID]struct{})}
}

// Consume handles one event. Created and modified records get a shallow pass;
// deleted records invalidate their dependents. Events for records that no
// longer exist are ignored. Errors from the pass propagate to the caller.
func (c *Consumer) Consume(ctx context.Context, ev Event) (bool, error) {
	switch ev.Kind {
	case EventDeleted:
		_, err := c.dispatcher.InvalidateDependents(ctx, ev.RecordID)
		return false, err
	case EventCreated, EventModified:
	default:
		return false, nil
	}

	// Claim the id before the pass so concurrent events for it collapse into one.
	c.mu.Lock()
	if _, done := c.processed[ev.RecordID]; done {
		c.mu.Unlock()
		return false, nil
	}
	c.processed[ev.RecordID] = struct{}{}
	c.mu.Unlock()

	changed, err := c.dispatcher.EnhanceByID(ctx, ev.RecordID, Shallow)
	if errors.Is(err, record.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		c.release(ev.RecordID)
		return false, err
	}
	return changed, nil
}

// release forgets id so a later event in the same batch retries the pass.
func (c *Consumer) release(id uuid.UUID) {
	c.mu.Lock()
	delete(c.processed, id)
	c.mu.Unlock()
}

// End closes the current batch.
func (c *Consumer) End() {
	c.mu.Lock()
	c.processed = make(map[uuid.UUID]struct{})
	c.mu.Unlock()
}
