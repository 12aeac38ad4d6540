// Package outbox stores audit events in the database until a worker has
// published them to Kafka.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry represents a pending event in the outbox table.
type Entry struct {
	ID            uuid.UUID
	AggregateType string // "user" or "document"
	AggregateID   string
	EventType     string
	Payload       []byte // JSON-encoded audit.Event
	CreatedAt     time.Time
	ProcessedAt   *time.Time // nil until published
}

func (e *Entry) IsPending() bool {
	return e.ProcessedAt == nil
}

func NewEntry(aggregateType, aggregateID, eventType string, payload []byte, now time.Time) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}

// Store defines the outbox persistence operations.
// Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, entry *Entry) error

	// FetchUnprocessed returns up to limit pending entries, oldest first.
	FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error)

	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error

	CountPending(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes published entries older than before.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)

	// ListByAggregate returns every entry for an aggregate, oldest first,
	// whether published or not.
	ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]*Entry, error)
}
