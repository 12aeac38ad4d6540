package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"ekyc/internal/audit/outbox"
)

const aggregateUser = "user"

// OutboxStore persists events as outbox entries keyed by user, so the
// outbox worker can forward them to Kafka.
type OutboxStore struct {
	outbox outbox.Store
}

func NewOutboxStore(store outbox.Store) *OutboxStore {
	return &OutboxStore{outbox: store}
}

func (s *OutboxStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	return s.outbox.Append(ctx, outbox.NewEntry(aggregateUser, event.UserID, event.Action, payload, event.Timestamp))
}

func (s *OutboxStore) ListByUser(ctx context.Context, userID string) ([]Event, error) {
	entries, err := s.outbox.ListByAggregate(ctx, aggregateUser, userID)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(entries))
	for _, e := range entries {
		var event Event
		if err := json.Unmarshal(e.Payload, &event); err != nil {
			return nil, fmt.Errorf("decode audit event %s: %w", e.ID, err)
		}
		events = append(events, event)
	}
	return events, nil
}
