package audit

import "context"

// Store is the append-only sink behind a Publisher. ListByUser returns a
// user's events in the order they were appended.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID string) ([]Event, error)
}
