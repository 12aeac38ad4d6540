package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ekyc/internal/audit/outbox"
	"ekyc/pkg/domain"
)

func TestOutboxStore_RoundTripsEventsPerUser(t *testing.T) {
	ctx := context.Background()
	entries := outbox.NewInMemoryStore()
	p := NewPublisher(NewOutboxStore(entries))
	alice, bob := domain.NewUserID(), domain.NewUserID()

	require.NoError(t, p.Emit(ctx, Event{UserID: alice.String(), Action: string(EventDocumentUploaded), DocumentID: "doc-1"}))
	require.NoError(t, p.Emit(ctx, Event{UserID: bob.String(), Action: string(EventWalletLogin)}))
	require.NoError(t, p.Emit(ctx, Event{UserID: alice.String(), Action: string(EventDocumentVerified), DocumentID: "doc-1", TxHash: "0xabc"}))

	events, err := p.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, string(EventDocumentUploaded), events[0].Action)
	assert.Equal(t, "0xabc", events[1].TxHash)

	pending, err := entries.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)

	batch, err := entries.FetchUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "user", batch[0].AggregateType)
	assert.Equal(t, alice.String(), batch[0].AggregateID)
	assert.Equal(t, string(EventDocumentUploaded), batch[0].EventType)
}
