package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "ekyc/pkg/domain-errors"
	platformsync "ekyc/pkg/platform/sync"
)

var (
	shardLockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ekyc_document_shard_lock_wait_seconds",
		Help:    "Time spent waiting to acquire the document store shard lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	shardLockAcquisitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ekyc_document_shard_lock_acquisitions_total",
		Help: "Total number of document store shard lock acquisitions",
	})
)

// StoreTx provides a transactional boundary for document store mutations.
// Implementations may wrap a database transaction or, in-memory, a shard lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

const defaultTxTimeout = 5 * time.Second

// shardedTx serializes in-memory mutations per document shard. It cannot undo
// a partially applied fn, which the in-memory store never produces.
type shardedTx struct {
	mu      *platformsync.ShardedMutex
	store   Store
	timeout time.Duration
}

func newShardedTx(store Store) *shardedTx {
	return &shardedTx{mu: platformsync.NewShardedMutex(), store: store, timeout: defaultTxTimeout}
}

func (t *shardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	key := shardKey(ctx)
	lockStart := time.Now()
	t.mu.Lock(key)
	shardLockWaitDuration.Observe(time.Since(lockStart).Seconds())
	shardLockAcquisitions.Inc()
	defer t.mu.Unlock(key)

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}

type txDocumentKey struct{}

// withShardKey routes an in-memory transaction to the shard of documentID.
func withShardKey(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, txDocumentKey{}, documentID)
}

func shardKey(ctx context.Context) string {
	if id, ok := ctx.Value(txDocumentKey{}).(string); ok {
		return id
	}
	return ""
}
