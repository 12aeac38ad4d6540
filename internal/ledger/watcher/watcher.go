// Package watcher follows the registry's logs and repairs local records whose
// ledger outcome was not written: DocumentUploaded logs backfill the chain
// position of uploads, typically after a confirmation timeout, and
// DocumentVerified logs finalize verdicts left provisional.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ekyc/internal/ledger"
	"ekyc/pkg/domain"
)

// Counter reads an owner's on-chain document count as of a block.
type Counter interface {
	GetDocumentCountAt(ctx context.Context, owner domain.WalletAddress, block uint64) (uint64, error)
}

// Sink applies ledger outcomes to local records. Each method reports false
// when no local record needed the log.
type Sink interface {
	ReconcileAnchor(ctx context.Context, anchor ledger.Anchor) (bool, error)
	ReconcileVerification(ctx context.Context, ev ledger.VerifiedEvent) (bool, error)
}

type Watcher struct {
	source   ledger.EventSource
	counter  Counter
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	maxRange uint64
	next     uint64
	newBO    func() backoff.BackOff
}

type Option func(*Watcher)

func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

// WithBackOff overrides the retry policy for a failing scan.
func WithBackOff(f func() backoff.BackOff) Option { return func(w *Watcher) { w.newBO = f } }

func New(source ledger.EventSource, counter Counter, sink Sink, interval time.Duration, startBlock, maxRange uint64, opts ...Option) *Watcher {
	if maxRange == 0 {
		maxRange = 2000
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	w := &Watcher{
		source:   source,
		counter:  counter,
		sink:     sink,
		logger:   slog.Default(),
		interval: interval,
		maxRange: maxRange,
		next:     startBlock,
		newBO: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. A scan that keeps failing after its
// retries is logged and attempted again on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.InfoContext(ctx, "ledger watcher started", "from_block", w.next, "interval", w.interval)
	for {
		op := func() error {
			_, err := w.Poll(ctx)
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(w.newBO(), ctx)); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.WarnContext(ctx, "ledger watcher scan failed", "error", err, "next_block", w.next)
		}
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "ledger watcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll scans from the cursor to the chain head in bounded ranges and returns
// how many logs were applied. The cursor only advances past fully
// processed ranges.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	head, err := w.source.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for w.next <= head {
		if err := ctx.Err(); err != nil {
			return applied, backoff.Permanent(err)
		}
		to := min(w.next+w.maxRange-1, head)
		n, err := w.scan(ctx, w.next, to)
		applied += n
		if err != nil {
			return applied, err
		}
		w.next = to + 1
	}
	return applied, nil
}

// Cursor returns the next block to scan.
func (w *Watcher) Cursor() uint64 { return w.next }

// scan applies uploads before verifications so a verdict on a freshly
// backfilled slot in the same range can be matched.
func (w *Watcher) scan(ctx context.Context, from, to uint64) (int, error) {
	applied, err := w.scanUploads(ctx, from, to)
	if err != nil {
		return applied, err
	}
	n, err := w.scanVerifications(ctx, from, to)
	return applied + n, err
}

func (w *Watcher) scanVerifications(ctx context.Context, from, to uint64) (int, error) {
	events, err := w.source.VerifiedEvents(ctx, from, to)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, ev := range events {
		ok, err := w.sink.ReconcileVerification(ctx, ev)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
			w.logger.InfoContext(ctx, "provisional verification finalized",
				"owner", ev.Owner.String(),
				"doc_index", ev.DocIndex,
				"status", ev.Status,
				"tx_hash", ev.TxHash,
			)
		}
	}
	return applied, nil
}

func (w *Watcher) scanUploads(ctx context.Context, from, to uint64) (int, error) {
	events, err := w.source.UploadedEvents(ctx, from, to)
	if err != nil {
		return 0, err
	}
	// Index within the same owner and block follows log order.
	type key struct {
		owner domain.WalletAddress
		block uint64
	}
	base := make(map[key]uint64)
	seen := make(map[key]uint64)
	applied := 0
	for _, ev := range events {
		k := key{ev.Owner, ev.BlockNumber}
		if _, ok := base[k]; !ok {
			var before uint64
			// Block 0 means latest to the counter; genesis holds no documents.
			if ev.BlockNumber > 1 {
				before, err = w.counter.GetDocumentCountAt(ctx, ev.Owner, ev.BlockNumber-1)
				if err != nil {
					return applied, err
				}
			}
			base[k] = before
		}
		anchor := ledger.Anchor{
			Owner:       ev.Owner,
			ContentID:   ev.DocumentHash,
			TxHash:      ev.TxHash,
			ChainIndex:  base[k] + seen[k],
			BlockNumber: ev.BlockNumber,
		}
		seen[k]++
		ok, err := w.sink.ReconcileAnchor(ctx, anchor)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
			w.logger.InfoContext(ctx, "ledger anchor backfilled",
				"owner", ev.Owner.String(),
				"content_id", ev.DocumentHash,
				"tx_hash", ev.TxHash,
				"chain_index", anchor.ChainIndex,
			)
		}
	}
	return applied, nil
}
