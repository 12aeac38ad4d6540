package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ekyc/pkg/domain"
	"ekyc/pkg/requestcontext"
)

// Publisher records audit events in a Store. Events are stamped with the
// current time and the request ID carried by ctx when the caller left them
// empty. In async mode a full buffer drops the event instead of blocking the
// caller; Dropped reports how many were lost.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	queue   chan Event
	done    sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer persists events from a background goroutine through a
// queue of the given size.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan Event, size)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.done.Add(1)
		go p.drainQueue()
	}
	return p
}

func (p *Publisher) drainQueue() {
	defer p.done.Done()
	for event := range p.queue {
		p.persist(context.Background(), event)
	}
}

func (p *Publisher) persist(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to persist audit event",
			"action", event.Action,
			"user_id", event.UserID,
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}

// Emit records event. It only returns an error in sync mode, when the store
// rejects the append.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if p.queue == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, event, "audit publisher closed, event dropped")
		return nil
	}
	select {
	case p.queue <- event:
	default:
		p.drop(ctx, event, "audit buffer full, event dropped")
	}
	return nil
}

func (p *Publisher) drop(ctx context.Context, event Event, msg string) {
	p.dropped.Add(1)
	p.logger.WarnContext(ctx, msg, "action", event.Action, "user_id", event.UserID)
}

// Dropped is the number of events lost to a full or closed queue.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting async events and waits for the queue to drain. It is
// safe to call more than once.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.done.Wait()
}

func (p *Publisher) List(ctx context.Context, userID domain.UserID) ([]Event, error) {
	return p.store.ListByUser(ctx, userID.String())
}
