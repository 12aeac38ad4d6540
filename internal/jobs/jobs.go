// Package jobs runs slow operations (ledger confirmations) off the request
// path on a bounded worker pool and keeps their outcomes for polling.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"ekyc/pkg/domain"
	dErrors "ekyc/pkg/domain-errors"
	"ekyc/pkg/platform/sentinel"
)

var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ekyc_jobs_queue_depth",
		Help: "Jobs waiting for a worker",
	})
	jobOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ekyc_jobs_completed_total",
		Help: "Completed jobs by kind and status",
	}, []string{"kind", "status"})
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ekyc_jobs_duration_seconds",
		Help:    "Time from a worker picking a job up to its completion",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) IsFinal() bool { return s == StatusSucceeded || s == StatusFailed }

// Result is the observable state of a job. Output holds the JSON encoding of
// whatever the job function returned.
type Result struct {
	ID        domain.JobID    `json:"id"`
	Kind      string          `json:"kind"`
	Owner     domain.UserID   `json:"owner"`
	Status    Status          `json:"status"`
	Output    json.RawMessage `json:"output,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store keeps job results for a bounded time.
// Get returns sentinel.ErrNotFound for unknown or expired jobs.
type Store interface {
	Save(ctx context.Context, result *Result) error
	Get(ctx context.Context, id domain.JobID) (*Result, error)
}

// Func is the work of one job.
type Func func(ctx context.Context) (any, error)

type task struct {
	result *Result
	fn     Func
}

type Pool struct {
	store   Store
	queue   chan task
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Pool)

func WithClock(now func() time.Time) Option { return func(p *Pool) { p.now = now } }

func NewPool(store Store, workers, queueSize int, logger *slog.Logger, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		store:   store,
		queue:   make(chan task, queueSize),
		workers: workers,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues fn and returns its job id. A full queue is reported as
// unavailable rather than blocking the caller.
func (p *Pool) Submit(ctx context.Context, kind string, owner domain.UserID, fn Func) (domain.JobID, error) {
	now := p.now()
	result := &Result{
		ID:        domain.NewJobID(),
		Kind:      kind,
		Owner:     owner,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.store.Save(ctx, result); err != nil {
		return domain.JobID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record job")
	}

	select {
	case p.queue <- task{result: result, fn: fn}:
		queueDepth.Inc()
		return result.ID, nil
	default:
		p.finish(ctx, result, nil, dErrors.New(dErrors.CodeUnavailable, "job queue is full"))
		return domain.JobID{}, dErrors.New(dErrors.CodeUnavailable, "job queue is full, retry later")
	}
}

// Get returns a job owned by requester. Jobs of other users are not found.
func (p *Pool) Get(ctx context.Context, requester domain.UserID, id domain.JobID) (*Result, error) {
	result, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "job not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load job")
	}
	if result.Owner != requester {
		return nil, dErrors.New(dErrors.CodeNotFound, "job not found")
	}
	return result, nil
}

// Run starts the workers and blocks until ctx is done. Jobs still queued at
// shutdown are marked failed.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.work(gctx)
			return nil
		})
	}
	err := g.Wait()
	p.drain()
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			queueDepth.Dec()
			p.execute(ctx, t)
		}
	}
}

func (p *Pool) execute(ctx context.Context, t task) {
	start := time.Now()
	t.result.Status = StatusRunning
	t.result.UpdatedAt = p.now()
	if err := p.store.Save(ctx, t.result); err != nil {
		p.logger.WarnContext(ctx, "failed to mark job running", "job_id", t.result.ID.String(), "error", err)
	}

	output, err := p.call(ctx, t)
	p.finish(context.WithoutCancel(ctx), t.result, output, err)
	jobDuration.WithLabelValues(t.result.Kind).Observe(time.Since(start).Seconds())
}

func (p *Pool) call(ctx context.Context, t task) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "job panicked", "job_id", t.result.ID.String(), "panic", r)
			err = dErrors.New(dErrors.CodeInternal, "job panicked")
		}
	}()
	return t.fn(ctx)
}

func (p *Pool) finish(ctx context.Context, result *Result, output any, err error) {
	result.UpdatedAt = p.now()
	if err != nil {
		result.Status = StatusFailed
		result.ErrorCode = string(dErrors.CodeOf(err))
		if result.ErrorCode == "" {
			result.ErrorCode = string(dErrors.CodeInternal)
		}
		result.Error = err.Error()
	} else {
		result.Status = StatusSucceeded
		if output != nil {
			raw, mErr := json.Marshal(output)
			if mErr != nil {
				result.Status = StatusFailed
				result.ErrorCode = string(dErrors.CodeInternal)
				result.Error = fmt.Sprintf("encode job output: %v", mErr)
			} else {
				result.Output = raw
			}
		}
	}
	jobOutcomes.WithLabelValues(result.Kind, string(result.Status)).Inc()
	if err := p.store.Save(ctx, result); err != nil {
		p.logger.ErrorContext(ctx, "failed to store job result",
			"job_id", result.ID.String(),
			"status", string(result.Status),
			"error", err,
		)
	}
}

func (p *Pool) drain() {
	ctx := context.Background()
	for {
		select {
		case t := <-p.queue:
			queueDepth.Dec()
			p.finish(ctx, t.result, nil, dErrors.New(dErrors.CodeUnavailable, "server shutting down"))
		default:
			return
		}
	}
}
