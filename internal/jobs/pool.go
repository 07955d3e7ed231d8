// Package jobs runs ingestion work off the request path.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/metrics"
	"github.com/cloo-solutions/coursetutor/internal/telemetry"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Shutdown has started.
var ErrPoolClosed = errors.New("worker pool is shut down")

// Task outcomes reported to metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomePanicked  = "panicked"
)

type task struct {
	name string
	run  func(context.Context) error
}

// Pool is a fixed set of workers reading from a bounded queue. Tasks run
// under the pool's own context, not the submitter's, so a finished HTTP
// request does not cancel the ingestion it queued.
type Pool struct {
	tasks   chan task
	quit    chan struct{}
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewPool starts workers goroutines draining a queue of queueSize tasks.
func NewPool(workers, queueSize int, m *metrics.Metrics, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:   make(chan task, queueSize),
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		logger:  logger.Named("pool"),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", workers), zap.Int("queue_size", queueSize))
	return p
}

// Submit queues run. It blocks while the queue is full and gives up when
// ctx ends or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, name string, run func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task{name: name, run: run}:
		p.metrics.TaskQueued()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue full: %w", ctx.Err())
	case <-p.quit:
		return ErrPoolClosed
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	logger := p.logger.With(zap.Int("worker", id))
	for t := range p.tasks {
		p.metrics.TaskStarted()
		start := time.Now()
		outcome := p.run(logger, t)
		p.metrics.TaskFinished(outcome, time.Since(start))
	}
}

func (p *Pool) run(logger *zap.Logger, t task) (outcome string) {
	ctx, span := telemetry.StartTransaction(p.ctx, t.name, "job")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", zap.String("task", t.name), zap.Any("panic", r))
			err := fmt.Errorf("task %s panicked: %v", t.name, r)
			span.SetError(err)
			outcome = OutcomePanicked
		}
	}()

	if err := t.run(ctx); err != nil {
		logger.Warn("task failed", zap.String("task", t.name), zap.Error(err))
		span.SetError(err)
		return OutcomeFailed
	}
	logger.Debug("task finished", zap.String("task", t.name))
	return OutcomeSucceeded
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish. If ctx ends first, running tasks are cancelled and ctx's error is
// returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		close(p.quit)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.logger.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
