// Package jobs runs pipeline sessions on a bounded queue drained by a fixed
// number of workers. Submit never blocks.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrQueueFull is returned when the queue has no free slot.
	ErrQueueFull = errors.New("executor queue full")
	// ErrShutdown is returned by Submit after Shutdown.
	ErrShutdown = errors.New("executor is shut down")
)

type task struct {
	job    Job
	ticket *Ticket
}

// ExecutorConfig configures a new Executor.
type ExecutorConfig struct {
	Name      string
	Logger    *slog.Logger
	Workers   int // Worker goroutines (default: 1)
	QueueSize int // Pending jobs beyond the running ones (default: 8)
}

// Executor is a bounded job queue with a fixed worker count.
type Executor struct {
	name    string
	logger  *slog.Logger
	workers int

	queue chan task

	// ctx is cancelled when Shutdown gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	inFlight  atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
}

// NewExecutor starts the workers.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "sessions"
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 8
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		name:    name,
		logger:  logger.With("executor", name, "workers", workers),
		workers: workers,
		queue:   make(chan task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range workers {
		e.wg.Add(1)
		go e.worker(i)
	}
	return e
}

// Submit queues job and returns its ticket immediately.
func (e *Executor) Submit(job Job) (*Ticket, error) {
	if job.Run == nil {
		return nil, fmt.Errorf("job for session %q has no body", job.SessionID)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrShutdown
	}

	t := newTicket(uuid.NewString(), job.SessionID)
	select {
	case e.queue <- task{job: job, ticket: t}:
		e.logger.Debug("job accepted", "ticket", t.ID, "session_id", job.SessionID, "queue_len", len(e.queue))
		return t, nil
	default:
		e.logger.Warn("executor queue full", "session_id", job.SessionID)
		return nil, fmt.Errorf("%w: %s", ErrQueueFull, e.name)
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	e.logger.Debug("worker started", "worker_id", id)
	for t := range e.queue {
		if err := e.ctx.Err(); err != nil {
			t.ticket.finish(StatusCancelled, nil, err)
			continue
		}

		e.inFlight.Add(1)
		t.ticket.start()
		result, err := e.run(t)
		e.inFlight.Add(-1)

		status := StatusCompleted
		switch {
		case errors.Is(err, context.Canceled):
			status = StatusCancelled
			e.failed.Add(1)
		case err != nil:
			status = StatusFailed
			e.failed.Add(1)
		default:
			e.completed.Add(1)
		}
		t.ticket.finish(status, result, err)
		e.logger.Debug("job finished",
			"worker_id", id,
			"ticket", t.ticket.ID,
			"session_id", t.job.SessionID,
			"status", status,
			"elapsed", t.ticket.Elapsed())
	}
}

// run executes the job body, converting a panic into an error.
func (e *Executor) run(t task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("job panicked", "session_id", t.job.SessionID, "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = fmt.Errorf("job for session %s panicked: %v", t.job.SessionID, r)
		}
	}()
	return t.job.Run(e.ctx)
}

// ExecutorStatus is a point-in-time view of the executor.
type ExecutorStatus struct {
	Name       string `json:"name"`
	Workers    int    `json:"workers"`
	InFlight   int    `json:"in_flight"`
	QueueDepth int    `json:"queue_depth"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}

func (e *Executor) Status() ExecutorStatus {
	return ExecutorStatus{
		Name:       e.name,
		Workers:    e.workers,
		InFlight:   int(e.inFlight.Load()),
		QueueDepth: len(e.queue),
		Completed:  e.completed.Load(),
		Failed:     e.failed.Load(),
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. If ctx ends first, running jobs are cancelled, remaining queued
// tickets complete as cancelled, and ctx.Err is returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		e.cancel()
		e.logger.Info("executor drained", "completed", e.completed.Load(), "failed", e.failed.Load())
		return nil
	case <-ctx.Done():
		e.cancel()
		<-drained
		return ctx.Err()
	}
}
