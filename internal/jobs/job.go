package jobs

import (
	"context"
	"sync"
	"time"
)

// Func is the body of a job. It should respect context cancellation.
type Func func(ctx context.Context) (any, error)

// Job is one unit of executor work, keyed by the session it produces.
type Job struct {
	SessionID string
	Run       Func
}

// Status represents the current state of a ticket.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Ticket is the handle returned by Submit. Result is valid once Done is
// closed.
type Ticket struct {
	ID        string
	SessionID string
	Submitted time.Time

	done chan struct{}

	mu       sync.Mutex
	status   Status
	started  time.Time
	finished time.Time
	result   any
	err      error
}

func newTicket(id, sessionID string) *Ticket {
	return &Ticket{
		ID:        id,
		SessionID: sessionID,
		Submitted: time.Now().UTC(),
		done:      make(chan struct{}),
		status:    StatusQueued,
	}
}

// Done is closed when the job reaches a terminal status.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Status returns the current ticket status.
func (t *Ticket) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the job outcome. Before Done it returns nil and nil.
func (t *Ticket) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Elapsed returns how long the job ran, or has been running.
func (t *Ticket) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.started.IsZero():
		return 0
	case t.finished.IsZero():
		return time.Since(t.started)
	default:
		return t.finished.Sub(t.started)
	}
}

// Wait blocks until the job finishes or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Ticket) start() {
	t.mu.Lock()
	t.status = StatusRunning
	t.started = time.Now()
	t.mu.Unlock()
}

func (t *Ticket) finish(status Status, result any, err error) {
	t.mu.Lock()
	t.status = status
	t.result = result
	t.err = err
	t.finished = time.Now()
	if t.started.IsZero() {
		t.started = t.finished
	}
	t.mu.Unlock()
	close(t.done)
}
