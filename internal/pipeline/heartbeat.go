package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackzampolin/studio/internal/session"
)

// DefaultHeartbeat is the interval between liveness log lines.
const DefaultHeartbeat = 220 * time.Second

// Heartbeat logs the session state at a fixed interval until stopped.
type Heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartHeartbeat begins logging. A non-positive interval disables it.
func StartHeartbeat(ctx context.Context, interval time.Duration, sess *session.Session, logger *slog.Logger) *Heartbeat {
	ctx, cancel := context.WithCancel(ctx)
	h := &Heartbeat{cancel: cancel, done: make(chan struct{})}
	if interval <= 0 {
		close(h.done)
		return h
	}

	start := time.Now()
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("session heartbeat",
					"session_id", sess.ID,
					"state", sess.State(),
					"elapsed", time.Since(start).Round(time.Second))
			}
		}
	}()
	return h
}

// Stop ends the heartbeat and waits for the goroutine to exit.
func (h *Heartbeat) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}
