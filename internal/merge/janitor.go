package merge

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Janitor deletes files after a safety delay. Flush deletes everything
// still pending immediately.
type Janitor struct {
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[*time.Timer][]string
}

func NewJanitor(delay time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		delay:   delay,
		logger:  logger,
		pending: make(map[*time.Timer][]string),
	}
}

// Schedule queues paths for deletion after the janitor delay.
func (j *Janitor) Schedule(paths ...string) {
	if len(paths) == 0 {
		return
	}
	if j.delay <= 0 {
		j.remove(paths)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(j.delay, func() {
		j.mu.Lock()
		files, ok := j.pending[t]
		j.mu.Unlock()
		if !ok {
			return
		}
		j.remove(files)

		j.mu.Lock()
		delete(j.pending, t)
		j.mu.Unlock()
	})
	j.pending[t] = append([]string(nil), paths...)
}

// Pending returns the number of files awaiting deletion.
func (j *Janitor) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, files := range j.pending {
		n += len(files)
	}
	return n
}

// Flush cancels the timers and deletes every pending file now.
func (j *Janitor) Flush() {
	j.mu.Lock()
	var files []string
	for t, paths := range j.pending {
		// A timer that already fired removes its own files.
		if t.Stop() {
			files = append(files, paths...)
			delete(j.pending, t)
		}
	}
	j.mu.Unlock()

	j.remove(files)
}

func (j *Janitor) remove(paths []string) {
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			j.logger.Warn("failed to remove intermediate file", "path", p, "error", err)
		}
	}
	if removed > 0 {
		j.logger.Debug("intermediate files removed", "count", removed)
	}
}
