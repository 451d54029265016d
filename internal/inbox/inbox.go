// Package inbox watches a directory for transcript files and submits each
// one as a production session.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jackzampolin/studio/internal/session"
)

const (
	// ProcessedDirName receives transcripts after a successful submit.
	ProcessedDirName = "processed"

	// Ext marks files the watcher picks up.
	Ext = ".txt"
)

// SubmitFunc starts a session for transcript.
type SubmitFunc func(ctx context.Context, sessionID, transcript string) error

type Config struct {
	Dir    string
	Submit SubmitFunc

	// Settle is how long a file must go without writes before it is read.
	Settle time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Watcher feeds transcripts dropped into Dir to Submit.
type Watcher struct {
	dir    string
	submit SubmitFunc
	settle time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox: dir is required")
	}
	if cfg.Submit == nil {
		return nil, errors.New("inbox: submit func is required")
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		dir:     cfg.Dir,
		submit:  cfg.Submit,
		settle:  cfg.Settle,
		now:     cfg.Now,
		logger:  cfg.Logger.With("inbox", cfg.Dir),
		pending: make(map[string]*time.Timer),
	}, nil
}

// SessionIDFor derives a session id from a transcript file name, or mints
// a fresh one when the name is not usable.
func SessionIDFor(path string, now time.Time) string {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if session.ValidateID(id) != nil {
		return session.NewID(now)
	}
	return id
}

// Run submits transcripts already in the inbox, then watches for new ones
// until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	defer w.stopPending()

	existing, err := w.scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.handle(ctx, path)
	}

	ready := make(chan string, 16)
	w.logger.Info("watching inbox")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Ext(ev.Name) != Ext {
				continue
			}
			w.debounce(ctx, ev.Name, ready)
		case path := <-ready:
			w.handle(ctx, path)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		paths = append(paths, filepath.Join(w.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// debounce restarts the settle timer for path.
func (w *Watcher) debounce(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("read transcript", "path", path, "error", err)
		}
		return
	}

	id := SessionIDFor(path, w.now())
	logger := w.logger.With("session_id", id, "path", path)

	if strings.TrimSpace(string(data)) == "" {
		logger.Warn("skipping empty transcript")
		return
	}

	if err := w.submit(ctx, id, string(data)); err != nil {
		logger.Error("submit transcript", "error", err)
		return
	}

	if err := w.archive(path); err != nil {
		logger.Warn("archive transcript", "error", err)
		return
	}
	logger.Info("transcript submitted")
}

func (w *Watcher) archive(path string) error {
	dir := filepath.Join(w.dir, ProcessedDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dir, filepath.Base(path)))
}
