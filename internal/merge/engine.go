// Package merge combines an ordered list of audio segments into a single
// file by concatenating fixed-size batches in rounds.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jackzampolin/studio/internal/audio"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
)

// ErrNoSources is returned when Merge is called with an empty source list.
var ErrNoSources = errors.New("merge requires at least one source")

type Config struct {
	Audio      audio.Processor
	Store      storage.Store
	HTTPClient *http.Client

	// ScratchRoot holds per-session working directories.
	ScratchRoot string

	BatchSize       int
	FetchTimeout    time.Duration
	FetchAttempts   int
	FetchDelay      time.Duration
	FetchMultiplier float64

	// Janitor receives intermediate files. Nil deletes them immediately.
	Janitor *Janitor

	Logger *slog.Logger
}

// Node is one concatenated batch. Nodes other than the final one are
// handed to the janitor once the merge is uploaded.
type Node struct {
	Round  int
	Index  int
	Path   string
	Inputs int
}

// Result describes a completed merge.
type Result struct {
	SessionID string
	Sources   int
	Rounds    int
	Nodes     []Node
	LocalPath string
	Key       string
	URL       string
	Bytes     int
}

type Engine struct {
	audio     audio.Processor
	store     storage.Store
	scratch   string
	batchSize int
	loader    *Loader
	janitor   *Janitor
	logger    *slog.Logger
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Audio == nil {
		return nil, fmt.Errorf("merge: audio processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("merge: store is required")
	}
	if cfg.ScratchRoot == "" {
		return nil, fmt.Errorf("merge: scratch root is required")
	}
	if cfg.BatchSize < 2 {
		cfg.BatchSize = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Janitor == nil {
		cfg.Janitor = NewJanitor(0, cfg.Logger)
	}

	return &Engine{
		audio:     cfg.Audio,
		store:     cfg.Store,
		scratch:   cfg.ScratchRoot,
		batchSize: cfg.BatchSize,
		loader: NewLoader(LoaderConfig{
			Store:      cfg.Store,
			HTTPClient: cfg.HTTPClient,
			Attempts:   cfg.FetchAttempts,
			Delay:      cfg.FetchDelay,
			Multiplier: cfg.FetchMultiplier,
			Timeout:    cfg.FetchTimeout,
		}),
		janitor: cfg.Janitor,
		logger:  cfg.Logger,
	}, nil
}

// Rounds returns the number of merge rounds needed for n inputs.
func Rounds(n, batchSize int) int {
	rounds := 0
	for n > 1 {
		n = (n + batchSize - 1) / batchSize
		rounds++
	}
	return rounds
}

// Merge concatenates sources in order and uploads the result to the merged
// alias as "<sessionID>.mp3". Any failed fetch or batch fails the merge.
func (e *Engine) Merge(ctx context.Context, sess *session.Session, sources []Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	sessionID := sess.ID

	dir := filepath.Join(e.scratch, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	logger := e.logger.With("session_id", sessionID)
	start := time.Now()

	var (
		intermediates []string
		nodes         []Node
	)
	current := make([]string, 0, len(sources))
	for i, src := range sources {
		dest := filepath.Join(dir, fmt.Sprintf("%s_src_%03d.mp3", sessionID, i))
		path, err := e.loader.Fetch(ctx, src, dest)
		if err != nil {
			e.janitor.Schedule(intermediates...)
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if path == dest {
			intermediates = append(intermediates, dest)
		}
		current = append(current, path)
	}

	round := 0
	for len(current) > 1 {
		if err := ctx.Err(); err != nil {
			e.janitor.Schedule(intermediates...)
			return nil, err
		}
		round++

		next := make([]string, 0, (len(current)+e.batchSize-1)/e.batchSize)
		for i := 0; i*e.batchSize < len(current); i++ {
			end := min((i+1)*e.batchSize, len(current))
			group := current[i*e.batchSize : end]
			if len(group) == 1 {
				next = append(next, group[0])
				continue
			}

			out := filepath.Join(dir, fmt.Sprintf("%s_batch_%d_%d.mp3", sessionID, round, i))
			if err := e.audio.Concat(ctx, group, out); err != nil {
				e.janitor.Schedule(intermediates...)
				return nil, fmt.Errorf("round %d batch %d: %w", round, i, err)
			}
			intermediates = append(intermediates, out)
			nodes = append(nodes, Node{Round: round, Index: i, Path: out, Inputs: len(group)})
			next = append(next, out)
		}

		logger.Debug("merge round complete", "round", round, "outputs", len(next))
		current = next
	}

	final := current[0]
	data, err := os.ReadFile(final)
	if err != nil {
		e.janitor.Schedule(intermediates...)
		return nil, fmt.Errorf("read merged file: %w", err)
	}

	key := sessionID + ".mp3"
	if err := e.store.Put(ctx, storage.AliasMerged, key, data, "audio/mpeg"); err != nil {
		e.janitor.Schedule(intermediates...)
		return nil, fmt.Errorf("upload merged audio: %w", err)
	}
	url, err := e.store.PublicURL(storage.AliasMerged, key)
	if err != nil {
		logger.Warn("no public URL for merged audio", "error", err)
	}

	e.janitor.Schedule(without(intermediates, final)...)

	logger.Info("merge complete",
		"sources", len(sources),
		"rounds", round,
		"bytes", len(data),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &Result{
		SessionID: sessionID,
		Sources:   len(sources),
		Rounds:    round,
		Nodes:     nodes,
		LocalPath: final,
		Key:       key,
		URL:       url,
		Bytes:     len(data),
	}, nil
}

func without(paths []string, keep string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != keep {
			out = append(out, p)
		}
	}
	return out
}
