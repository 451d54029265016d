package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jackzampolin/studio/internal/audio"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
)

// ErrInvalidInput is returned when the merged input is missing or empty.
var ErrInvalidInput = errors.New("invalid editing input")

type Config struct {
	Audio audio.Processor
	Store storage.Store

	// ScratchRoot holds per-session working directories.
	ScratchRoot string

	// Stages defaults to DefaultChain(DefaultFadeSeconds).
	Stages []Stage

	Logger *slog.Logger
}

// Artifact records the output of one attempted stage. Path is a scratch
// file and does not outlive Run.
type Artifact struct {
	Stage int
	Kind  string
	Path  string
	Bytes int64
	Valid bool
}

// Result describes an editing run. FallbackStage is the 1-based stage that
// failed, or 0 when every stage applied.
type Result struct {
	SessionID     string
	LocalPath     string
	Key           string
	URL           string
	Bytes         int
	Applied       int
	Artifacts     []Artifact
	FallbackStage int
	StageErr      error
}

// Fallback reports whether the published artifact skipped failed stages.
func (r *Result) Fallback() bool { return r.FallbackStage > 0 }

type Pipeline struct {
	audio   audio.Processor
	store   storage.Store
	scratch string
	stages  []Stage
	logger  *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Audio == nil {
		return nil, fmt.Errorf("effects: audio processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("effects: store is required")
	}
	if cfg.ScratchRoot == "" {
		return nil, fmt.Errorf("effects: scratch root is required")
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultChain(DefaultFadeSeconds)
	}
	if err := ValidateChain(cfg.Stages); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		audio:   cfg.Audio,
		store:   cfg.Store,
		scratch: cfg.ScratchRoot,
		stages:  cfg.Stages,
		logger:  cfg.Logger,
	}, nil
}

// Stages returns the configured chain.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Run applies the chain to inputPath and uploads the result to the edited
// alias as "<sid>_edited.mp3". A failing stage stops the chain and the last
// validated artifact is published instead. The returned LocalPath is a copy
// owned by the caller; every intermediate stage file is removed.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, inputPath string) (*Result, error) {
	if err := audio.ValidateOutput(inputPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sid := sess.ID
	logger := p.logger.With("session_id", sid)
	dir := filepath.Join(p.scratch, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	stagePath := func(n int) string {
		return filepath.Join(dir, fmt.Sprintf("%s_stage%d.mp3", sid, n))
	}
	defer func() {
		for i := range p.stages {
			removeQuiet(stagePath(i + 1))
		}
	}()

	res := &Result{SessionID: sid}
	lastGood := inputPath
	start := time.Now()

	for i, st := range p.stages {
		n := i + 1
		out := stagePath(n)
		removeQuiet(out)

		filter, err := p.filterFor(ctx, st, lastGood, logger)
		if err == nil {
			stageStart := time.Now()
			err = p.audio.ApplyFilter(ctx, lastGood, out, filter)
			if err == nil {
				err = audio.ValidateOutput(out)
			}
			if err == nil {
				logger.Debug("stage complete",
					"stage", n,
					"kind", st.Kind(),
					"elapsed", time.Since(stageStart).Round(time.Millisecond))
			}
		}
		res.Artifacts = append(res.Artifacts, artifactFor(n, st.Kind(), out, err == nil))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Error("stage failed, publishing last validated artifact",
				"stage", n,
				"kind", st.Kind(),
				"fallback", filepath.Base(lastGood),
				"error", err)
			res.FallbackStage = n
			res.StageErr = err
			removeQuiet(out)
			break
		}

		if lastGood != inputPath {
			removeQuiet(lastGood)
		}
		lastGood = out
		res.Applied++
	}

	data, err := os.ReadFile(lastGood)
	if err != nil {
		return nil, fmt.Errorf("read edited audio: %w", err)
	}

	final := filepath.Join(dir, sid+"_edited.mp3")
	if err := os.WriteFile(final, data, 0o644); err != nil {
		return nil, fmt.Errorf("write edited audio: %w", err)
	}

	res.Key = sid + "_edited.mp3"
	if err := p.store.Put(ctx, storage.AliasEdited, res.Key, data, "audio/mpeg"); err != nil {
		removeQuiet(final)
		return nil, fmt.Errorf("upload edited audio: %w", err)
	}
	if url, err := p.store.PublicURL(storage.AliasEdited, res.Key); err == nil {
		res.URL = url
	}
	res.LocalPath = final
	res.Bytes = len(data)

	logger.Info("editing complete",
		"applied", res.Applied,
		"stages", len(p.stages),
		"fallback_stage", res.FallbackStage,
		"bytes", res.Bytes,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return res, nil
}

func (p *Pipeline) filterFor(ctx context.Context, st Stage, in string, logger *slog.Logger) (string, error) {
	ds, ok := st.(durationStage)
	if !ok || !ds.NeedsDuration() {
		return st.Filter(0), nil
	}
	dur, err := p.audio.Duration(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Warn("duration probe failed, using duration-agnostic filter", "kind", st.Kind(), "error", err)
		dur = 0
	}
	return st.Filter(dur), nil
}

func artifactFor(stage int, kind string, path string, valid bool) Artifact {
	a := Artifact{Stage: stage, Kind: kind, Path: path, Valid: valid}
	if fi, err := os.Stat(path); err == nil {
		a.Bytes = fi.Size()
	}
	return a
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}
