// Package mixdown assembles the publishable episode: intro, narration and
// outro joined without re-encoding, then the episode metadata merge.
package mixdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/studio/internal/audio"
	"github.com/jackzampolin/studio/internal/episode"
	"github.com/jackzampolin/studio/internal/merge"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
)

type Config struct {
	Audio      audio.Processor
	Store      storage.Store
	HTTPClient *http.Client

	ScratchRoot string

	// Intro and Outro are URLs or "alias:key" references. Empty skips.
	Intro string
	Outro string

	// ArtBaseURL and TranscriptBaseURL fall back to the art and
	// transcripts alias public URLs.
	ArtBaseURL        string
	TranscriptBaseURL string

	MetaAttempts int           // default 3
	MetaDelay    time.Duration // default 1s
	FetchTimeout time.Duration // default 30s

	Now    func() time.Time
	Logger *slog.Logger
}

// Result describes a published episode.
type Result struct {
	SessionID string
	Key       string
	URL       string
	Bytes     int64
	Duration  *float64
	MetaKey   string
	Intro     bool
	Outro     bool
}

type Assembler struct {
	audio    audio.Processor
	store    storage.Store
	loader   *merge.Loader
	scratch  string
	intro    string
	outro    string
	artBase  string
	txtBase  string
	attempts int
	delay    time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func New(cfg Config) (*Assembler, error) {
	if cfg.Audio == nil {
		return nil, fmt.Errorf("mixdown: audio processor is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("mixdown: store is required")
	}
	if cfg.ScratchRoot == "" {
		return nil, fmt.Errorf("mixdown: scratch root is required")
	}
	if cfg.MetaAttempts <= 0 {
		cfg.MetaAttempts = 3
	}
	if cfg.MetaDelay <= 0 {
		cfg.MetaDelay = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assembler{
		audio: cfg.Audio,
		store: cfg.Store,
		loader: merge.NewLoader(merge.LoaderConfig{
			Store:      cfg.Store,
			HTTPClient: cfg.HTTPClient,
			Timeout:    cfg.FetchTimeout,
		}),
		scratch:  cfg.ScratchRoot,
		intro:    cfg.Intro,
		outro:    cfg.Outro,
		artBase:  cfg.ArtBaseURL,
		txtBase:  cfg.TranscriptBaseURL,
		attempts: cfg.MetaAttempts,
		delay:    cfg.MetaDelay,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}, nil
}

// Assemble joins intro, editedPath and outro, uploads the episode to the
// podcast alias as "<sid>.mp3" and merges the episode metadata. Scratch
// files are removed whatever the outcome.
func (a *Assembler) Assemble(ctx context.Context, sess *session.Session, editedPath string) (*Result, error) {
	if err := audio.ValidateOutput(editedPath); err != nil {
		return nil, fmt.Errorf("edited audio: %w", err)
	}

	sid := sess.ID
	logger := a.logger.With("session_id", sid)
	dir := filepath.Join(a.scratch, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	introPath := filepath.Join(dir, sid+"_intro.mp3")
	outroPath := filepath.Join(dir, sid+"_outro.mp3")
	finalPath := filepath.Join(dir, sid+"_final.mp3")
	defer func() {
		for _, p := range []string{introPath, outroPath, finalPath} {
			_ = os.Remove(p)
		}
	}()

	res := &Result{SessionID: sid, Key: sid + ".mp3", MetaKey: episode.Key(sid)}
	inputs := make([]string, 0, 3)

	path, err := a.fetchBumper(ctx, "intro", a.intro, introPath, logger)
	if err != nil {
		return nil, err
	}
	if path != "" {
		inputs = append(inputs, path)
		res.Intro = true
	}
	inputs = append(inputs, editedPath)
	path, err = a.fetchBumper(ctx, "outro", a.outro, outroPath, logger)
	if err != nil {
		return nil, err
	}
	if path != "" {
		inputs = append(inputs, path)
		res.Outro = true
	}

	if err := a.audio.Concat(ctx, inputs, finalPath); err != nil {
		return nil, fmt.Errorf("concat episode: %w", err)
	}
	if err := audio.ValidateOutput(finalPath); err != nil {
		return nil, fmt.Errorf("concat episode: %w", err)
	}

	data, err := os.ReadFile(finalPath)
	if err != nil {
		return nil, fmt.Errorf("read episode: %w", err)
	}
	if err := a.store.Put(ctx, storage.AliasPodcast, res.Key, data, "audio/mpeg"); err != nil {
		return nil, fmt.Errorf("upload episode: %w", err)
	}
	res.Bytes = int64(len(data))
	if res.URL, err = a.store.PublicURL(storage.AliasPodcast, res.Key); err != nil {
		return nil, fmt.Errorf("episode url: %w", err)
	}

	if d, err := a.audio.Duration(ctx, finalPath); err != nil {
		logger.Warn("duration probe failed, recording null duration", "error", err)
	} else {
		d = math.Round(d*1000) / 1000
		res.Duration = &d
	}

	if err := a.updateMetadata(ctx, sid, res, logger); err != nil {
		return nil, err
	}

	logger.Info("episode published",
		"key", res.Key,
		"url", res.URL,
		"bytes", res.Bytes,
		"intro", res.Intro,
		"outro", res.Outro)
	return res, nil
}

func (a *Assembler) fetchBumper(ctx context.Context, name, ref, dest string, logger *slog.Logger) (string, error) {
	if ref == "" {
		return "", nil
	}
	path, err := a.loader.Fetch(ctx, merge.ParseSource(ref), dest)
	if errors.Is(err, merge.ErrSourceNotFound) {
		logger.Warn("bumper not found, skipping", "bumper", name, "source", ref)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", name, err)
	}
	return path, nil
}

func (a *Assembler) updateMetadata(ctx context.Context, sid string, res *Result, logger *slog.Logger) error {
	existing, err := a.getMetadata(ctx, res.MetaKey)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}

	update := episode.Update{
		SessionID:     sid,
		ArtURL:        a.publicURL(a.artBase, storage.AliasArt, sid+".png"),
		TranscriptURL: a.publicURL(a.txtBase, storage.AliasTranscripts, sid+".txt"),
		PodcastURL:    res.URL,
		Duration:      res.Duration,
		FileSize:      res.Bytes,
		Now:           a.now(),
	}

	doc, err := episode.Merge(existing, update)
	if errors.Is(err, episode.ErrInvalidDocument) {
		logger.Warn("stored metadata is not a JSON object, starting fresh", "key", res.MetaKey)
		doc, err = episode.Merge(nil, update)
	}
	if err != nil {
		return fmt.Errorf("merge metadata: %w", err)
	}
	if err := episode.Validate(doc); err != nil {
		return err
	}

	err = retry.Do(
		func() error {
			return a.store.Put(ctx, storage.AliasMeta, res.MetaKey, doc, "application/json")
		},
		a.retryOptions(ctx)...,
	)
	if err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	return nil
}

// getMetadata returns nil when no document exists yet.
func (a *Assembler) getMetadata(ctx context.Context, key string) ([]byte, error) {
	data, err := retry.DoWithData(
		func() ([]byte, error) {
			b, err := a.store.GetBytes(ctx, storage.AliasMeta, key)
			if errors.Is(err, storage.ErrUnknownAlias) {
				return nil, retry.Unrecoverable(err)
			}
			return b, err
		},
		append(a.retryOptions(ctx), retry.RetryIf(func(err error) bool {
			return !errors.Is(err, storage.ErrNotFound) && retry.IsRecoverable(err)
		}))...,
	)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (a *Assembler) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(a.attempts)),
		retry.Delay(a.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warn("metadata store call failed, retrying", "attempt", n+1, "error", err)
		}),
	}
}

func (a *Assembler) publicURL(base, alias, key string) string {
	if base != "" {
		return storage.JoinURL(base, key)
	}
	u, err := a.store.PublicURL(alias, key)
	if err != nil {
		return ""
	}
	return u
}
