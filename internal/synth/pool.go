// Package synth turns transcript chunks into stored audio segments with a
// bounded pool of provider calls.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/studio/internal/chunker"
	"github.com/jackzampolin/studio/internal/providers"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
)

// ErrNoSegments is returned when no chunk was synthesized.
var ErrNoSegments = errors.New("no segments synthesized")

// Config configures a Pool.
type Config struct {
	Provider providers.TTSProvider
	Store    storage.Store

	Concurrency int           // In-flight provider calls; default 3
	MaxAttempts int           // Per chunk; default 5
	RetryDelay  time.Duration // Base backoff; default 1200ms
	Multiplier  float64       // Backoff growth; default 2.1
	MaxDelay    time.Duration // Backoff ceiling; default 60s
	CallTimeout time.Duration // Per provider call; default 60s
	MaxChars    int           // Sanitize limit; default 2800

	Voice  string
	Format string
	Logger *slog.Logger
}

// Segment is a successfully stored chunk.
type Segment struct {
	Index    int    `json:"index"`
	Key      string `json:"key"`
	URL      string `json:"url,omitempty"`
	Bytes    int    `json:"bytes"`
	Attempts int    `json:"attempts"`
}

// Failure is a chunk that exhausted its attempts or failed fatally.
type Failure struct {
	Index    int                 `json:"index"`
	Attempts int                 `json:"attempts"`
	Kind     providers.ErrorKind `json:"kind"`
	Err      error               `json:"-"`
}

// Report is the outcome of one Synthesize call. Segments and Failures are
// ordered by chunk index.
type Report struct {
	SessionID string
	Total     int
	Segments  []Segment
	Failures  []Failure
	Elapsed   time.Duration
}

func (r Report) Successful() int { return len(r.Segments) }

func (r Report) Failed() int { return len(r.Failures) }

// Pool runs provider calls with bounded concurrency and retry.
type Pool struct {
	provider    providers.TTSProvider
	store       storage.Store
	limiter     *providers.RateLimiter
	concurrency int
	maxAttempts int
	retryDelay  time.Duration
	multiplier  float64
	maxDelay    time.Duration
	callTimeout time.Duration
	maxChars    int
	voice       string
	format      string
	logger      *slog.Logger
}

// NewPool validates cfg and fills defaults.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("synth: provider is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("synth: store is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if max := cfg.Provider.MaxConcurrency(); max > 0 && cfg.Concurrency > max {
		cfg.Concurrency = max
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1200 * time.Millisecond
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.1
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = time.Minute
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Pool{
		provider:    cfg.Provider,
		store:       cfg.Store,
		limiter:     providers.NewRateLimiter(cfg.Provider.RequestsPerSecond()),
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		multiplier:  cfg.Multiplier,
		maxDelay:    cfg.MaxDelay,
		callTimeout: cfg.CallTimeout,
		maxChars:    cfg.MaxChars,
		voice:       cfg.Voice,
		format:      cfg.Format,
		logger:      cfg.Logger.With("provider", cfg.Provider.Name()),
	}, nil
}

// ChunkKey is the store key of a chunk's audio. Chunk numbers start at 1.
func ChunkKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/chunk-%03d.mp3", sessionID, index+1)
}

type outcome struct {
	segment *Segment
	failure *Failure
}

// Synthesize converts every chunk. A failing chunk never stops its
// siblings. The returned error is ErrNoSegments when nothing succeeded, or
// the context error when the session was cancelled.
func (p *Pool) Synthesize(ctx context.Context, sess *session.Session, chunks []chunker.Chunk) (Report, error) {
	start := time.Now()
	report := Report{SessionID: sess.ID, Total: len(chunks)}
	logger := p.logger.With("session_id", sess.ID)

	if len(chunks) == 0 {
		return report, fmt.Errorf("%w: no chunks provided", ErrNoSegments)
	}

	logger.Info("synthesis started", "chunks", len(chunks), "concurrency", p.concurrency)

	results := make([]outcome, len(chunks))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			results[i] = p.process(ctx, logger, sess.ID, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.segment != nil {
			report.Segments = append(report.Segments, *r.segment)
		} else if r.failure != nil {
			report.Failures = append(report.Failures, *r.failure)
		}
	}
	report.Elapsed = time.Since(start)

	attrs := []any{
		"total", report.Total,
		"successful", report.Successful(),
		"failed", report.Failed(),
		"elapsed", report.Elapsed.Round(time.Millisecond),
	}
	if report.Failed() > 0 {
		logger.Warn("synthesis completed with failures", attrs...)
	} else {
		logger.Info("synthesis completed", attrs...)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Successful() == 0 {
		return report, fmt.Errorf("%w: all %d chunks failed", ErrNoSegments, report.Total)
	}
	return report, nil
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, sessionID string, c chunker.Chunk) outcome {
	text, cut := sanitize(c.Text, p.maxChars)
	if cut > 0 {
		logger.Warn("chunk truncated to provider limit",
			"chunk", c.Index+1,
			"limit", p.maxChars,
			"cut_chars", cut)
	}
	if text == "" {
		return outcome{failure: &Failure{
			Index: c.Index,
			Kind:  providers.KindFatal,
			Err:   errors.New("chunk is empty after sanitizing"),
		}}
	}

	attempts := 0
	audio, err := retry.DoWithData(
		func() ([]byte, error) {
			attempts++
			return p.generate(ctx, text)
		},
		retry.Context(ctx),
		retry.Attempts(uint(p.maxAttempts)),
		retry.RetryIf(providers.IsRetryable),
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			return p.backoff(attempts, err)
		}),
		retry.OnRetry(func(_ uint, err error) {
			logger.Debug("chunk attempt failed",
				"chunk", c.Index+1, "attempt", attempts, "kind", providers.Classify(err), "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logger.Error("chunk permanently failed",
			"chunk", c.Index+1, "attempts", attempts, "error", err)
		return outcome{failure: &Failure{
			Index:    c.Index,
			Attempts: attempts,
			Kind:     providers.Classify(err),
			Err:      err,
		}}
	}

	key := ChunkKey(sessionID, c.Index)
	if err := p.store.Put(ctx, storage.AliasChunks, key, audio, "audio/mpeg"); err != nil {
		logger.Error("chunk upload failed", "chunk", c.Index+1, "key", key, "error", err)
		return outcome{failure: &Failure{Index: c.Index, Attempts: attempts, Kind: providers.KindUnknown, Err: err}}
	}

	url, _ := p.store.PublicURL(storage.AliasChunks, key)
	if attempts > 1 {
		logger.Info("chunk recovered", "chunk", c.Index+1, "attempts", attempts)
	}
	logger.Debug("chunk processed", "chunk", c.Index+1, "key", key, "bytes", len(audio))

	return outcome{segment: &Segment{
		Index:    c.Index,
		Key:      key,
		URL:      url,
		Bytes:    len(audio),
		Attempts: attempts,
	}}
}

func (p *Pool) generate(ctx context.Context, text string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, retry.Unrecoverable(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	res, err := p.provider.Generate(callCtx, &providers.TTSRequest{
		Text:   text,
		Voice:  p.voice,
		Format: p.format,
	})
	if err != nil {
		if providers.Classify(err) == providers.KindRateLimited {
			p.limiter.Record429(providers.RetryAfterHint(err))
		}
		return nil, err
	}
	if res == nil || len(res.Audio) == 0 {
		return nil, &providers.SynthesisError{
			Provider:  p.provider.Name(),
			Kind:      providers.KindUnknown,
			Transient: true,
			Message:   "empty audio",
		}
	}
	return res.Audio, nil
}

// backoff returns base * multiplier^(attempt-1), raised to any Retry-After
// the provider sent, capped at maxDelay.
func (p *Pool) backoff(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.retryDelay) * math.Pow(p.multiplier, float64(attempt-1)))
	if hint := providers.RetryAfterHint(err); hint > d {
		d = hint
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}
