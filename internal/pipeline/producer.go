// Package pipeline drives one session through chunking, synthesis, merge,
// editing and assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/studio/internal/chunker"
	"github.com/jackzampolin/studio/internal/effects"
	"github.com/jackzampolin/studio/internal/merge"
	"github.com/jackzampolin/studio/internal/mixdown"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
	"github.com/jackzampolin/studio/internal/synth"
)

var (
	// ErrEmptyTranscript is returned when chunking yields nothing.
	ErrEmptyTranscript = errors.New("transcript is empty")
	// ErrPartialFailure is returned under PartialAbort when any chunk failed.
	ErrPartialFailure = errors.New("synthesis partially failed")
)

type Synthesizer interface {
	Synthesize(ctx context.Context, sess *session.Session, chunks []chunker.Chunk) (synth.Report, error)
}

type Merger interface {
	Merge(ctx context.Context, sess *session.Session, sources []merge.Source) (*merge.Result, error)
}

type Editor interface {
	Run(ctx context.Context, sess *session.Session, inputPath string) (*effects.Result, error)
}

type Assembler interface {
	Assemble(ctx context.Context, sess *session.Session, editedPath string) (*mixdown.Result, error)
}

type Config struct {
	Store       storage.Store
	Synth       Synthesizer
	Merge       Merger
	Effects     Editor
	Mixdown     Assembler
	Ledger      session.Ledger // optional
	LockDir     string
	ScratchRoot string

	MaxChars       int
	PartialPolicy  PartialPolicy
	PurgeOnSuccess bool
	Heartbeat      time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Outcome is the result of one session run.
type Outcome struct {
	SessionID string
	State     session.State
	Chunks    int
	Synthesis synth.Report
	Merge     *merge.Result
	Edit      *effects.Result
	Episode   *mixdown.Result
	Purged    int
	Elapsed   time.Duration
}

// Producer owns the stage components. One Producer serves many sessions;
// all per-session state lives on the session.Session.
type Producer struct {
	store          storage.Store
	synth          Synthesizer
	merge          Merger
	effects        Editor
	mixdown        Assembler
	ledger         session.Ledger
	lockDir        string
	scratch        string
	maxChars       int
	policy         PartialPolicy
	purgeOnSuccess bool
	heartbeat      time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

func NewProducer(cfg Config) (*Producer, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("pipeline: store is required")
	case cfg.Synth == nil, cfg.Merge == nil, cfg.Effects == nil, cfg.Mixdown == nil:
		return nil, fmt.Errorf("pipeline: every stage component is required")
	case cfg.LockDir == "":
		return nil, fmt.Errorf("pipeline: lock dir is required")
	}
	policy, err := ParsePartialPolicy(string(cfg.PartialPolicy))
	if err != nil {
		return nil, err
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = chunker.DefaultMaxChars
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Producer{
		store:          cfg.Store,
		synth:          cfg.Synth,
		merge:          cfg.Merge,
		effects:        cfg.Effects,
		mixdown:        cfg.Mixdown,
		ledger:         cfg.Ledger,
		lockDir:        cfg.LockDir,
		scratch:        cfg.ScratchRoot,
		maxChars:       cfg.MaxChars,
		policy:         policy,
		purgeOnSuccess: cfg.PurgeOnSuccess,
		heartbeat:      cfg.Heartbeat,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}, nil
}

// RawTextKey is the store key of a persisted transcript chunk.
func RawTextKey(sessionID string, index int) string {
	return fmt.Sprintf("%s/chunk-%03d.txt", sessionID, index+1)
}

// Produce runs a session from transcript text. An empty sessionID gets a
// generated one. The chunks are persisted to the rawtext alias before
// synthesis so the session can be resumed with ProduceFromStore.
func (p *Producer) Produce(ctx context.Context, sessionID, transcript string) (*Outcome, error) {
	return p.run(ctx, sessionID, func(ctx context.Context, sess *session.Session) ([]chunker.Chunk, error) {
		chunks := chunker.Split(transcript, p.maxChars)
		if len(chunks) == 0 {
			return nil, ErrEmptyTranscript
		}
		for _, c := range chunks {
			if err := p.store.Put(ctx, storage.AliasRawText, RawTextKey(sess.ID, c.Index), []byte(c.Text), "text/plain; charset=utf-8"); err != nil {
				return nil, fmt.Errorf("persist chunk %d: %w", c.Index+1, err)
			}
		}
		return chunks, nil
	})
}

// ProduceFromStore runs a session from chunks already in the rawtext alias
// under "<sessionID>/", in key order.
func (p *Producer) ProduceFromStore(ctx context.Context, sessionID string) (*Outcome, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required to load stored chunks")
	}
	return p.run(ctx, sessionID, func(ctx context.Context, sess *session.Session) ([]chunker.Chunk, error) {
		return LoadChunks(ctx, p.store, sess.ID)
	})
}

// LoadChunks reads a session's persisted transcript chunks in key order.
func LoadChunks(ctx context.Context, store storage.Store, sessionID string) ([]chunker.Chunk, error) {
	keys, err := store.List(ctx, storage.AliasRawText, sessionID+"/")
	if err != nil {
		return nil, fmt.Errorf("list stored chunks: %w", err)
	}
	sort.Strings(keys)

	var chunks []chunker.Chunk
	for _, key := range keys {
		if !strings.HasSuffix(key, ".txt") {
			continue
		}
		text, err := store.GetText(ctx, storage.AliasRawText, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		chunks = append(chunks, chunker.Chunk{Index: len(chunks), Text: text, Size: len([]rune(text))})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no stored chunks for %s", ErrEmptyTranscript, sessionID)
	}
	return chunks, nil
}

type chunkSource func(ctx context.Context, sess *session.Session) ([]chunker.Chunk, error)

func (p *Producer) run(ctx context.Context, sessionID string, load chunkSource) (*Outcome, error) {
	start := time.Now()
	sess, err := session.New(sessionID, p.now())
	if err != nil {
		return nil, err
	}

	lock, err := session.AcquireLock(filepath.Join(p.lockDir, sess.ID+".lock"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			p.logger.Warn("failed to release session lock", "session_id", sess.ID, "error", err)
		}
	}()

	logger := p.logger.With("session_id", sess.ID)
	if p.scratch != "" {
		defer func() {
			if err := os.RemoveAll(filepath.Join(p.scratch, sess.ID)); err != nil {
				logger.Warn("failed to remove session scratch", "error", err)
			}
		}()
	}

	hb := StartHeartbeat(ctx, p.heartbeat, sess, logger)
	defer hb.Stop()

	out := &Outcome{SessionID: sess.ID}
	logger.Info("session started")
	p.record(ctx, sess, out)

	err = p.stages(ctx, sess, out, load, logger)
	out.State = sess.State()
	out.Elapsed = time.Since(start)

	if err != nil {
		if ferr := markFailed(sess, err); ferr != nil {
			logger.Error("cannot mark session failed", "state", sess.State(), "error", ferr)
		}
		out.State = sess.State()
		p.record(ctx, sess, out)
		logger.Error("session failed", "state_history", len(sess.History()), "elapsed", out.Elapsed.Round(time.Millisecond), "error", err)
		return out, err
	}

	if p.purgeOnSuccess {
		n, perr := storage.PurgeSession(ctx, p.store, sess.ID, logger)
		out.Purged = n
		if perr != nil {
			logger.Warn("purge incomplete", "deleted", n, "error", perr)
		}
	}

	p.record(ctx, sess, out)
	logger.Info("session complete",
		"podcast_url", out.Episode.URL,
		"segments", out.Synthesis.Successful(),
		"failed_chunks", out.Synthesis.Failed(),
		"fallback_stage", out.Edit.FallbackStage,
		"elapsed", out.Elapsed.Round(time.Millisecond))
	return out, nil
}

// markFailed ends sess after err. A partial-failure abort and cancellation
// are forced; anything else goes through the state machine, which refuses
// to fail SYNTHESIZING or EDITING while the phase holds outputs.
func markFailed(sess *session.Session, err error) error {
	if errors.Is(err, ErrPartialFailure) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return sess.Abort(err)
	}
	return sess.Fail(err)
}

// stages advances sess through every phase. On error the session is left in
// the phase that failed, holding the outputs that phase kept.
func (p *Producer) stages(ctx context.Context, sess *session.Session, out *Outcome, load chunkSource, logger *slog.Logger) error {
	chunks, err := load(ctx, sess)
	if err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	sess.SetChunkCount(len(chunks))
	out.Chunks = len(chunks)
	logger.Info("transcript chunked", "chunks", len(chunks))

	if err := p.advance(ctx, sess, out, session.StateSynthesizing); err != nil {
		return err
	}
	report, err := p.synth.Synthesize(ctx, sess, chunks)
	out.Synthesis = report
	if err != nil {
		return fmt.Errorf("synthesis: %w", err)
	}
	sess.SetOutputs(report.Successful())
	if report.Failed() > 0 && p.policy == PartialAbort {
		return fmt.Errorf("synthesis: %w: %d of %d chunks failed", ErrPartialFailure, report.Failed(), report.Total)
	}

	if err := p.advance(ctx, sess, out, session.StateMerging); err != nil {
		return err
	}
	sources := make([]merge.Source, 0, len(report.Segments))
	for _, seg := range report.Segments {
		sources = append(sources, merge.ObjectSource(storage.AliasChunks, seg.Key))
	}
	merged, err := p.merge.Merge(ctx, sess, sources)
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	out.Merge = merged

	if err := p.advance(ctx, sess, out, session.StateEditing); err != nil {
		return err
	}
	edited, err := p.effects.Run(ctx, sess, merged.LocalPath)
	if err != nil {
		return fmt.Errorf("editing: %w", err)
	}
	out.Edit = edited
	sess.SetOutputs(1)

	if err := p.advance(ctx, sess, out, session.StateAssembling); err != nil {
		return err
	}
	episode, err := p.mixdown.Assemble(ctx, sess, edited.LocalPath)
	if err != nil {
		return fmt.Errorf("assembly: %w", err)
	}
	out.Episode = episode

	return p.advance(ctx, sess, out, session.StateDone)
}

func (p *Producer) advance(ctx context.Context, sess *session.Session, out *Outcome, to session.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sess.Transition(to); err != nil {
		return err
	}
	out.State = to
	p.record(ctx, sess, out)
	return nil
}

// record writes the ledger row. Ledger errors are logged, never fatal.
func (p *Producer) record(ctx context.Context, sess *session.Session, out *Outcome) {
	if p.ledger == nil {
		return
	}
	rec := session.RecordFor(sess)
	rec.Segments = out.Synthesis.Successful()
	rec.Failed = out.Synthesis.Failed()
	if out.Edit != nil {
		rec.FallbackStage = out.Edit.FallbackStage
	}
	if out.Episode != nil {
		rec.PodcastURL = out.Episode.URL
	}
	if err := p.ledger.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Warn("ledger update failed", "session_id", sess.ID, "error", err)
	}
}
