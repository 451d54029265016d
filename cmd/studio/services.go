package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackzampolin/studio/internal/audio"
	"github.com/jackzampolin/studio/internal/config"
	"github.com/jackzampolin/studio/internal/effects"
	"github.com/jackzampolin/studio/internal/home"
	"github.com/jackzampolin/studio/internal/jobs"
	"github.com/jackzampolin/studio/internal/logging"
	"github.com/jackzampolin/studio/internal/merge"
	"github.com/jackzampolin/studio/internal/mixdown"
	"github.com/jackzampolin/studio/internal/pipeline"
	"github.com/jackzampolin/studio/internal/providers"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
	"github.com/jackzampolin/studio/internal/svcctx"
	"github.com/jackzampolin/studio/internal/synth"
)

const shutdownTimeout = 30 * time.Second

// app owns everything a command may need. The producer side is only built
// for commands that run sessions, so status and purge work without
// provider credentials or ffmpeg.
type app struct {
	home       *home.Dir
	config     *config.Manager
	logger     *slog.Logger
	store      storage.Store
	ledger     *session.SQLiteLedger
	httpClient *http.Client

	janitor  *merge.Janitor
	producer *pipeline.Producer
	executor *jobs.Executor
}

func openApp(ctx context.Context, withProducer bool) (*app, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	mgr, err := config.NewManager(path)
	if err != nil {
		return nil, err
	}

	secrets, err := config.LoadSecrets(dotenvFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	cfg.ApplySecrets(secrets)
	mgr.OnChange(func(c *config.Config) { c.ApplySecrets(secrets) })
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: logging.Format(cfg.Logging.Format),
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	if used := mgr.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config", "path", used)
	}

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	ledger, err := session.OpenLedger(ctx, h.LedgerPath())
	if err != nil {
		return nil, err
	}

	a := &app{
		home:       h,
		config:     mgr,
		logger:     logger,
		store:      store,
		ledger:     ledger,
		httpClient: &http.Client{},
	}
	if !withProducer {
		return a, nil
	}
	if err := a.buildProducer(ctx, cfg); err != nil {
		ledger.Close()
		return nil, err
	}
	return a, nil
}

func newStore(ctx context.Context, cfg config.StorageCfg, logger *slog.Logger) (storage.Store, error) {
	aliases := storage.Aliases{Buckets: cfg.Buckets, PublicURLs: cfg.PublicURLs}
	switch cfg.Driver {
	case "memory":
		logger.Warn("using in-memory storage; artifacts are lost on exit")
		return storage.NewMemoryStore(aliases), nil
	case "", "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UsePathStyle:    cfg.UsePathStyle,
			Aliases:         aliases,
			Logger:          logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newProvider builds the configured synthesis provider and returns it with
// its resolved default voice.
func newProvider(ctx context.Context, cfg *config.Config) (providers.TTSProvider, string, error) {
	pcfg, ok := cfg.Provider(cfg.Synthesis.Provider)
	if !ok {
		return nil, "", fmt.Errorf("synthesis provider %q is not configured", cfg.Synthesis.Provider)
	}
	provider, err := providers.New(ctx, providers.Config{
		Type:      pcfg.Type,
		Model:     pcfg.Model,
		Voice:     pcfg.Voice,
		Engine:    pcfg.Engine,
		Language:  pcfg.Language,
		Region:    pcfg.Region,
		Endpoint:  pcfg.Endpoint,
		APIKey:    pcfg.APIKey,
		Format:    pcfg.Format,
		RateLimit: pcfg.RateLimit,
		Timeout:   cfg.Synthesis.Timeout,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create %s provider: %w", pcfg.Type, err)
	}
	return provider, pcfg.Voice, nil
}

func (a *app) buildProducer(ctx context.Context, cfg *config.Config) error {
	provider, voice, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	pool, err := synth.NewPool(synth.Config{
		Provider:    provider,
		Store:       a.store,
		Concurrency: cfg.Synthesis.Concurrency,
		MaxAttempts: cfg.Synthesis.MaxAttempts,
		RetryDelay:  cfg.Synthesis.RetryDelay,
		Multiplier:  cfg.Synthesis.BackoffMultiplier,
		CallTimeout: cfg.Synthesis.Timeout,
		MaxChars:    cfg.Synthesis.MaxChars,
		Voice:       voice,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	// Effects and mixdown get their own subprocess timeouts.
	mergeAudio := audio.New(audio.Config{
		FFmpegPath:  cfg.Effects.FFmpegPath,
		FFprobePath: cfg.Effects.FFprobePath,
		Logger:      a.logger,
	})
	if err := mergeAudio.CheckAvailable(); err != nil {
		return err
	}
	effectsAudio := audio.New(audio.Config{
		FFmpegPath:  cfg.Effects.FFmpegPath,
		FFprobePath: cfg.Effects.FFprobePath,
		Timeout:     cfg.Effects.StageTimeout,
		Logger:      a.logger,
	})
	mixdownAudio := audio.New(audio.Config{
		FFmpegPath:  cfg.Effects.FFmpegPath,
		FFprobePath: cfg.Effects.FFprobePath,
		Timeout:     cfg.Mixdown.Timeout,
		Logger:      a.logger,
	})

	a.janitor = merge.NewJanitor(cfg.Merge.CleanupDelay, a.logger)
	engine, err := merge.NewEngine(merge.Config{
		Audio:         mergeAudio,
		Store:         a.store,
		HTTPClient:    a.httpClient,
		ScratchRoot:   a.home.ScratchDir(),
		BatchSize:     cfg.Merge.BatchSize,
		FetchTimeout:  cfg.Merge.FetchTimeout,
		FetchAttempts: cfg.Merge.FetchAttempts,
		FetchDelay:    cfg.Merge.FetchDelay,
		Janitor:       a.janitor,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}

	stages := effects.DefaultChain(cfg.Effects.FadeSeconds)
	if cfg.Effects.PresetFile != "" {
		stages, err = effects.LoadPreset(cfg.Effects.PresetFile)
		if err != nil {
			return err
		}
	}
	editor, err := effects.New(effects.Config{
		Audio:       effectsAudio,
		Store:       a.store,
		ScratchRoot: a.home.ScratchDir(),
		Stages:      stages,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	assembler, err := mixdown.New(mixdown.Config{
		Audio:             mixdownAudio,
		Store:             a.store,
		HTTPClient:        a.httpClient,
		ScratchRoot:       a.home.ScratchDir(),
		Intro:             cfg.Mixdown.IntroURL,
		Outro:             cfg.Mixdown.OutroURL,
		ArtBaseURL:        cfg.Mixdown.ArtBaseURL,
		TranscriptBaseURL: cfg.Mixdown.TranscriptBase,
		MetaAttempts:      cfg.Mixdown.MetaAttempts,
		MetaDelay:         cfg.Mixdown.MetaDelay,
		FetchTimeout:      cfg.Merge.FetchTimeout,
		Logger:            a.logger,
	})
	if err != nil {
		return err
	}

	a.producer, err = pipeline.NewProducer(pipeline.Config{
		Store:          a.store,
		Synth:          pool,
		Merge:          engine,
		Effects:        editor,
		Mixdown:        assembler,
		Ledger:         a.ledger,
		LockDir:        a.home.LocksDir(),
		ScratchRoot:    a.home.ScratchDir(),
		MaxChars:       cfg.Chunking.MaxChars,
		PartialPolicy:  pipeline.PartialPolicy(cfg.Synthesis.PartialPolicy),
		PurgeOnSuccess: cfg.Cleanup.PurgeOnSuccess,
		Heartbeat:      cfg.Heartbeat,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	a.executor = jobs.NewExecutor(jobs.ExecutorConfig{
		Name:      "sessions",
		Logger:    a.logger,
		Workers:   cfg.Executor.Workers,
		QueueSize: cfg.Executor.QueueSize,
	})
	return nil
}

// services exposes the app through svcctx.
func (a *app) services() *svcctx.Services {
	return &svcctx.Services{
		Config:   a.config,
		Home:     a.home,
		Store:    a.store,
		Ledger:   a.ledger,
		Producer: a.producer,
		Executor: a.executor,
		Logger:   a.logger,
	}
}

// context returns ctx with the app's services attached.
func (a *app) context(ctx context.Context) context.Context {
	return svcctx.WithServices(ctx, a.services())
}

// Close drains the executor, flushes scheduled scratch deletions and
// closes the ledger.
func (a *app) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.executor != nil {
		if err := a.executor.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown executor: %w", err))
		}
	}
	if a.janitor != nil {
		a.janitor.Flush()
	}
	if err := a.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	return errors.Join(errs...)
}
