package config

import (
	"time"

	"github.com/jackzampolin/studio/internal/storage"
)

// Config holds studio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Storage   StorageCfg             `mapstructure:"storage" yaml:"storage"`
	Synthesis SynthesisCfg           `mapstructure:"synthesis" yaml:"synthesis"`
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Chunking  ChunkingCfg            `mapstructure:"chunking" yaml:"chunking"`
	Merge     MergeCfg               `mapstructure:"merge" yaml:"merge"`
	Effects   EffectsCfg             `mapstructure:"effects" yaml:"effects"`
	Mixdown   MixdownCfg             `mapstructure:"mixdown" yaml:"mixdown"`
	Executor  ExecutorCfg            `mapstructure:"executor" yaml:"executor"`
	Cleanup   CleanupCfg             `mapstructure:"cleanup" yaml:"cleanup"`
	Logging   LoggingCfg             `mapstructure:"logging" yaml:"logging"`
	Heartbeat time.Duration          `mapstructure:"heartbeat" yaml:"heartbeat"` // Interval between progress heartbeats
}

// StorageCfg configures the durable object store.
type StorageCfg struct {
	Driver          string            `mapstructure:"driver" yaml:"driver"`       // "s3" or "memory"
	Endpoint        string            `mapstructure:"endpoint" yaml:"endpoint"`   // S3-compatible endpoint (R2, MinIO)
	Region          string            `mapstructure:"region" yaml:"region"`       // "auto" for R2
	AccessKeyID     string            `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string            `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	UsePathStyle    bool              `mapstructure:"use_path_style" yaml:"use_path_style"`
	Buckets         map[string]string `mapstructure:"buckets" yaml:"buckets"`         // alias -> bucket name
	PublicURLs      map[string]string `mapstructure:"public_urls" yaml:"public_urls"` // alias -> public base URL
}

// SynthesisCfg configures the speech synthesis worker pool.
type SynthesisCfg struct {
	Provider          string        `mapstructure:"provider" yaml:"provider"` // key into Providers
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxChars          int           `mapstructure:"max_chars" yaml:"max_chars"` // Provider input limit after sanitizing
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`     // Per-call timeout
	PartialPolicy     string        `mapstructure:"partial_policy" yaml:"partial_policy"`
}

// ProviderCfg configures one speech synthesis provider.
type ProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"` // "polly", "openai", "elevenlabs", "google", "mock"
	Model     string  `mapstructure:"model" yaml:"model"`
	Voice     string  `mapstructure:"voice" yaml:"voice"`
	Engine    string  `mapstructure:"engine" yaml:"engine"`     // Polly engine
	Language  string  `mapstructure:"language" yaml:"language"` // Google language code
	Region    string  `mapstructure:"region" yaml:"region"`
	Endpoint  string  `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"` // supports ${ENV_VAR} syntax
	Format    string  `mapstructure:"format" yaml:"format"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
}

// ChunkingCfg configures the text chunker.
type ChunkingCfg struct {
	MaxChars int `mapstructure:"max_chars" yaml:"max_chars"`
}

// MergeCfg configures the recursive merge engine.
type MergeCfg struct {
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	FetchAttempts int           `mapstructure:"fetch_attempts" yaml:"fetch_attempts"`
	FetchDelay    time.Duration `mapstructure:"fetch_delay" yaml:"fetch_delay"`
	CleanupDelay  time.Duration `mapstructure:"cleanup_delay" yaml:"cleanup_delay"`
}

// EffectsCfg configures the post-production stage pipeline.
type EffectsCfg struct {
	FadeSeconds  float64       `mapstructure:"fade_seconds" yaml:"fade_seconds"`
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	PresetFile   string        `mapstructure:"preset_file" yaml:"preset_file"` // optional TOML chain override
	FFmpegPath   string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath  string        `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
}

// MixdownCfg configures final assembly.
type MixdownCfg struct {
	IntroURL       string        `mapstructure:"intro_url" yaml:"intro_url"` // URL or alias:key
	OutroURL       string        `mapstructure:"outro_url" yaml:"outro_url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ArtBaseURL     string        `mapstructure:"art_base_url" yaml:"art_base_url"`
	TranscriptBase string        `mapstructure:"transcript_base_url" yaml:"transcript_base_url"`
	MetaAttempts   int           `mapstructure:"meta_attempts" yaml:"meta_attempts"`
	MetaDelay      time.Duration `mapstructure:"meta_delay" yaml:"meta_delay"`
}

// ExecutorCfg configures the bounded session executor.
type ExecutorCfg struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// CleanupCfg configures post-run artifact removal.
type CleanupCfg struct {
	PurgeOnSuccess bool `mapstructure:"purge_on_success" yaml:"purge_on_success"`
}

// LoggingCfg configures the process logger.
type LoggingCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // auto, text, json
}

// Bucket aliases used by the pipeline.
const (
	AliasChunks      = storage.AliasChunks
	AliasMerged      = storage.AliasMerged
	AliasEdited      = storage.AliasEdited
	AliasPodcast     = storage.AliasPodcast
	AliasMeta        = storage.AliasMeta
	AliasRawText     = storage.AliasRawText
	AliasTranscripts = storage.AliasTranscripts
	AliasArt         = storage.AliasArt
)

// RequiredAliases must all resolve to a bucket before the pipeline starts.
var RequiredAliases = []string{AliasChunks, AliasMerged, AliasEdited, AliasPodcast, AliasMeta, AliasRawText}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageCfg{
			Driver:       "s3",
			Region:       "auto",
			UsePathStyle: true,
			Buckets: map[string]string{
				AliasChunks:      "podcast-chunks",
				AliasMerged:      "podcast-merged",
				AliasEdited:      "podcast-edited",
				AliasPodcast:     "podcast",
				AliasMeta:        "podcast-meta",
				AliasRawText:     "podcast-rawtext",
				AliasTranscripts: "podcast-transcripts",
				AliasArt:         "podcast-art",
			},
			PublicURLs: map[string]string{},
		},
		Synthesis: SynthesisCfg{
			Provider:          "polly",
			Concurrency:       3,
			MaxAttempts:       5,
			RetryDelay:        1200 * time.Millisecond,
			BackoffMultiplier: 2.1,
			MaxChars:          2800,
			Timeout:           30 * time.Second,
			PartialPolicy:     "degrade",
		},
		Providers: map[string]ProviderCfg{
			"polly": {
				Type:   "polly",
				Voice:  "Brian",
				Engine: "neural",
				Region: "eu-west-2",
			},
			"openai": {
				Type:   "openai",
				Model:  "tts-1-hd",
				Voice:  "onyx",
				APIKey: "${OPENAI_API_KEY}",
			},
			"elevenlabs": {
				Type:   "elevenlabs",
				Model:  "eleven_turbo_v2_5",
				APIKey: "${ELEVENLABS_API_KEY}",
				Format: "mp3_44100_128",
			},
			"google": {
				Type:     "google",
				Voice:    "en-GB-Neural2-B",
				Language: "en-GB",
			},
		},
		Chunking: ChunkingCfg{
			MaxChars: 2800,
		},
		Merge: MergeCfg{
			BatchSize:     2,
			FetchTimeout:  30 * time.Second,
			FetchAttempts: 3,
			FetchDelay:    2 * time.Second,
			CleanupDelay:  2 * time.Minute,
		},
		Effects: EffectsCfg{
			FadeSeconds:  3.0,
			StageTimeout: 15 * time.Minute,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
		},
		Mixdown: MixdownCfg{
			Timeout:      3 * time.Minute,
			MetaAttempts: 3,
			MetaDelay:    time.Second,
		},
		Executor: ExecutorCfg{
			Workers:   1,
			QueueSize: 8,
		},
		Logging: LoggingCfg{
			Level:  "info",
			Format: "auto",
		},
		Heartbeat: 220 * time.Second,
	}
}

// Provider returns the named provider config with ${ENV_VAR} references resolved.
func (c *Config) Provider(name string) (ProviderCfg, bool) {
	p, ok := c.Providers[name]
	if !ok {
		return ProviderCfg{}, false
	}
	p.APIKey = ResolveEnvVars(p.APIKey)
	if p.Type == "" {
		p.Type = name
	}
	return p, true
}

const redactedValue = "********"

// Redacted returns a copy with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Storage.AccessKeyID != "" {
		out.Storage.AccessKeyID = redactedValue
	}
	if out.Storage.SecretAccessKey != "" {
		out.Storage.SecretAccessKey = redactedValue
	}
	out.Providers = make(map[string]ProviderCfg, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" {
			p.APIKey = redactedValue
		}
		out.Providers[name] = p
	}
	return &out
}
