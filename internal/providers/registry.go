package providers

import (
	"context"
	"fmt"
	"time"
)

// Config selects and configures one provider.
type Config struct {
	Type            string
	Model           string
	Voice           string
	Engine          string
	Language        string
	Region          string
	Endpoint        string
	APIKey          string
	Format          string
	AccessKeyID     string
	SecretAccessKey string
	RateLimit       float64
	Timeout         time.Duration
}

// New builds the provider named by cfg.Type.
func New(ctx context.Context, cfg Config) (TTSProvider, error) {
	switch cfg.Type {
	case PollyName:
		return NewPollyClient(ctx, PollyConfig{
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			Voice:           cfg.Voice,
			Engine:          cfg.Engine,
			Format:          cfg.Format,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			RateLimit:       cfg.RateLimit,
			Timeout:         cfg.Timeout,
		})
	case OpenAITTSName:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an api key")
		}
		return NewOpenAITTSClient(OpenAITTSConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
			BaseURL:   cfg.Endpoint,
		}), nil
	case ElevenLabsTTSName:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("elevenlabs provider requires an api key")
		}
		return NewElevenLabsTTSClient(ElevenLabsTTSConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Voice:     cfg.Voice,
			Format:    cfg.Format,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
			BaseURL:   cfg.Endpoint,
		}), nil
	case GoogleTTSName:
		return NewGoogleTTSClient(ctx, GoogleTTSConfig{
			Language:  cfg.Language,
			Voice:     cfg.Voice,
			Endpoint:  cfg.Endpoint,
			RateLimit: cfg.RateLimit,
		})
	case MockClientName:
		m := NewMockClient()
		m.RPS = cfg.RateLimit
		return m, nil
	default:
		return nil, fmt.Errorf("unknown tts provider type %q", cfg.Type)
	}
}
