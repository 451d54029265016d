package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Storage.Endpoint = "https://account.r2.cloudflarestorage.com"
	cfg.Storage.AccessKeyID = "key"
	cfg.Storage.SecretAccessKey = "secret"
	cfg.Storage.PublicURLs[AliasPodcast] = "https://cdn.example.com"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Synthesis.Provider != "polly" {
		t.Errorf("expected default provider polly, got %s", cfg.Synthesis.Provider)
	}
	if cfg.Chunking.MaxChars != 2800 {
		t.Errorf("expected max chars 2800, got %d", cfg.Chunking.MaxChars)
	}
	if cfg.Merge.BatchSize != 2 {
		t.Errorf("expected batch size 2, got %d", cfg.Merge.BatchSize)
	}
	for _, alias := range RequiredAliases {
		if cfg.Storage.Buckets[alias] == "" {
			t.Errorf("expected default bucket for alias %s", alias)
		}
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_Provider(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-123")

	cfg := &Config{
		Providers: map[string]ProviderCfg{
			"openai": {Model: "tts-1", APIKey: "${TEST_OPENAI_KEY}"},
		},
	}

	p, ok := cfg.Provider("openai")
	if !ok {
		t.Fatal("expected provider openai")
	}
	if p.APIKey != "sk-123" {
		t.Errorf("expected resolved key, got %s", p.APIKey)
	}
	if p.Type != "openai" {
		t.Errorf("expected type to default to name, got %s", p.Type)
	}
	if _, ok := cfg.Provider("missing"); ok {
		t.Error("expected missing provider to be absent")
	}
}

func TestNewManager(t *testing.T) {
	t.Run("partial file merges over defaults", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		content := `
synthesis:
  concurrency: 7
  retry_delay: 500ms
storage:
  buckets:
    podcast: my-podcast
`
		if err := os.WriteFile(configFile, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}

		cfg := mgr.Get()
		if cfg.Synthesis.Concurrency != 7 {
			t.Errorf("expected concurrency 7, got %d", cfg.Synthesis.Concurrency)
		}
		if cfg.Synthesis.RetryDelay != 500*time.Millisecond {
			t.Errorf("expected retry delay 500ms, got %s", cfg.Synthesis.RetryDelay)
		}
		if cfg.Synthesis.MaxAttempts != 5 {
			t.Errorf("expected default max attempts 5, got %d", cfg.Synthesis.MaxAttempts)
		}
		if cfg.Storage.Buckets[AliasPodcast] != "my-podcast" {
			t.Errorf("expected overridden podcast bucket, got %s", cfg.Storage.Buckets[AliasPodcast])
		}
		if cfg.Storage.Buckets[AliasChunks] != "podcast-chunks" {
			t.Errorf("expected default chunks bucket, got %s", cfg.Storage.Buckets[AliasChunks])
		}
		if cfg.Heartbeat != 220*time.Second {
			t.Errorf("expected default heartbeat, got %s", cfg.Heartbeat)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("merge:\n  batch_size: 3\n"), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Setenv("STUDIO_MERGE_BATCH_SIZE", "4")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		if got := mgr.Get().Merge.BatchSize; got != 4 {
			t.Errorf("expected batch size 4 from env, got %d", got)
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		configFile := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configFile, []byte("synthesis: [unclosed"), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		if _, err := NewManager(configFile); err == nil {
			t.Fatal("expected error for malformed config")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte("logging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr := &Manager{config: DefaultConfig()}
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Synthesis.Concurrency
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})

	t.Run("missing endpoint and credentials fail fast", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Endpoint = ""
		cfg.Storage.SecretAccessKey = ""

		err := cfg.Validate()
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		if !strings.Contains(err.Error(), "storage.endpoint") || !strings.Contains(err.Error(), "credentials") {
			t.Errorf("expected both problems reported, got %v", err)
		}
	})

	t.Run("missing bucket mapping fails", func(t *testing.T) {
		cfg := validConfig()
		delete(cfg.Storage.Buckets, AliasMeta)
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "storage.buckets.meta") {
			t.Fatalf("expected bucket error, got %v", err)
		}
	})

	t.Run("memory driver skips credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Driver = "memory"
		cfg.Storage.Endpoint = ""
		cfg.Storage.AccessKeyID = ""
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})

	t.Run("chunks larger than the provider limit fail", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chunking.MaxChars = 5800
		cfg.Synthesis.MaxChars = 2800
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "chunking.max_chars (5800)") {
			t.Fatalf("expected chunk limit error, got %v", err)
		}
	})

	t.Run("default limits agree", func(t *testing.T) {
		cfg := DefaultConfig()
		if cfg.Chunking.MaxChars > cfg.Synthesis.MaxChars {
			t.Fatalf("chunking.max_chars %d exceeds synthesis.max_chars %d",
				cfg.Chunking.MaxChars, cfg.Synthesis.MaxChars)
		}
	})

	t.Run("unknown partial policy fails", func(t *testing.T) {
		cfg := validConfig()
		cfg.Synthesis.PartialPolicy = "ignore"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestApplySecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplySecrets(Secrets{
		R2Endpoint:        "https://r2.example.com",
		R2AccessKeyID:     "id",
		R2SecretAccessKey: "secret",
		PublicBaseURL:     "https://cdn.example.com",
		IntroURL:          "https://cdn.example.com/intro.mp3",
	})

	if cfg.Storage.Endpoint != "https://r2.example.com" {
		t.Errorf("unexpected endpoint %s", cfg.Storage.Endpoint)
	}
	if cfg.Storage.PublicURLs[AliasPodcast] != "https://cdn.example.com" {
		t.Errorf("unexpected public url %s", cfg.Storage.PublicURLs[AliasPodcast])
	}
	if cfg.Mixdown.IntroURL == "" {
		t.Error("expected intro url from secrets")
	}

	cfg.Storage.Endpoint = "https://from-file.example.com"
	cfg.ApplySecrets(Secrets{R2Endpoint: "https://other.example.com"})
	if cfg.Storage.Endpoint != "https://from-file.example.com" {
		t.Error("secrets must not override values from the config file")
	}
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	if err := os.WriteFile(dotenv, []byte("R2_ENDPOINT=https://dotenv.example.com\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("R2_ACCESS_KEY_ID", "from-env")
	t.Cleanup(func() { os.Unsetenv("R2_ENDPOINT") })

	s, err := LoadSecrets(dotenv)
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}
	if s.R2Endpoint != "https://dotenv.example.com" {
		t.Errorf("expected endpoint from .env, got %q", s.R2Endpoint)
	}
	if s.R2AccessKeyID != "from-env" {
		t.Errorf("expected access key from env, got %q", s.R2AccessKeyID)
	}

	if _, err := LoadSecrets(filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if mgr.Get().Synthesis.BackoffMultiplier != 2.1 {
		t.Errorf("round trip lost backoff multiplier: %v", mgr.Get().Synthesis.BackoffMultiplier)
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Providers["openai"] = ProviderCfg{Type: "openai", APIKey: "sk-live"}

	r := cfg.Redacted()
	if r.Storage.SecretAccessKey == "secret" || r.Storage.AccessKeyID == "key" {
		t.Errorf("storage credentials not masked: %+v", r.Storage)
	}
	if r.Providers["openai"].APIKey == "sk-live" {
		t.Error("provider api key not masked")
	}
	if cfg.Providers["openai"].APIKey != "sk-live" || cfg.Storage.SecretAccessKey != "secret" {
		t.Error("Redacted() modified the original config")
	}
	if r.Providers["polly"].APIKey != "" {
		t.Error("empty api key should stay empty")
	}
}
