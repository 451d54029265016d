package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks everything the pipeline needs before it accepts work.
// All problems are reported together.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Storage.Driver {
	case "s3":
		if c.Storage.Endpoint == "" {
			add("storage.endpoint is required")
		}
		if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			add("storage credentials are required")
		}
	case "memory":
	default:
		add("storage.driver %q is not supported", c.Storage.Driver)
	}
	for _, alias := range RequiredAliases {
		if strings.TrimSpace(c.Storage.Buckets[alias]) == "" {
			add("storage.buckets.%s is required", alias)
		}
	}
	if c.Storage.PublicURLs[AliasPodcast] == "" {
		add("storage.public_urls.%s is required", AliasPodcast)
	}

	if _, ok := c.Provider(c.Synthesis.Provider); !ok {
		add("synthesis.provider %q has no providers entry", c.Synthesis.Provider)
	}
	if c.Synthesis.Concurrency < 1 {
		add("synthesis.concurrency must be at least 1")
	}
	if c.Synthesis.MaxAttempts < 1 {
		add("synthesis.max_attempts must be at least 1")
	}
	if c.Synthesis.BackoffMultiplier < 1 {
		add("synthesis.backoff_multiplier must be at least 1")
	}
	switch c.Synthesis.PartialPolicy {
	case "degrade", "abort":
	default:
		add("synthesis.partial_policy must be degrade or abort")
	}
	if c.Chunking.MaxChars < 16 {
		add("chunking.max_chars must be at least 16")
	}
	if c.Synthesis.MaxChars < 16 {
		add("synthesis.max_chars must be at least 16")
	}
	// Chunks are sized for the provider; a larger chunk would be cut short.
	if c.Chunking.MaxChars > c.Synthesis.MaxChars {
		add("chunking.max_chars (%d) must not exceed synthesis.max_chars (%d)",
			c.Chunking.MaxChars, c.Synthesis.MaxChars)
	}
	if c.Merge.BatchSize < 2 {
		add("merge.batch_size must be at least 2")
	}
	if c.Effects.FadeSeconds < 0 {
		add("effects.fade_seconds must not be negative")
	}
	if c.Executor.Workers < 1 || c.Executor.QueueSize < 1 {
		add("executor.workers and executor.queue_size must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
