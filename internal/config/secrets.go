package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Secrets are credentials that never live in the config file.
type Secrets struct {
	R2Endpoint        string `env:"R2_ENDPOINT"`
	R2Region          string `env:"R2_REGION"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	PublicBaseURL     string `env:"R2_PUBLIC_BASE_URL_PODCAST"`
	IntroURL          string `env:"PODCAST_INTRO_URL"`
	OutroURL          string `env:"PODCAST_OUTRO_URL"`
}

// LoadSecrets reads an optional .env file and parses secrets from the environment.
// Variables already set in the process environment win over .env entries.
func LoadSecrets(dotenvFiles ...string) (Secrets, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Secrets{}, fmt.Errorf("failed to load .env: %w", err)
	}

	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return s, nil
}

// ApplySecrets fills storage and mixdown fields the config file left empty.
func (c *Config) ApplySecrets(s Secrets) {
	if c.Storage.Endpoint == "" {
		c.Storage.Endpoint = s.R2Endpoint
	}
	if s.R2Region != "" && (c.Storage.Region == "" || c.Storage.Region == "auto") {
		c.Storage.Region = s.R2Region
	}
	if c.Storage.AccessKeyID == "" {
		c.Storage.AccessKeyID = s.R2AccessKeyID
	}
	if c.Storage.SecretAccessKey == "" {
		c.Storage.SecretAccessKey = s.R2SecretAccessKey
	}
	if s.PublicBaseURL != "" {
		if c.Storage.PublicURLs == nil {
			c.Storage.PublicURLs = map[string]string{}
		}
		if c.Storage.PublicURLs[AliasPodcast] == "" {
			c.Storage.PublicURLs[AliasPodcast] = s.PublicBaseURL
		}
	}
	if c.Mixdown.IntroURL == "" {
		c.Mixdown.IntroURL = s.IntroURL
	}
	if c.Mixdown.OutroURL == "" {
		c.Mixdown.OutroURL = s.OutroURL
	}
}
