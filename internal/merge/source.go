package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/studio/internal/storage"
)

// Source is one merge input: a remote URL, a local file, or a store object.
type Source struct {
	URL   string
	Path  string
	Alias string
	Key   string
}

func URLSource(u string) Source { return Source{URL: u} }

func FileSource(path string) Source { return Source{Path: path} }

func ObjectSource(alias, key string) Source { return Source{Alias: alias, Key: key} }

// ParseSource accepts an http(s) URL, an "alias:key" reference, or a path.
func ParseSource(s string) Source {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return URLSource(s)
	}
	if alias, key, ok := strings.Cut(s, ":"); ok && alias != "" && key != "" && !strings.ContainsAny(alias, `/\.`) {
		return ObjectSource(alias, key)
	}
	return FileSource(s)
}

func (s Source) String() string {
	switch {
	case s.URL != "":
		return s.URL
	case s.Path != "":
		return s.Path
	default:
		return s.Alias + ":" + s.Key
	}
}

// ErrSourceNotFound marks a source that does not exist. It is not retried.
var ErrSourceNotFound = errors.New("source not found")

type LoaderConfig struct {
	Store      storage.Store
	HTTPClient *http.Client
	Attempts   int
	Delay      time.Duration
	Multiplier float64
	Timeout    time.Duration
}

// Loader materializes sources into local files with bounded retry.
type Loader struct {
	store      storage.Store
	client     *http.Client
	attempts   int
	delay      time.Duration
	multiplier float64
	timeout    time.Duration
}

func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Loader{
		store:      cfg.Store,
		client:     cfg.HTTPClient,
		attempts:   cfg.Attempts,
		delay:      cfg.Delay,
		multiplier: cfg.Multiplier,
		timeout:    cfg.Timeout,
	}
}

// Fetch writes src to dest and returns the local path. Local files are
// validated and returned as-is.
func (l *Loader) Fetch(ctx context.Context, src Source, dest string) (string, error) {
	if src.Path != "" {
		attempt := 0
		err := retry.Do(
			func() error {
				attempt++
				err := validateLocal(src.Path)
				if errors.Is(err, fs.ErrNotExist) {
					return retry.Unrecoverable(fmt.Errorf("%w: %w", ErrSourceNotFound, err))
				}
				return err
			},
			l.options(ctx, &attempt)...,
		)
		if err != nil {
			return "", fmt.Errorf("load %s: %w", src, err)
		}
		return src.Path, nil
	}

	attempt := 0
	data, err := retry.DoWithData(
		func() ([]byte, error) {
			attempt++
			fetchCtx, cancel := context.WithTimeout(ctx, l.timeout)
			defer cancel()
			if src.URL != "" {
				return l.download(fetchCtx, src.URL)
			}
			if l.store == nil {
				return nil, retry.Unrecoverable(fmt.Errorf("no store configured for %s", src))
			}
			b, err := l.store.GetBytes(fetchCtx, src.Alias, src.Key)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				return nil, retry.Unrecoverable(fmt.Errorf("%w: %w", ErrSourceNotFound, err))
			case errors.Is(err, storage.ErrUnknownAlias):
				return nil, retry.Unrecoverable(err)
			}
			return b, err
		},
		l.options(ctx, &attempt)...,
	)
	if err != nil {
		return "", fmt.Errorf("load %s after %d attempts: %w", src, attempt, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("load %s: empty body", src)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, nil
}

func (l *Loader) options(ctx context.Context, attempt *int) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(l.attempts)),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(float64(l.delay) * math.Pow(l.multiplier, float64(*attempt-1)))
		}),
		retry.LastErrorOnly(true),
	}
}

func (l *Loader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Unrecoverable(fmt.Errorf("%w: HTTP 404", ErrSourceNotFound))
	case resp.StatusCode == http.StatusForbidden:
		return nil, retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func validateLocal(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}
