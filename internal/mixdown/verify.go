package mixdown

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackzampolin/studio/internal/episode"
)

// Check is the outcome of one HEAD request against a published URL.
type Check struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Status int    `json:"status,omitempty" yaml:"status,omitempty"`
	Err    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (c Check) OK() bool {
	return c.Err == "" && c.Status >= 200 && c.Status < 300
}

// Verify HEADs the podcast, art and transcript URLs of a published episode.
// Empty URLs are reported as failures.
func Verify(ctx context.Context, client *http.Client, m *episode.Metadata) []Check {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	targets := []struct{ name, url string }{
		{"podcast", m.PodcastURL},
		{"art", m.ArtURL},
		{"transcript", m.TranscriptURL},
	}

	checks := make([]Check, 0, len(targets))
	for _, t := range targets {
		c := Check{Name: t.name, URL: t.url}
		if t.url == "" {
			c.Err = "no url recorded"
			checks = append(checks, c)
			continue
		}
		status, err := head(ctx, client, t.url)
		c.Status = status
		if err != nil {
			c.Err = err.Error()
		} else if !c.OK() {
			c.Err = fmt.Sprintf("HTTP %d", status)
		}
		checks = append(checks, c)
	}
	return checks
}

func head(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
