// Package episode owns the per-session metadata document. Writers merge
// their fields into the stored document rather than replacing it.
package episode

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultTitle         = "Untitled Episode"
	DefaultEpisodeNumber = 1
)

// ErrInvalidDocument is returned for stored metadata that is not a JSON object.
var ErrInvalidDocument = errors.New("metadata is not a JSON object")

//go:embed schema.json
var schemaJSON []byte

type SessionRef struct {
	SessionID string `json:"sessionId"`
	Date      string `json:"date"`
}

// Metadata is the typed view of the document. Fields not listed here are
// carried through Merge untouched.
type Metadata struct {
	Session       SessionRef `json:"session"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Keywords      []string   `json:"keywords"`
	ArtworkPrompt string     `json:"artworkPrompt"`
	EpisodeNumber int        `json:"episodeNumber"`
	CreatedAt     string     `json:"createdAt"`
	UpdatedAt     string     `json:"updatedAt"`
	ArtURL        string     `json:"artUrl"`
	TranscriptURL string     `json:"transcriptUrl"`
	PodcastURL    string     `json:"podcastUrl"`
	Duration      *float64   `json:"duration"`
	FileSize      int64      `json:"fileSize"`
	PubDate       string     `json:"pubDate"`
}

// Key is the metadata object key for a session.
func Key(sessionID string) string { return sessionID + ".json" }

// Parse decodes a stored document.
func Parse(data []byte) (*Metadata, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, ErrInvalidDocument
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &m, nil
}

// Update holds the fields recomputed at assembly time.
type Update struct {
	SessionID     string
	ArtURL        string
	TranscriptURL string
	PodcastURL    string
	// Duration is nil when the probe failed.
	Duration *float64
	FileSize int64
	// Now stamps updatedAt and, for a new document, the session date.
	Now time.Time
}

// Merge applies u to the existing document. Unknown and non-recomputed
// fields are preserved, createdAt and session.date keep their first value,
// and applying the same update twice yields the same bytes. A nil or empty
// existing document starts from defaults.
func Merge(existing []byte, u Update) ([]byte, error) {
	doc := bytes.TrimSpace(existing)
	if len(doc) == 0 {
		doc = []byte("{}")
	}
	if !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject() {
		return nil, ErrInvalidDocument
	}
	if u.Now.IsZero() {
		u.Now = time.Now()
	}
	now := u.Now.UTC().Format(time.RFC3339Nano)

	cur := gjson.ParseBytes(doc)
	sessionDate := firstString(cur, "session.date", "createdAt")
	if sessionDate == "" {
		sessionDate = now
	}
	createdAt := firstString(cur, "createdAt")
	if createdAt == "" {
		createdAt = sessionDate
	}

	sets := []field{
		{"session.sessionId", u.SessionID},
		{"session.date", sessionDate},
		{"createdAt", createdAt},
		{"updatedAt", now},
		{"artUrl", u.ArtURL},
		{"transcriptUrl", u.TranscriptURL},
		{"podcastUrl", u.PodcastURL},
		{"fileSize", u.FileSize},
		{"pubDate", PubDate(sessionDate, u.Now)},
	}
	if u.Duration != nil {
		sets = append(sets, field{"duration", *u.Duration})
	}

	var err error
	out := append([]byte(nil), doc...)
	for _, s := range sets {
		if out, err = sjson.SetBytes(out, s.path, s.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", s.path, err)
		}
	}
	if u.Duration == nil {
		if out, err = sjson.SetRawBytes(out, "duration", []byte("null")); err != nil {
			return nil, fmt.Errorf("set duration: %w", err)
		}
	}

	defaults := []struct {
		path string
		raw  string
		keep func(gjson.Result) bool
	}{
		{"title", `"` + DefaultTitle + `"`, func(r gjson.Result) bool { return r.Type == gjson.String && r.Str != "" }},
		{"description", `""`, func(r gjson.Result) bool { return r.Type == gjson.String }},
		{"keywords", `[]`, func(r gjson.Result) bool { return r.IsArray() }},
		{"artworkPrompt", `""`, func(r gjson.Result) bool { return r.Type == gjson.String }},
		{"episodeNumber", fmt.Sprint(DefaultEpisodeNumber), func(r gjson.Result) bool { return r.Type == gjson.Number && r.Int() >= 1 }},
	}
	for _, d := range defaults {
		if d.keep(cur.Get(d.path)) {
			continue
		}
		if out, err = sjson.SetRawBytes(out, d.path, []byte(d.raw)); err != nil {
			return nil, fmt.Errorf("set %s: %w", d.path, err)
		}
	}

	return []byte(gjson.GetBytes(out, "@pretty").Raw), nil
}

type field struct {
	path  string
	value any
}

// PubDate renders the session date as an RFC1123 GMT string. Unparseable
// dates fall back to fallback.
func PubDate(sessionDate string, fallback time.Time) string {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, http.TimeFormat, time.RFC1123Z} {
		if t, err := time.Parse(layout, sessionDate); err == nil {
			return t.UTC().Format(http.TimeFormat)
		}
	}
	return fallback.UTC().Format(http.TimeFormat)
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("episode.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to load episode schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("episode.json")
	})
	return schema, schemaErr
}

// Validate checks a document against the episode schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode metadata for validation: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("metadata does not match schema: %w", err)
	}
	return nil
}
