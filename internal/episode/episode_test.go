package episode

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testUpdate() Update {
	d := 912.5
	return Update{
		SessionID:     "TT-20260314-ab12cd34",
		ArtURL:        "https://art.example.com/TT-20260314-ab12cd34.png",
		TranscriptURL: "https://transcripts.example.com/TT-20260314-ab12cd34.txt",
		PodcastURL:    "https://podcast.example.com/TT-20260314-ab12cd34.mp3",
		Duration:      &d,
		FileSize:      14_600_000,
		Now:           testNow,
	}
}

func TestMergeNewDocument(t *testing.T) {
	out, err := Merge(nil, testUpdate())
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if err := Validate(out); err != nil {
		t.Fatalf("Validate() error = %v\n%s", err, out)
	}

	m, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Title != DefaultTitle || m.EpisodeNumber != DefaultEpisodeNumber {
		t.Errorf("defaults = %q / %d", m.Title, m.EpisodeNumber)
	}
	if m.Session.SessionID != "TT-20260314-ab12cd34" {
		t.Errorf("session.sessionId = %q", m.Session.SessionID)
	}
	if m.CreatedAt != "2026-03-14T09:30:00Z" || m.Session.Date != m.CreatedAt {
		t.Errorf("createdAt = %q, session.date = %q", m.CreatedAt, m.Session.Date)
	}
	if m.PubDate != "Sat, 14 Mar 2026 09:30:00 GMT" {
		t.Errorf("pubDate = %q", m.PubDate)
	}
	if m.Duration == nil || *m.Duration != 912.5 || m.FileSize != 14_600_000 {
		t.Errorf("duration = %v, fileSize = %d", m.Duration, m.FileSize)
	}
	if m.Keywords == nil {
		t.Error("keywords missing")
	}
}

func TestMergePreservesFields(t *testing.T) {
	existing := []byte(`{
  "title": "The Tariff Week",
  "description": "Trade, ports and prices.",
  "keywords": ["trade", "tariffs"],
  "episodeNumber": 42,
  "createdAt": "2026-03-10T06:00:00Z",
  "session": {"sessionId": "TT-20260314-ab12cd34", "date": "2026-03-10T06:00:00Z"},
  "rssGuid": "abc-123",
  "nested": {"keep": true},
  "podcastUrl": "https://old.example.com/stale.mp3"
}`)

	out, err := Merge(existing, testUpdate())
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	doc := gjson.ParseBytes(out)
	checks := map[string]string{
		"title":         "The Tariff Week",
		"description":   "Trade, ports and prices.",
		"keywords.1":    "tariffs",
		"episodeNumber": "42",
		"createdAt":     "2026-03-10T06:00:00Z",
		"session.date":  "2026-03-10T06:00:00Z",
		"rssGuid":       "abc-123",
		"nested.keep":   "true",
		"podcastUrl":    "https://podcast.example.com/TT-20260314-ab12cd34.mp3",
		"updatedAt":     "2026-03-14T09:30:00Z",
		"pubDate":       "Tue, 10 Mar 2026 06:00:00 GMT",
	}
	for path, want := range checks {
		if got := doc.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	inputs := map[string][]byte{
		"empty":    nil,
		"existing": []byte(`{"title":"X","custom":[1,2,{"a":"b"}],"episodeNumber":3}`),
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			once, err := Merge(in, testUpdate())
			if err != nil {
				t.Fatalf("Merge() error = %v", err)
			}
			twice, err := Merge(once, testUpdate())
			if err != nil {
				t.Fatalf("Merge() second pass error = %v", err)
			}
			if !bytes.Equal(once, twice) {
				t.Fatalf("Merge() not idempotent:\n%s\n---\n%s", once, twice)
			}
		})
	}
}

func TestMergeCreatedAtKeepsFirstValue(t *testing.T) {
	first, err := Merge(nil, testUpdate())
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	later := testUpdate()
	later.Now = testNow.Add(48 * time.Hour)
	later.Duration = nil
	second, err := Merge(first, later)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	doc := gjson.ParseBytes(second)
	if got := doc.Get("createdAt").String(); got != "2026-03-14T09:30:00Z" {
		t.Errorf("createdAt = %q", got)
	}
	if got := doc.Get("updatedAt").String(); got != "2026-03-16T09:30:00Z" {
		t.Errorf("updatedAt = %q", got)
	}
	if got := doc.Get("duration"); got.Type != gjson.Null {
		t.Errorf("duration = %s, want null", got.Raw)
	}
	if err := Validate(second); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestMergeRejectsNonObject(t *testing.T) {
	for _, in := range []string{"[1,2]", "not json", `"str"`} {
		if _, err := Merge([]byte(in), testUpdate()); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("Merge(%q) error = %v, want ErrInvalidDocument", in, err)
		}
	}
}

func TestValidate(t *testing.T) {
	good, err := Merge(nil, testUpdate())
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	tests := []struct {
		name string
		doc  string
	}{
		{"missing podcastUrl", strings.Replace(string(good), `"podcastUrl"`, `"podcastURL"`, 1)},
		{"zero episode", strings.Replace(string(good), `"episodeNumber": 1`, `"episodeNumber": 0`, 1)},
		{"not json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate([]byte(tt.doc)); err == nil {
				t.Fatalf("Validate() error = nil for\n%s", tt.doc)
			}
		})
	}
}

func TestPubDate(t *testing.T) {
	fallback := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in, want string
	}{
		{"2026-03-10T06:00:00.123Z", "Tue, 10 Mar 2026 06:00:00 GMT"},
		{"2026-03-10T08:00:00+02:00", "Tue, 10 Mar 2026 06:00:00 GMT"},
		{"Tue, 10 Mar 2026 06:00:00 GMT", "Tue, 10 Mar 2026 06:00:00 GMT"},
		{"last tuesday", "Fri, 02 Jan 2026 03:04:05 GMT"},
	}
	for _, tt := range tests {
		if got := PubDate(tt.in, fallback); got != tt.want {
			t.Errorf("PubDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
