package mixdown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jackzampolin/studio/internal/episode"
	"github.com/jackzampolin/studio/internal/session"
	"github.com/jackzampolin/studio/internal/storage"
	"github.com/jackzampolin/studio/internal/testutil"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// flakyStore fails the first getFails GetBytes calls on the meta alias.
type flakyStore struct {
	*storage.MemoryStore
	getFails atomic.Int32
	gets     atomic.Int32
}

func (f *flakyStore) GetBytes(ctx context.Context, alias, key string) ([]byte, error) {
	if alias == storage.AliasMeta {
		f.gets.Add(1)
		if f.getFails.Add(-1) >= 0 {
			return nil, errors.New("read tcp: connection reset by peer")
		}
	}
	return f.MemoryStore.GetBytes(ctx, alias, key)
}

type fixture struct {
	store   *flakyStore
	fa      *testutil.FakeAudio
	scratch string
	edited  string
	sess    *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sess, err := session.New("TT-20260314-ab12cd34", testNow)
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	return &fixture{
		store:   &flakyStore{MemoryStore: testutil.MemoryStore(t)},
		fa:      &testutil.FakeAudio{Seconds: 912.3456},
		scratch: t.TempDir(),
		edited:  testutil.WriteFile(t, t.TempDir(), "edited.mp3", []byte("[main]")),
		sess:    sess,
	}
}

func (f *fixture) assembler(t *testing.T, mutate func(*Config)) *Assembler {
	t.Helper()
	cfg := Config{
		Audio:       f.fa,
		Store:       f.store,
		ScratchRoot: f.scratch,
		MetaDelay:   time.Millisecond,
		Now:         func() time.Time { return testNow },
		Logger:      testutil.Logger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestAssembleWithBumpers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_ = f.store.Put(ctx, storage.AliasArt, "bumpers/intro.mp3", []byte("[intro]"), "audio/mpeg")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[outro]"))
	}))
	defer srv.Close()

	a := f.assembler(t, func(c *Config) {
		c.Intro = "art:bumpers/intro.mp3"
		c.Outro = srv.URL + "/outro.mp3"
		c.ArtBaseURL = "https://img.example.com/covers/"
	})

	res, err := a.Assemble(ctx, f.sess, f.edited)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if !res.Intro || !res.Outro {
		t.Errorf("Intro = %v, Outro = %v", res.Intro, res.Outro)
	}

	got, _ := f.store.GetText(ctx, storage.AliasPodcast, "TT-20260314-ab12cd34.mp3")
	if got != "[intro][main][outro]" {
		t.Fatalf("episode = %q", got)
	}
	if res.URL != "https://podcast.example.com/TT-20260314-ab12cd34.mp3" {
		t.Errorf("URL = %q", res.URL)
	}

	meta, err := f.store.GetBytes(ctx, storage.AliasMeta, "TT-20260314-ab12cd34.json")
	if err != nil {
		t.Fatalf("metadata missing: %v", err)
	}
	doc := gjson.ParseBytes(meta)
	checks := map[string]string{
		"artUrl":        "https://img.example.com/covers/TT-20260314-ab12cd34.png",
		"transcriptUrl": "https://transcripts.example.com/TT-20260314-ab12cd34.txt",
		"podcastUrl":    res.URL,
		"fileSize":      "20",
		"duration":      "912.346",
		"title":         episode.DefaultTitle,
	}
	for path, want := range checks {
		if got := doc.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	entries, _ := os.ReadDir(filepath.Join(f.scratch, f.sess.ID))
	if len(entries) != 0 {
		t.Errorf("scratch not cleaned: %d entries", len(entries))
	}
}

func TestAssembleMetadataFetchRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := `{"title":"The Tariff Week","episodeNumber":7,"createdAt":"2026-03-10T06:00:00Z","rssGuid":"g-1"}`
	_ = f.store.Put(ctx, storage.AliasMeta, "TT-20260314-ab12cd34.json", []byte(existing), "application/json")
	f.store.getFails.Store(1)

	if _, err := f.assembler(t, nil).Assemble(ctx, f.sess, f.edited); err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if n := f.store.gets.Load(); n != 2 {
		t.Errorf("metadata gets = %d, want 2", n)
	}

	meta, _ := f.store.GetBytes(ctx, storage.AliasMeta, "TT-20260314-ab12cd34.json")
	doc := gjson.ParseBytes(meta)
	if doc.Get("title").String() != "The Tariff Week" || doc.Get("episodeNumber").Int() != 7 {
		t.Errorf("preserved fields lost:\n%s", meta)
	}
	if doc.Get("rssGuid").String() != "g-1" {
		t.Errorf("unknown field lost:\n%s", meta)
	}
	if doc.Get("pubDate").String() != "Tue, 10 Mar 2026 06:00:00 GMT" {
		t.Errorf("pubDate = %q", doc.Get("pubDate").String())
	}
}

func TestAssembleMetadataFetchGivesUp(t *testing.T) {
	f := newFixture(t)
	f.store.getFails.Store(10)

	_, err := f.assembler(t, nil).Assemble(context.Background(), f.sess, f.edited)
	if err == nil {
		t.Fatal("Assemble() error = nil")
	}
	if n := f.store.gets.Load(); n != 3 {
		t.Errorf("metadata gets = %d, want 3", n)
	}
}

func TestAssembleMissingBumpersAreSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.assembler(t, func(c *Config) {
		c.Intro = "art:bumpers/missing.mp3"
		c.Outro = filepath.Join(t.TempDir(), "missing.mp3")
	})

	res, err := a.Assemble(ctx, f.sess, f.edited)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.Intro || res.Outro {
		t.Errorf("Intro = %v, Outro = %v", res.Intro, res.Outro)
	}
	got, _ := f.store.GetText(ctx, storage.AliasPodcast, res.Key)
	if got != "[main]" {
		t.Fatalf("episode = %q", got)
	}
}

func TestAssembleNullDurationWhenProbeFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fa.DurationFor = func(string) (float64, error) { return 0, errors.New("ffprobe exited 1") }

	res, err := f.assembler(t, nil).Assemble(ctx, f.sess, f.edited)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.Duration != nil {
		t.Errorf("Duration = %v", *res.Duration)
	}
	meta, _ := f.store.GetBytes(ctx, storage.AliasMeta, res.MetaKey)
	if d := gjson.GetBytes(meta, "duration"); d.Type != gjson.Null {
		t.Errorf("duration = %s", d.Raw)
	}
}

func TestAssembleConcatFailureCleansScratch(t *testing.T) {
	f := newFixture(t)
	f.fa.ConcatErr = func([]string) error { return errors.New("ffmpeg timed out") }

	if _, err := f.assembler(t, nil).Assemble(context.Background(), f.sess, f.edited); err == nil {
		t.Fatal("Assemble() error = nil")
	}
	if f.store.Len(storage.AliasPodcast) != 0 {
		t.Error("episode uploaded after concat failure")
	}
	entries, _ := os.ReadDir(filepath.Join(f.scratch, f.sess.ID))
	if len(entries) != 0 {
		t.Errorf("scratch not cleaned: %d entries", len(entries))
	}
}
