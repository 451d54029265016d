package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := OpenLedger(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerUpsertGet(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := Record{ID: "s1", State: StateSynthesizing, CreatedAt: created, UpdatedAt: created, Chunks: 7}
	if err := l.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rec.State = StateDone
	rec.Segments = 6
	rec.Failed = 1
	rec.CreatedAt = created.Add(time.Hour)
	rec.UpdatedAt = created.Add(2 * time.Hour)
	rec.PodcastURL = "https://cdn.example.com/s1.mp3"
	if err := l.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := l.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateDone || got.Segments != 6 || got.Failed != 1 || got.PodcastURL != rec.PodcastURL {
		t.Fatalf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v, want first value %v", got.CreatedAt, created)
	}

	if _, err := l.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestLedgerList(t *testing.T) {
	ctx := context.Background()
	l := openTestLedger(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		if err := l.Upsert(ctx, Record{ID: id, State: StateDone, CreatedAt: ts, UpdatedAt: ts}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	recs, err := l.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "c" || recs[1].ID != "b" {
		t.Fatalf("List() = %+v", recs)
	}
}

func TestLedgerReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	l, err := OpenLedger(ctx, path)
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	if err := l.Upsert(ctx, Record{ID: "s1", State: StateFailed, Error: "boom"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	_ = l.Close()

	l, err = OpenLedger(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer l.Close()
	got, err := l.Get(ctx, "s1")
	if err != nil || got.Error != "boom" {
		t.Fatalf("Get() = %+v, %v", got, err)
	}
}
