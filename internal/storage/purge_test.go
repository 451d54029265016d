package storage

import (
	"context"
	"slices"
	"testing"
)

func TestPurgeSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(testAliases())

	const sid = "TT-20250101-abcd1234"
	puts := []struct{ alias, key string }{
		{"chunks", sid + "/chunk-001.mp3"},
		{"chunks", sid + "/chunk-002.mp3"},
		{"rawtext", sid + "/chunk-001.txt"},
		{"merged", sid + ".mp3"},
		{"edited", sid + "_edited.mp3"},
		{"chunks", "TT-20250102-ffff0000/chunk-001.mp3"},
		{"podcast", sid + ".mp3"},
	}
	for _, p := range puts {
		if err := m.Put(ctx, p.alias, p.key, []byte("x"), ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	n, err := PurgeSession(ctx, m, sid, nil)
	if err != nil {
		t.Fatalf("PurgeSession() error = %v", err)
	}
	if n != 5 {
		t.Fatalf("PurgeSession() deleted %d, want 5", n)
	}
	if m.Len("chunks") != 1 {
		t.Fatalf("other session's chunk was deleted")
	}
	if m.Len("podcast") != 1 {
		t.Fatalf("published podcast must survive a purge")
	}
}

func TestPurgeSessionKeepsNeighbouringIDs(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(testAliases())

	puts := []struct{ alias, key string }{
		{"chunks", "ep1/chunk-001.mp3"},
		{"chunks", "ep12/chunk-001.mp3"},
		{"chunks", "xep1/chunk-001.mp3"},
		{"rawtext", "ep1/chunk-001.txt"},
		{"rawtext", "ep12/chunk-001.txt"},
		{"merged", "ep1.mp3"},
		{"merged", "ep12.mp3"},
		{"edited", "ep1_edited.mp3"},
		{"edited", "ep12_edited.mp3"},
	}
	for _, p := range puts {
		if err := m.Put(ctx, p.alias, p.key, []byte("x"), ""); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	n, err := PurgeSession(ctx, m, "ep1", nil)
	if err != nil {
		t.Fatalf("PurgeSession() error = %v", err)
	}
	if n != 4 {
		t.Fatalf("PurgeSession() deleted %d, want 4", n)
	}

	want := map[string][]string{
		"chunks":  {"ep12/chunk-001.mp3", "xep1/chunk-001.mp3"},
		"rawtext": {"ep12/chunk-001.txt"},
		"merged":  {"ep12.mp3"},
		"edited":  {"ep12_edited.mp3"},
	}
	for alias, keys := range want {
		got, err := m.List(ctx, alias, "")
		if err != nil {
			t.Fatalf("List(%s) error = %v", alias, err)
		}
		if !slices.Equal(got, keys) {
			t.Errorf("List(%s) = %v, want %v", alias, got, keys)
		}
	}
}

func TestPurgeSessionRequiresID(t *testing.T) {
	if _, err := PurgeSession(context.Background(), NewMemoryStore(testAliases()), "", nil); err == nil {
		t.Fatal("expected error for empty session id")
	}
}
