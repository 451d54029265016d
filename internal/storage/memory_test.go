package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(testAliases())

	if err := m.Put(ctx, "chunks", "s1/chunk-002.mp3", []byte("b"), "audio/mpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := m.Put(ctx, "chunks", "s1/chunk-001.mp3", []byte("a"), "audio/mpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := m.Put(ctx, "chunks", "s2/chunk-001.mp3", []byte("c"), "audio/mpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	keys, err := m.List(ctx, "chunks", "s1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "s1/chunk-001.mp3" || keys[1] != "s1/chunk-002.mp3" {
		t.Fatalf("List() = %v", keys)
	}

	got, err := m.GetText(ctx, "chunks", "s1/chunk-001.mp3")
	if err != nil || got != "a" {
		t.Fatalf("GetText() = %q, %v", got, err)
	}

	if err := m.Delete(ctx, "chunks", "s1/chunk-001.mp3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.GetBytes(ctx, "chunks", "s1/chunk-001.mp3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetBytes() after delete error = %v, want ErrNotFound", err)
	}

	if err := m.Put(ctx, "rss", "feed.xml", nil, ""); !errors.Is(err, ErrUnknownAlias) {
		t.Fatalf("Put(rss) error = %v, want ErrUnknownAlias", err)
	}
}

func TestMemoryStoreCopiesBodies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(testAliases())

	body := []byte("abc")
	if err := m.Put(ctx, "merged", "k", body, ""); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	body[0] = 'x'

	got, _ := m.GetBytes(ctx, "merged", "k")
	if string(got) != "abc" {
		t.Fatalf("stored body was aliased: %q", got)
	}
}
