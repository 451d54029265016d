// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/studio/internal/storage"
)

// TestingT is the subset of testing.T the fixtures need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Helper()
}

// Aliases returns a full alias table with public URLs under example.com.
func Aliases() storage.Aliases {
	names := []string{
		storage.AliasChunks,
		storage.AliasMerged,
		storage.AliasEdited,
		storage.AliasPodcast,
		storage.AliasMeta,
		storage.AliasRawText,
		storage.AliasTranscripts,
		storage.AliasArt,
	}
	a := storage.Aliases{
		Buckets:    make(map[string]string, len(names)),
		PublicURLs: make(map[string]string, len(names)),
	}
	for _, name := range names {
		a.Buckets[name] = "test-" + name
		a.PublicURLs[name] = "https://" + name + ".example.com"
	}
	return a
}

// MemoryStore returns an empty store over Aliases.
func MemoryStore(t TestingT) *storage.MemoryStore {
	t.Helper()
	return storage.NewMemoryStore(Aliases())
}

// Logger discards output unless STUDIO_TEST_LOG is set.
func Logger(t TestingT) *slog.Logger {
	t.Helper()
	var w io.Writer = io.Discard
	if os.Getenv("STUDIO_TEST_LOG") != "" {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// WriteFile writes data under the test's temp dir and returns the path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
