package merge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/studio/internal/testutil"
)

func TestJanitorDeletesAfterDelay(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.mp3", []byte("a"))
	b := testutil.WriteFile(t, dir, "b.mp3", []byte("b"))

	j := NewJanitor(10*time.Millisecond, testutil.Logger(t))
	j.Schedule(a, b, filepath.Join(dir, "never-existed.mp3"))

	deadline := time.Now().Add(2 * time.Second)
	for j.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if j.Pending() != 0 {
		t.Fatal("timer did not fire")
	}
	for _, p := range []string{a, b} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}
}

func TestJanitorZeroDelayDeletesNow(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "a.mp3", []byte("a"))

	NewJanitor(0, nil).Schedule(a)
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Fatalf("file not removed: %v", err)
	}
}
