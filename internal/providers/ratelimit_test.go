package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterNilIsNoop(t *testing.T) {
	rl := NewRateLimiter(0)
	if rl != nil {
		t.Fatal("expected nil limiter for rps=0")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	rl.Record429(time.Second)
	if st := rl.Status(); st.RPS != 0 {
		t.Fatalf("Status() = %+v", st)
	}
}

func TestRateLimiterBurstThenWait(t *testing.T) {
	rl := NewRateLimiter(20)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected to wait for a token, waited %v", elapsed)
	}
	if st := rl.Status(); st.TotalConsumed != 21 {
		t.Fatalf("TotalConsumed = %d, want 21", st.TotalConsumed)
	}
}

func TestRateLimiterRecord429BlocksUntilCancel(t *testing.T) {
	rl := NewRateLimiter(100)
	rl.Record429(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Fatal("expected context error after Record429")
	}
	if rl.Status().Last429Time.IsZero() {
		t.Fatal("expected Last429Time to be set")
	}
}
