package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a TTSProvider for tests and dry runs.
// Audio is the literal bytes "audio:" + text.
type MockClient struct {
	Latency time.Duration

	// FailFor decides the error for a call; attempt counts from 1 per text.
	FailFor func(text string, attempt int) error

	RPS float64

	requestCount atomic.Int64
	inFlight     atomic.Int32
	peakInFlight atomic.Int32

	mu       sync.Mutex
	attempts map[string]int
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:  5 * time.Millisecond,
		attempts: make(map[string]int),
	}
}

func (c *MockClient) Name() string {
	return MockClientName
}

func (c *MockClient) RequestsPerSecond() float64 {
	return c.RPS
}

func (c *MockClient) MaxConcurrency() int {
	return 0
}

// Generate returns deterministic audio or the configured failure.
func (c *MockClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	c.requestCount.Add(1)

	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peakInFlight.Load()
		if n <= peak || c.peakInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	c.mu.Lock()
	if c.attempts == nil {
		c.attempts = make(map[string]int)
	}
	c.attempts[req.Text]++
	attempt := c.attempts[req.Text]
	c.mu.Unlock()

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		err := wrapTransport(MockClientName, ctx.Err())
		return failedResult(start, len(req.Text), err), err
	}

	if c.FailFor != nil {
		if err := c.FailFor(req.Text, attempt); err != nil {
			return failedResult(start, len(req.Text), err), err
		}
	}

	return &TTSResult{
		Success:       true,
		Audio:         []byte("audio:" + req.Text),
		Format:        "mp3",
		ContentType:   "audio/mpeg",
		CharCount:     len(req.Text),
		ExecutionTime: time.Since(start),
		RequestID:     fmt.Sprintf("mock-%d", c.requestCount.Load()),
	}, nil
}

// RequestCount returns the number of Generate calls.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// PeakInFlight returns the highest observed number of concurrent calls.
func (c *MockClient) PeakInFlight() int {
	return int(c.peakInFlight.Load())
}

// Attempts returns how many times text was submitted.
func (c *MockClient) Attempts(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[text]
}

// ListVoices returns a fixed pair of voices.
func (c *MockClient) ListVoices(context.Context) ([]Voice, error) {
	return []Voice{
		{VoiceID: "mock-narrator", Name: "Narrator"},
		{VoiceID: "mock-host", Name: "Host"},
	}, nil
}

var (
	_ TTSProvider  = (*MockClient)(nil)
	_ VoicesLister = (*MockClient)(nil)
)
