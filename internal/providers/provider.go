package providers

import (
	"context"
	"time"
)

// DefaultMaxConcurrency is used when a provider does not advertise a limit.
const DefaultMaxConcurrency = 3

// TTSProvider converts text to audio.
// Implementations map provider failures onto *SynthesisError so callers can
// decide retryability without inspecting provider-specific messages.
type TTSProvider interface {
	// Name returns the provider identifier (e.g., "polly", "openai").
	Name() string

	// Generate synthesizes one request into a single audio payload.
	Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error)

	// RequestsPerSecond returns the configured rate limit (0 = unlimited).
	RequestsPerSecond() float64

	// MaxConcurrency returns the provider's in-flight ceiling (0 = no opinion).
	MaxConcurrency() int
}

// VoicesLister is implemented by providers that can enumerate voices.
type VoicesLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// TTSRequest is one synthesis call.
type TTSRequest struct {
	Text         string
	Voice        string // provider default when empty
	Format       string // "mp3" when empty
	Instructions string // only honoured by instruction-capable models
}

// TTSResult is the outcome of one synthesis call.
type TTSResult struct {
	Audio         []byte        `json:"-"`
	Format        string        `json:"format"`
	ContentType   string        `json:"content_type"`
	SampleRate    int           `json:"sample_rate,omitempty"`
	DurationMS    int           `json:"duration_ms,omitempty"` // estimate when the provider does not report it
	CharCount     int           `json:"char_count"`
	CostUSD       float64       `json:"cost_usd"`
	ExecutionTime time.Duration `json:"execution_time"`
	RequestID     string        `json:"request_id,omitempty"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Voice describes a selectable voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func failedResult(start time.Time, charCount int, err error) *TTSResult {
	return &TTSResult{
		Success:       false,
		ErrorMessage:  err.Error(),
		CharCount:     charCount,
		ExecutionTime: time.Since(start),
	}
}

// estimateDurationMS assumes ~150 words per minute at ~5 chars per word.
func estimateDurationMS(chars int) int {
	return (chars * 60 * 1000) / (150 * 5)
}
