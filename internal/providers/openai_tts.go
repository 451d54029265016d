package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAITTSName         = "openai"
	openAITTSDefaultModel = openai.SpeechModelTTS1HD
	openAITTSDefaultVoice = "onyx"
)

// OpenAITTSConfig holds configuration for the OpenAI TTS client.
type OpenAITTSConfig struct {
	APIKey       string
	Model        string        // "tts-1-hd" (default), "tts-1", "gpt-4o-mini-tts"
	Voice        string        // "onyx" (default)
	Speed        float64       // 0.25-4.0
	Instructions string        // Used by gpt-4o-mini-tts
	RateLimit    float64       // Requests per second
	Timeout      time.Duration // HTTP timeout
	BaseURL      string        // Optional (tests)
	HTTPClient   *http.Client  // Optional (tests)
}

// OpenAITTSClient implements TTSProvider using the official OpenAI SDK.
type OpenAITTSClient struct {
	model        string
	voice        string
	speed        float64
	instructions string
	rateLimit    float64
	client       openai.Client
}

// NewOpenAITTSClient creates a new OpenAI TTS client.
// SDK-level retries are disabled; the synthesis pool owns retry policy.
func NewOpenAITTSClient(cfg OpenAITTSConfig) *OpenAITTSClient {
	if cfg.Model == "" {
		cfg.Model = openAITTSDefaultModel
	}
	if cfg.Voice == "" {
		cfg.Voice = openAITTSDefaultVoice
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}
	if cfg.RateLimit <= 0 {
		// Default to ~500 RPM.
		cfg.RateLimit = 8.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITTSClient{
		model:        cfg.Model,
		voice:        cfg.Voice,
		speed:        cfg.Speed,
		instructions: cfg.Instructions,
		rateLimit:    cfg.RateLimit,
		client:       openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAITTSClient) Name() string {
	return OpenAITTSName
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAITTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxConcurrency returns max concurrent in-flight requests.
func (c *OpenAITTSClient) MaxConcurrency() int {
	// OpenAI limits vary by account tier.
	return 0
}

// Generate converts text to audio using OpenAI TTS API.
func (c *OpenAITTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	if req == nil {
		err := &SynthesisError{Provider: OpenAITTSName, Kind: KindFatal, Message: "request is required"}
		return failedResult(start, 0, err), err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		err := &SynthesisError{Provider: OpenAITTSName, Kind: KindFatal, Message: "text is required"}
		return failedResult(start, 0, err), err
	}

	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.voice
	}

	format := normalizeOpenAIFormat(req.Format)
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: format,
		Speed:          openai.Float(c.speed),
	}

	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = strings.TrimSpace(c.instructions)
	}
	if instructions != "" && supportsInstructions(c.model) {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		err = mapOpenAIError(err)
		return failedResult(start, len(text), err), err
	}
	defer resp.Body.Close()

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		err = wrapTransport(OpenAITTSName, fmt.Errorf("failed reading openai audio response: %w", err))
		return failedResult(start, len(text), err), err
	}

	resultFormat := openAIResultFormat(format)
	return &TTSResult{
		Success:       true,
		Audio:         audioBytes,
		Format:        resultFormat,
		ContentType:   contentTypeFor(resultFormat),
		DurationMS:    estimateDurationMS(len(text)),
		CostUSD:       estimateOpenAITTSCostUSD(c.model, text),
		CharCount:     len(text),
		ExecutionTime: time.Since(start),
	}, nil
}

func estimateOpenAITTSCostUSD(model, text string) float64 {
	switch strings.TrimSpace(strings.ToLower(model)) {
	case "tts-1-hd":
		return float64(len(text)) * (0.03 / 1000.0)
	default:
		return float64(len(text)) * (0.015 / 1000.0)
	}
}

// ListVoices returns the built-in OpenAI TTS voice list.
func (c *OpenAITTSClient) ListVoices(_ context.Context) ([]Voice, error) {
	names := []string{
		"alloy", "ash", "ballad", "coral", "echo", "fable", "nova",
		"onyx", "sage", "shimmer", "verse", "marin", "cedar",
	}

	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{VoiceID: name, Name: name})
	}
	return voices, nil
}

func supportsInstructions(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-4o-mini-tts")
}

func normalizeOpenAIFormat(format string) openai.AudioSpeechNewParamsResponseFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "opus":
		return openai.AudioSpeechNewParamsResponseFormatOpus
	case "aac":
		return openai.AudioSpeechNewParamsResponseFormatAAC
	case "flac":
		return openai.AudioSpeechNewParamsResponseFormatFLAC
	case "wav":
		return openai.AudioSpeechNewParamsResponseFormatWAV
	default:
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

func openAIResultFormat(format openai.AudioSpeechNewParamsResponseFormat) string {
	switch format {
	case openai.AudioSpeechNewParamsResponseFormatOpus:
		return "opus"
	case openai.AudioSpeechNewParamsResponseFormatAAC:
		return "aac"
	case openai.AudioSpeechNewParamsResponseFormatFLAC:
		return "flac"
	case openai.AudioSpeechNewParamsResponseFormatWAV:
		return "wav"
	default:
		return "mp3"
	}
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		se := errorFromStatus(OpenAITTSName, apiErr.StatusCode, apiErr.Message, header)
		se.Err = err
		return se
	}
	return wrapTransport(OpenAITTSName, err)
}

func contentTypeFor(format string) string {
	switch format {
	case "opus":
		return "audio/ogg"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

var _ TTSProvider = (*OpenAITTSClient)(nil)
var _ VoicesLister = (*OpenAITTSClient)(nil)
