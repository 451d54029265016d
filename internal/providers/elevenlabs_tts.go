package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ElevenLabsTTSName      = "elevenlabs"
	ElevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultModel = "eleven_turbo_v2_5"
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs client.
type ElevenLabsTTSConfig struct {
	APIKey     string
	Model      string  // e.g., "eleven_multilingual_v2", "eleven_turbo_v2_5"
	Voice      string  // Default voice ID
	Format     string  // Output format: mp3_44100_128, pcm_16000, etc.
	Stability  float64 // 0.0-1.0, default 0.5
	Similarity float64 // 0.0-1.0, default 0.75
	Speed      float64 // 0.7-1.2, default 1.0
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	BaseURL    string  // Optional (tests)
}

// ElevenLabsTTSClient implements TTSProvider over the ElevenLabs REST API.
type ElevenLabsTTSClient struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	format     string
	stability  float64
	similarity float64
	speed      float64
	rateLimit  float64
	client     *http.Client
}

// NewElevenLabsTTSClient creates a new ElevenLabs client.
func NewElevenLabsTTSClient(cfg ElevenLabsTTSConfig) *ElevenLabsTTSClient {
	if cfg.Model == "" {
		cfg.Model = ElevenLabsDefaultModel
	}
	if cfg.Format == "" {
		cfg.Format = "mp3_44100_128"
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.5
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.75
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second // TTS can be slow for long text
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ElevenLabsAPIBaseURL
	}

	return &ElevenLabsTTSClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		voice:      cfg.Voice,
		format:     cfg.Format,
		stability:  cfg.Stability,
		similarity: cfg.Similarity,
		speed:      cfg.Speed,
		rateLimit:  cfg.RateLimit,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *ElevenLabsTTSClient) Name() string {
	return ElevenLabsTTSName
}

func (c *ElevenLabsTTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

func (c *ElevenLabsTTSClient) MaxConcurrency() int {
	return 10 // Pro plan concurrency
}

func (c *ElevenLabsTTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	if voice == "" {
		err := &SynthesisError{Provider: ElevenLabsTTSName, Kind: KindFatal, Message: "voice_id is required"}
		return failedResult(start, len(req.Text), err), err
	}

	format := c.format
	if req.Format != "" && req.Format != "mp3" {
		format = req.Format
	}

	body := elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: c.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
			Speed:           c.speed,
			UseSpeakerBoost: true,
		},
	}

	audioBytes, requestID, err := c.doRequest(ctx, voice, format, body)
	if err != nil {
		return failedResult(start, len(req.Text), err), err
	}

	container, sampleRate := parseOutputFormat(format)
	return &TTSResult{
		Success:       true,
		Audio:         audioBytes,
		Format:        container,
		ContentType:   contentTypeFor(container),
		SampleRate:    sampleRate,
		DurationMS:    estimateDurationMS(len(req.Text)),
		CostUSD:       float64(len(req.Text)) * 0.0003,
		CharCount:     len(req.Text),
		ExecutionTime: time.Since(start),
		RequestID:     requestID,
	}, nil
}

func (c *ElevenLabsTTSClient) doRequest(ctx context.Context, voiceID, format string, body elevenLabsTTSRequest) ([]byte, string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, "", &SynthesisError{Provider: ElevenLabsTTSName, Kind: KindFatal, Err: err}
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(voiceID), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, "", &SynthesisError{Provider: ElevenLabsTTSName, Kind: KindFatal, Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", wrapTransport(ElevenLabsTTSName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", wrapTransport(ElevenLabsTTSName, err)
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := string(respBody)
		var errResp elevenLabsErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail.Message != "" {
			errMsg = errResp.Detail.Message
		}
		return nil, "", errorFromStatus(ElevenLabsTTSName, resp.StatusCode, errMsg, resp.Header)
	}

	requestID := resp.Header.Get("request-id")
	if requestID == "" {
		requestID = resp.Header.Get("x-request-id")
	}

	return respBody, requestID, nil
}

type elevenLabsTTSRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

type elevenLabsVoicesResponse struct {
	Voices []struct {
		VoiceID     string            `json:"voice_id"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		Labels      map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices retrieves the voices available to the API key.
func (c *ElevenLabsTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, wrapTransport(ElevenLabsTTSName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errorFromStatus(ElevenLabsTTSName, resp.StatusCode, string(body), resp.Header)
	}

	var result elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		description := v.Description
		if description == "" && len(v.Labels) > 0 {
			keys := make([]string, 0, len(v.Labels))
			for k := range v.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, k+": "+v.Labels[k])
			}
			description = strings.Join(parts, ", ")
		}
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: description,
		})
	}
	return voices, nil
}

// parseOutputFormat extracts container format and sample rate from output_format.
// Examples: mp3_44100_128 -> (mp3, 44100), pcm_16000 -> (wav, 16000).
func parseOutputFormat(format string) (container string, sampleRate int) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "mp3", 0
	}

	parts := strings.Split(format, "_")
	container = parts[0]
	if container == "pcm" || container == "ulaw" || container == "alaw" {
		container = "wav"
	}

	if len(parts) >= 2 {
		if sr, err := strconv.Atoi(parts[1]); err == nil {
			sampleRate = sr
		}
	}

	return container, sampleRate
}

var (
	_ TTSProvider  = (*ElevenLabsTTSClient)(nil)
	_ VoicesLister = (*ElevenLabsTTSClient)(nil)
)
