package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		container  string
		sampleRate int
	}{
		{
			name:       "mp3 format",
			input:      "mp3_44100_128",
			container:  "mp3",
			sampleRate: 44100,
		},
		{
			name:       "pcm format maps to wav",
			input:      "pcm_16000",
			container:  "wav",
			sampleRate: 16000,
		},
		{
			name:       "legacy mp3",
			input:      "mp3",
			container:  "mp3",
			sampleRate: 0,
		},
		{
			name:       "empty defaults",
			input:      "",
			container:  "mp3",
			sampleRate: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, sampleRate := parseOutputFormat(tt.input)
			if container != tt.container {
				t.Fatalf("expected container=%q, got %q", tt.container, container)
			}
			if sampleRate != tt.sampleRate {
				t.Fatalf("expected sampleRate=%d, got %d", tt.sampleRate, sampleRate)
			}
		})
	}
}

func TestElevenLabsTTSGenerate(t *testing.T) {
	var gotPath, gotFormat, gotKey string
	var payload elevenLabsTTSRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("request-id", "req-123")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{
		APIKey:  "xi-key",
		Voice:   "voice-1",
		Speed:   1.1,
		BaseURL: server.URL,
	})

	result, err := client.Generate(context.Background(), &TTSRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gotPath != "/text-to-speech/voice-1" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotFormat != "mp3_44100_128" {
		t.Fatalf("unexpected output_format: %s", gotFormat)
	}
	if gotKey != "xi-key" {
		t.Fatalf("unexpected api key header: %q", gotKey)
	}
	if payload.VoiceSettings.Speed != 1.1 {
		t.Fatalf("expected speed 1.1, got %v", payload.VoiceSettings.Speed)
	}
	if string(result.Audio) != "mp3-bytes" || result.RequestID != "req-123" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.SampleRate != 44100 || result.ContentType != "audio/mpeg" {
		t.Fatalf("unexpected format fields: rate=%d type=%s", result.SampleRate, result.ContentType)
	}
}

func TestElevenLabsTTSErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"throttled", http.StatusTooManyRequests, `{"detail":{"status":"too_many_concurrent_requests","message":"slow down"}}`, KindRateLimited, true},
		{"gateway timeout", http.StatusGatewayTimeout, "", KindTimeout, true},
		{"server error", http.StatusBadGateway, "upstream", KindUnknown, true},
		{"unauthorized", http.StatusUnauthorized, `{"detail":{"status":"invalid_api_key","message":"bad key"}}`, KindFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k", Voice: "v", BaseURL: server.URL})
			_, err := client.Generate(context.Background(), &TTSRequest{Text: "hello"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(err); got != tt.kind {
				t.Fatalf("Classify() = %s, want %s", got, tt.kind)
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Fatalf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestElevenLabsTTSRequiresVoice(t *testing.T) {
	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k"})
	_, err := client.Generate(context.Background(), &TTSRequest{Text: "hello"})
	if err == nil || !strings.Contains(err.Error(), "voice_id is required") {
		t.Fatalf("expected voice_id error, got %v", err)
	}
}

func TestElevenLabsListVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voices" || r.Header.Get("xi-api-key") != "k" {
			t.Errorf("unexpected request %s key=%q", r.URL.Path, r.Header.Get("xi-api-key"))
		}
		_, _ = w.Write([]byte(`{"voices":[
			{"voice_id":"v1","name":"Brian","description":"deep narrator"},
			{"voice_id":"v2","name":"Alice","labels":{"gender":"female","accent":"british"}}
		]}`))
	}))
	defer server.Close()

	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k", BaseURL: server.URL})
	voices, err := client.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("ListVoices() = %d voices, want 2", len(voices))
	}
	if voices[0].Description != "deep narrator" {
		t.Errorf("description = %q", voices[0].Description)
	}
	if voices[1].Description != "accent: british, gender: female" {
		t.Errorf("label description = %q", voices[1].Description)
	}
}

func TestElevenLabsListVoicesUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k", BaseURL: server.URL})
	_, err := client.ListVoices(context.Background())
	if Classify(err) != KindFatal {
		t.Fatalf("ListVoices() error = %v, want fatal", err)
	}
}
