package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/smithy-go"
)

func TestMapPollyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{
			name:      "throttling code",
			err:       &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Rate exceeded"},
			kind:      KindRateLimited,
			retryable: true,
		},
		{
			name:      "throttle only in message",
			err:       &smithy.GenericAPIError{Code: "BadRequest", Message: "Too many requests, slow down"},
			kind:      KindRateLimited,
			retryable: true,
		},
		{
			name:      "service failure",
			err:       &smithy.GenericAPIError{Code: "ServiceFailureException", Message: "internal"},
			kind:      KindUnknown,
			retryable: true,
		},
		{
			name:      "server fault",
			err:       &smithy.GenericAPIError{Code: "Whatever", Fault: smithy.FaultServer},
			kind:      KindUnknown,
			retryable: true,
		},
		{
			name:      "text too long",
			err:       &smithy.GenericAPIError{Code: "TextLengthExceededException", Message: "too long"},
			kind:      KindFatal,
			retryable: false,
		},
		{
			name:      "non api error",
			err:       context.DeadlineExceeded,
			kind:      KindTimeout,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapPollyError(tt.err)
			if Classify(got) != tt.kind {
				t.Fatalf("Classify() = %s, want %s", Classify(got), tt.kind)
			}
			if IsRetryable(got) != tt.retryable {
				t.Fatalf("IsRetryable() = %v, want %v", IsRetryable(got), tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("mapped error lost its cause: %v", got)
			}
		})
	}
}

func TestPollyGenerate(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("x-amzn-RequestCharacters", "11")
		_, _ = w.Write([]byte("polly-audio"))
	}))
	defer server.Close()

	client, err := NewPollyClient(context.Background(), PollyConfig{
		Endpoint:        server.URL,
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewPollyClient() error = %v", err)
	}

	result, err := client.Generate(context.Background(), &TTSRequest{Text: "hello there"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(result.Audio) != "polly-audio" {
		t.Fatalf("Audio = %q", result.Audio)
	}
	if result.CharCount != 11 {
		t.Fatalf("CharCount = %d, want 11", result.CharCount)
	}
	if body["VoiceId"] != "Brian" || body["Engine"] != "neural" || body["OutputFormat"] != "mp3" {
		t.Fatalf("unexpected request body: %v", body)
	}
}

func TestPollyGenerateEmptyText(t *testing.T) {
	client := &PollyClient{voice: "Brian"}
	_, err := client.Generate(context.Background(), &TTSRequest{Text: "   "})
	if Classify(err) != KindFatal {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestPollyListVoicesPages(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("Engine"); got != "neural" {
			t.Errorf("Engine = %q, want neural", got)
		}
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("NextToken") == "" {
			_, _ = w.Write([]byte(`{"Voices":[{"Id":"Brian","Name":"Brian","Gender":"Male","LanguageName":"British English"}],"NextToken":"page2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"Voices":[{"Id":"Amy","Name":"Amy","Gender":"Female","LanguageName":"British English"}]}`))
	}))
	defer server.Close()

	client, err := NewPollyClient(context.Background(), PollyConfig{
		Endpoint:        server.URL,
		AccessKeyID:     "AKID",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewPollyClient() error = %v", err)
	}

	voices, err := client.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if calls != 2 || len(voices) != 2 {
		t.Fatalf("ListVoices() = %d voices over %d calls", len(voices), calls)
	}
	if voices[0].VoiceID != "Brian" || voices[0].Description != "British English Male" {
		t.Errorf("first voice = %+v", voices[0])
	}
}
