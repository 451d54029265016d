package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	GoogleTTSName            = "google"
	googleTTSDefaultLanguage = "en-GB"
)

// GoogleTTSConfig holds configuration for Google Cloud Text-to-Speech.
type GoogleTTSConfig struct {
	Language        string  // BCP-47 code, e.g. "en-GB"
	Voice           string  // e.g. "en-GB-Neural2-B"
	SpeakingRate    float64 // 1.0 default
	CredentialsFile string  // Optional; GOOGLE_APPLICATION_CREDENTIALS otherwise
	Endpoint        string  // Optional override
	RateLimit       float64
}

// GoogleTTSClient implements TTSProvider over the Cloud TTS gRPC API.
type GoogleTTSClient struct {
	client       *gctts.Client
	language     string
	voice        string
	speakingRate float64
	rateLimit    float64
}

// NewGoogleTTSClient dials the Cloud TTS service. Close releases the connection.
func NewGoogleTTSClient(ctx context.Context, cfg GoogleTTSConfig) (*GoogleTTSClient, error) {
	if cfg.Language == "" {
		cfg.Language = googleTTSDefaultLanguage
	}
	if cfg.SpeakingRate == 0 {
		cfg.SpeakingRate = 1.0
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gctts.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google tts client: %w", err)
	}

	return &GoogleTTSClient{
		client:       client,
		language:     cfg.Language,
		voice:        cfg.Voice,
		speakingRate: cfg.SpeakingRate,
		rateLimit:    cfg.RateLimit,
	}, nil
}

func (c *GoogleTTSClient) Name() string {
	return GoogleTTSName
}

func (c *GoogleTTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

func (c *GoogleTTSClient) MaxConcurrency() int {
	return 0
}

// Close closes the underlying gRPC connection.
func (c *GoogleTTSClient) Close() error {
	return c.client.Close()
}

func (c *GoogleTTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		err := &SynthesisError{Provider: GoogleTTSName, Kind: KindFatal, Message: "text is required"}
		return failedResult(start, 0, err), err
	}

	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}

	resp, err := c.client.SynthesizeSpeech(ctx, &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{
			InputSource: &ttspb.SynthesisInput_Text{Text: text},
		},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: c.language,
			Name:         voice,
		},
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding: ttspb.AudioEncoding_MP3,
			SpeakingRate:  c.speakingRate,
		},
	})
	if err != nil {
		err = mapGoogleError(err)
		return failedResult(start, len(text), err), err
	}

	return &TTSResult{
		Success:       true,
		Audio:         resp.GetAudioContent(),
		Format:        "mp3",
		ContentType:   "audio/mpeg",
		DurationMS:    estimateDurationMS(len(text)),
		CharCount:     len(text),
		CostUSD:       float64(len(text)) * (16.0 / 1_000_000.0),
		ExecutionTime: time.Since(start),
	}, nil
}

// ListVoices returns the voices for the configured language.
func (c *GoogleTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	resp, err := c.client.ListVoices(ctx, &ttspb.ListVoicesRequest{LanguageCode: c.language})
	if err != nil {
		return nil, mapGoogleError(err)
	}
	voices := make([]Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		voices = append(voices, Voice{
			VoiceID:     v.GetName(),
			Name:        v.GetName(),
			Description: fmt.Sprintf("%s %s", strings.Join(v.GetLanguageCodes(), ","), strings.ToLower(v.GetSsmlGender().String())),
		})
	}
	return voices, nil
}

func mapGoogleError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return wrapTransport(GoogleTTSName, err)
	}

	se := &SynthesisError{
		Provider: GoogleTTSName,
		Message:  st.Message(),
		Err:      err,
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		se.Kind = KindRateLimited
	case codes.DeadlineExceeded:
		se.Kind = KindTimeout
	case codes.Unavailable, codes.Internal, codes.Aborted:
		se.Kind = KindUnknown
		se.Transient = true
	case codes.Unknown:
		se.Kind = KindUnknown
	default:
		se.Kind = KindFatal
	}
	return se
}

var (
	_ TTSProvider  = (*GoogleTTSClient)(nil)
	_ VoicesLister = (*GoogleTTSClient)(nil)
)
