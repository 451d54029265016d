package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

const (
	PollyName          = "polly"
	pollyDefaultVoice  = "Brian"
	pollyDefaultEngine = "neural"
	pollyDefaultRegion = "eu-west-2"
)

// PollyConfig holds configuration for the Amazon Polly client.
type PollyConfig struct {
	Region          string
	Endpoint        string // Optional override (tests, VPC endpoints)
	Voice           string
	Engine          string // "neural" (default), "standard", "long-form", "generative"
	Format          string // "mp3" (default)
	AccessKeyID     string // Optional; default credential chain otherwise
	SecretAccessKey string
	RateLimit       float64
	Timeout         time.Duration
	HTTPClient      *http.Client // Optional (tests)
}

// PollyClient implements TTSProvider over Amazon Polly SynthesizeSpeech.
type PollyClient struct {
	client    *polly.Client
	voice     string
	engine    string
	format    string
	rateLimit float64
}

// NewPollyClient loads AWS configuration and builds a Polly client.
// SDK retries are disabled; the synthesis pool owns retry policy.
func NewPollyClient(ctx context.Context, cfg PollyConfig) (*PollyClient, error) {
	if cfg.Region == "" {
		cfg.Region = pollyDefaultRegion
	}
	if cfg.Voice == "" {
		cfg.Voice = pollyDefaultVoice
	}
	if cfg.Engine == "" {
		cfg.Engine = pollyDefaultEngine
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := polly.NewFromConfig(awsCfg, func(o *polly.Options) {
		o.Retryer = aws.NopRetryer{}
		if cfg.Endpoint != "" {
			o.EndpointResolver = polly.EndpointResolverFromURL(cfg.Endpoint)
		}
	})

	return &PollyClient{
		client:    client,
		voice:     cfg.Voice,
		engine:    cfg.Engine,
		format:    cfg.Format,
		rateLimit: cfg.RateLimit,
	}, nil
}

func (c *PollyClient) Name() string {
	return PollyName
}

func (c *PollyClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

func (c *PollyClient) MaxConcurrency() int {
	return 0
}

// Generate synthesizes text with Polly.
func (c *PollyClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		err := &SynthesisError{Provider: PollyName, Kind: KindFatal, Message: "text is required"}
		return failedResult(start, 0, err), err
	}

	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	format := req.Format
	if format == "" {
		format = c.format
	}

	out, err := c.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		TextType:     types.TextTypeText,
		VoiceId:      types.VoiceId(voice),
		Engine:       types.Engine(c.engine),
		OutputFormat: types.OutputFormat(format),
	})
	if err != nil {
		err = mapPollyError(err)
		return failedResult(start, len(text), err), err
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		err = wrapTransport(PollyName, fmt.Errorf("read polly audio stream: %w", err))
		return failedResult(start, len(text), err), err
	}
	if len(audio) == 0 {
		err := &SynthesisError{Provider: PollyName, Kind: KindUnknown, Transient: true, Message: "empty audio stream"}
		return failedResult(start, len(text), err), err
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = contentTypeFor(format)
	}

	return &TTSResult{
		Success:       true,
		Audio:         audio,
		Format:        format,
		ContentType:   contentType,
		DurationMS:    estimateDurationMS(len(text)),
		CharCount:     int(out.RequestCharacters),
		CostUSD:       float64(out.RequestCharacters) * (16.0 / 1_000_000.0),
		ExecutionTime: time.Since(start),
	}, nil
}

// mapPollyError converts smithy API errors into SynthesisError.
// Polly reports throttling through several codes and messages, so the
// vocabulary check in isThrottleSignal applies to both.
// ListVoices pages through DescribeVoices for the configured engine.
func (c *PollyClient) ListVoices(ctx context.Context) ([]Voice, error) {
	var (
		voices []Voice
		next   *string
	)
	for {
		out, err := c.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{
			Engine:    types.Engine(c.engine),
			NextToken: next,
		})
		if err != nil {
			return nil, mapPollyError(err)
		}
		for _, v := range out.Voices {
			voices = append(voices, Voice{
				VoiceID:     string(v.Id),
				Name:        aws.ToString(v.Name),
				Description: strings.TrimSpace(fmt.Sprintf("%s %s", aws.ToString(v.LanguageName), v.Gender)),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return voices, nil
		}
		next = out.NextToken
	}
}

func mapPollyError(err error) error {
	status := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return wrapTransport(PollyName, err)
	}

	se := &SynthesisError{
		Provider:   PollyName,
		StatusCode: status,
		Message:    fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()),
		Err:        err,
	}

	code := apiErr.ErrorCode()
	switch {
	case isThrottleSignal(code) || isThrottleSignal(apiErr.ErrorMessage()) || status == http.StatusTooManyRequests:
		se.Kind = KindRateLimited
	case code == "RequestTimeout" || code == "RequestTimeoutException" || status == http.StatusRequestTimeout:
		se.Kind = KindTimeout
	case code == "ServiceFailureException" || code == "ServiceUnavailable" || status >= 500:
		se.Kind = KindUnknown
		se.Transient = true
	case apiErr.ErrorFault() == smithy.FaultServer:
		se.Kind = KindUnknown
		se.Transient = true
	default:
		se.Kind = KindFatal
	}
	return se
}

var (
	_ TTSProvider  = (*PollyClient)(nil)
	_ VoicesLister = (*PollyClient)(nil)
)
