package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config configures an S3-compatible store (AWS S3, Cloudflare R2, MinIO).
type S3Config struct {
	// Endpoint is the custom endpoint URL for S3-compatible providers.
	Endpoint string
	// Region defaults to "auto", which R2 expects.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// UsePathStyle forces bucket-in-path addressing.
	UsePathStyle bool
	Aliases      Aliases
	Logger       *slog.Logger
}

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements Store over the S3 API.
type S3Store struct {
	client  s3API
	aliases Aliases
	logger  *slog.Logger
}

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if len(cfg.Aliases.Buckets) == 0 {
		return nil, errors.New("s3 store requires at least one bucket alias")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3Store(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Aliases, cfg.Logger), nil
}

func newS3Store(client s3API, aliases Aliases, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{client: client, aliases: aliases, logger: logger}
}

func (s *S3Store) GetText(ctx context.Context, alias, key string) (string, error) {
	b, err := s.GetBytes(ctx, alias, key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *S3Store) GetBytes(ctx context.Context, alias, key string) ([]byte, error) {
	bucket, err := s.aliases.Bucket(alias)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(fmt.Sprintf("get %s/%s", alias, key), err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", alias, key, err)
	}
	return b, nil
}

// Put uploads body. When the store rejects the content-type header the
// upload is retried once without it.
func (s *S3Store) Put(ctx context.Context, alias, key string, body []byte, contentType string) error {
	bucket, err := s.aliases.Bucket(alias)
	if err != nil {
		return err
	}

	ct := SanitizeContentType(contentType)
	err = s.put(ctx, bucket, key, body, ct)
	if err != nil && ct != "" && isHeaderError(err) {
		s.logger.Warn("retrying put without content type",
			"alias", alias, "key", key, "error", err)
		err = s.put(ctx, bucket, key, body, "")
	}
	if err != nil {
		return mapS3Error(fmt.Sprintf("put %s/%s", alias, key), err)
	}
	return nil
}

func (s *S3Store) put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, in)
	return err
}

func (s *S3Store) List(ctx context.Context, alias, prefix string) ([]string, error) {
	bucket, err := s.aliases.Bucket(alias)
	if err != nil {
		return nil, err
	}

	in := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error(fmt.Sprintf("list %s/%s", alias, prefix), err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *S3Store) Delete(ctx context.Context, alias, key string) error {
	bucket, err := s.aliases.Bucket(alias)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Error(fmt.Sprintf("delete %s/%s", alias, key), err)
	}
	s.logger.Debug("object deleted", "alias", alias, "bucket", bucket, "key", key)
	return nil
}

func (s *S3Store) PublicURL(alias, key string) (string, error) {
	return s.aliases.PublicURL(alias, key)
}

func mapS3Error(op string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isHeaderError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid character in header") ||
		strings.Contains(msg, "invalid header field value") ||
		(strings.Contains(msg, "content-type") && strings.Contains(msg, "invalid"))
}

var _ Store = (*S3Store)(nil)
