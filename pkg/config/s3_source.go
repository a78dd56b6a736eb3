package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client is the subset of the S3 API used to fetch overrides.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds the connection settings for an S3 override document.
// Bucket and Key are normally taken from DYNAMIC_CONFIG_SOURCE.
type S3Config struct {
	Bucket         string `env:"-"`
	Key            string `env:"-"`
	Region         string `env:"DYNAMIC_CONFIG_S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"DYNAMIC_CONFIG_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"DYNAMIC_CONFIG_S3_SECRET_KEY"`
	Endpoint       string `env:"DYNAMIC_CONFIG_S3_ENDPOINT"`         // Optional: for S3-compatible services
	ForcePathStyle bool   `env:"DYNAMIC_CONFIG_S3_FORCE_PATH_STYLE"` // For S3-compatible services like MinIO
}

// S3Option configures an S3Source.
type S3Option func(*s3Options)

type s3Options struct {
	httpClient      *http.Client
	s3Client        S3Client
	s3ConfigOptions []func(*awsconfig.LoadOptions) error
}

// WithS3Client sets a pre-configured client.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) {
		o.s3Client = client
	}
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(client *http.Client) S3Option {
	return func(o *s3Options) {
		o.httpClient = client
	}
}

// WithS3ConfigOption passes an extra option to the AWS config loader.
func WithS3ConfigOption(option func(*awsconfig.LoadOptions) error) S3Option {
	return func(o *s3Options) {
		o.s3ConfigOptions = append(o.s3ConfigOptions, option)
	}
}

// S3Source reads overrides from a single S3 object.
type S3Source struct {
	client S3Client
	bucket string
	key    string
}

// NewS3Source builds a source for cfg.Bucket/cfg.Key.
func NewS3Source(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Source, error) {
	if cfg.Bucket == "" || cfg.Key == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket, key and region are required", ErrInvalidSource)
	}

	options := &s3Options{}
	for _, opt := range opts {
		opt(options)
	}

	client := options.s3Client
	if client == nil {
		awsOptions := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}
		if options.httpClient != nil {
			awsOptions = append(awsOptions, awsconfig.WithHTTPClient(options.httpClient))
		}
		awsOptions = append(awsOptions, options.s3ConfigOptions...)

		awsConfig, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, errors.Join(ErrSourceUnavailable, err)
		}

		client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Source{client: client, bucket: cfg.Bucket, key: cfg.Key}, nil
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, classifyS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}
	return data, nil
}

func (s *S3Source) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func classifyS3Error(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrSourceUnavailable, err)
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return errors.Join(ErrSourceNotFound, err)
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return errors.Join(ErrSourceNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.Join(ErrSourceAccessDenied, err)
		case "NoSuchKey", "NoSuchBucket":
			return errors.Join(ErrSourceNotFound, err)
		}
	}

	return errors.Join(ErrSourceUnavailable, err)
}
