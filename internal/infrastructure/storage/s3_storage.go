package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/janhq/flow-api/internal/domain/flow"
)

// S3Config configures the S3 asset store.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	KeyPrefix    string
}

// S3Storage stores flow assets in an S3 compatible bucket under <prefix>/<flowID>/<name>.
type S3Storage struct {
	bucket string
	prefix string
	client *s3.Client
	log    zerolog.Logger
}

func NewS3Storage(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Storage, error) {
	logger := log.With().Str("component", "s3-storage").Logger()

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	accessKey := strings.TrimSpace(cfg.AccessKey)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info().Str("bucket", bucket).Str("prefix", cfg.KeyPrefix).Msg("s3 storage initialized")
	return &S3Storage{
		bucket: bucket,
		prefix: strings.Trim(cfg.KeyPrefix, "/"),
		client: client,
		log:    logger,
	}, nil
}

// PutAsset uploads an asset and returns its flow-relative name.
func (s *S3Storage) PutAsset(ctx context.Context, flowID, name string, data []byte, contentType string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+name), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %q", errInvalidPath, name)
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.AbsolutePath(flowID, rel)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put asset: %w", err)
	}
	return rel, nil
}

func (s *S3Storage) DeleteAsset(ctx context.Context, flowID, rel string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.AbsolutePath(flowID, rel)),
	})
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// AbsolutePath returns the object key of an asset.
func (s *S3Storage) AbsolutePath(flowID, relativePath string) string {
	key := path.Join(flowID, strings.TrimPrefix(path.Clean("/"+relativePath), "/"))
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Exists issues a HeadObject for the key. Any error counts as missing.
func (s *S3Storage) Exists(ctx context.Context, key string) bool {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr interface{ ErrorCode() string }
		if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "NotFound" {
			s.log.Debug().Err(err).Str("key", key).Msg("head object failed")
		}
		return false
	}
	return true
}

// Health performs a HeadBucket request.
func (s *S3Storage) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

var _ flow.AssetStore = (*S3Storage)(nil)
