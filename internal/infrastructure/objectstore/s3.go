// Package objectstore mirrors published artifacts to S3-compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Options configures the S3 mirror.
type Options struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string

	// Credentials overrides the default AWS credential chain.
	Credentials aws.CredentialsProvider
}

// S3Mirror uploads build artifacts under <prefix>/<buildId>/<name>.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Mirror creates a mirror using the default AWS config chain.
func NewS3Mirror(ctx context.Context, opts Options, logger *zap.Logger) (*S3Mirror, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror requires a bucket")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(opts.Credentials))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 artifact mirror configured",
		zap.String("bucket", opts.Bucket),
		zap.String("region", opts.Region),
	)

	return &S3Mirror{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: logger,
	}, nil
}

// Key returns the object key for a build artifact.
func (m *S3Mirror) Key(buildID, name string) string {
	return path.Join(m.prefix, buildID, name)
}

// Put uploads one artifact.
func (m *S3Mirror) Put(ctx context.Context, buildID, name string, body []byte, contentType string) error {
	key := m.Key(buildID, name)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	m.logger.Debug("Artifact mirrored", zap.String("key", key), zap.Int("size", len(body)))
	return nil
}
