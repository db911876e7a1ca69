// Package s3blob provides cold storage for aged-out ticks on any
// S3-compatible backend (AWS S3, MinIO, R2).
package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quantpulse/marketd/internal/domain"
)

// Config holds the object-store connection parameters. Endpoint may be
// left empty for standard AWS S3; compatible providers set it, usually
// together with ForcePathStyle.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// Bucket is the one bucket the archiver writes into. It implements
// domain.BlobWriter.
type Bucket struct {
	api  *s3.Client
	name string
}

// Open builds the SDK client for the configured bucket. It does not touch
// the network; a missing bucket surfaces on the first Put.
func Open(ctx context.Context, cfg Config) (*Bucket, error) {
	switch {
	case cfg.Bucket == "":
		return nil, fmt.Errorf("s3blob: bucket name is required")
	case cfg.Region == "":
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Bucket{api: api, name: cfg.Bucket}, nil
}

// Put uploads one object. Archive objects here are a day of ticks at
// most, well within single-shot upload territory.
func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s/%s: %w", b.name, key, err)
	}
	return nil
}

// withScheme prepends http(s) to a bare host:port endpoint. Endpoints
// that already carry a scheme pass through untouched.
func withScheme(endpoint string, ssl bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if ssl {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Compile-time interface check.
var _ domain.BlobWriter = (*Bucket)(nil)
