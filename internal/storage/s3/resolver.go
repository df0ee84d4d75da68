// Package s3 implements the signed-URL resolver against S3-compatible object storage
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mediacache/mediacache/internal/config"
	"github.com/mediacache/mediacache/pkg/types"
)

// Resolver resolves asset references to presigned GET URLs
type Resolver struct {
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
	logger  *slog.Logger
}

// NewResolver creates a resolver for the configured bucket
func NewResolver(ctx context.Context, cfg config.ResolverConfig, logger *slog.Logger) (*Resolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 4 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 URL resolver initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"presign_expiry", cfg.PresignExpiry)

	return &Resolver{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expiry:  cfg.PresignExpiry,
		logger:  logger,
	}, nil
}

// Resolve presigns a GET for the asset's storage reference. The
// reference falls back to the asset id when unset.
func (r *Resolver) Resolve(ctx context.Context, asset types.Asset) (string, error) {
	key := asset.Reference
	if key == "" {
		key = asset.ID
	}

	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}

	return req.URL, nil
}

var _ types.URLResolver = (*Resolver)(nil)
