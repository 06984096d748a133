// Package mainconfig centralizes shared client initialization for the
// binaries, so the API server and one-off tools build identical clients.
package mainconfig

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/rentdesk/rentdesk-platform/internal/config"
)

// NewS3Client builds the object-storage client. The endpoint override makes
// the same code work against S3-compatible providers and MinIO in
// development.
func NewS3Client(ctx context.Context, cfg *appconfig.Config) (*s3.Client, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.StorageRegion)}
	if strings.TrimSpace(cfg.StorageAccessKey) != "" && strings.TrimSpace(cfg.StorageSecretKey) != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.StorageEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewRedisClient builds the Redis client used for read-state tracking.
func NewRedisClient(cfg *appconfig.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
