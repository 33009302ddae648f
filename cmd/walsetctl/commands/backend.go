package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/walset/blobstore"
	miniostore "github.com/hupe1980/walset/blobstore/minio"
	s3store "github.com/hupe1980/walset/blobstore/s3"
	"github.com/hupe1980/walset/internal/config"
	"github.com/hupe1980/walset/manifest"
)

var errNoBackend = errors.New("no checkpoint backend configured (set --checkpoint-backend or checkpoints.backend)")

// checkpoints returns the configured checkpoint store, or nil when no
// backend is configured.
func (a *app) checkpoints(ctx context.Context) (*manifest.CheckpointStore, error) {
	if a.cfg.Checkpoints.Backend == config.BackendNone {
		return nil, nil
	}
	store, err := newBlobStore(ctx, a.cfg.Checkpoints)
	if err != nil {
		return nil, err
	}
	if cfg := a.cfg.Checkpoints; cfg.MaxConcurrent > 0 || cfg.BytesPerSec > 0 {
		store = blobstore.NewThrottledStore(store, blobstore.ThrottleConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			BytesPerSec:   cfg.BytesPerSec,
		})
	}
	return manifest.NewCheckpointStore(store,
		manifest.WithCompression(a.cfg.CompressionType()),
		manifest.WithCheckpointLogger(a.logger),
	), nil
}

// requireCheckpoints is checkpoints for commands that cannot run without a
// backend.
func (a *app) requireCheckpoints(ctx context.Context) (*manifest.CheckpointStore, error) {
	cps, err := a.checkpoints(ctx)
	if err != nil {
		return nil, err
	}
	if cps == nil {
		return nil, errNoBackend
	}
	return cps, nil
}

func newBlobStore(ctx context.Context, cfg config.CheckpointsConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return blobstore.NewLocalStore(cfg.Local.Dir), nil
	case config.BackendMinIO:
		return newMinIOStore(cfg.MinIO)
	case config.BackendS3:
		return newS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

func newMinIOStore(cfg config.MinIOConfig) (blobstore.BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return miniostore.NewStore(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(ctx context.Context, cfg config.S3Config) (blobstore.BlobStore, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	store := s3store.NewStore(client, cfg.Bucket, cfg.Prefix)
	if cfg.DynamoDBTable == "" {
		return store, nil
	}

	baseURI := "s3://" + cfg.Bucket + "/" + strings.Trim(cfg.Prefix, "/")
	return s3store.NewDDBCommitStore(store, dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, baseURI), nil
}
