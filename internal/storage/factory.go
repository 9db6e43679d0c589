package storage

import (
	"context"
	"fmt"

	"github.com/drivepane/drivepane/internal/config"
	"github.com/drivepane/drivepane/internal/storage/gdrive"
	"github.com/drivepane/drivepane/internal/storage/local"
	s3backend "github.com/drivepane/drivepane/internal/storage/s3"
)

// NewFromConfig creates the Provider selected by STORAGE_BACKEND, wrapped
// with instrumentation.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.StorageBackend {
	case config.BackendGoogleDrive:
		p = gdrive.New(gdrive.Config{})
	case config.BackendS3:
		p, err = s3backend.New(ctx, s3backend.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
		})
	case config.BackendLocal:
		p, err = local.New(local.Config{RootPath: cfg.LocalStoragePath, CreateDirs: true})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(p), nil
}
