package storage

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/models"
)

// Instrumented wraps a Provider with operation metrics and debug logging.
type Instrumented struct {
	Provider
}

// Instrument wraps p.
func Instrument(p Provider) *Instrumented {
	return &Instrumented{Provider: p}
}

func (i *Instrumented) observe(ctx context.Context, op string, start time.Time, err error, fields ...zap.Field) {
	metrics.RecordStorageOperation(i.Type(), op, time.Since(start), err == nil)
	fields = append(fields,
		zap.String("backend", i.Type()),
		zap.String("operation", op),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		logging.WithContext(ctx).Warn("storage operation failed", append(fields, zap.Error(err))...)
		return
	}
	logging.WithContext(ctx).Debug("storage operation", fields...)
}

func (i *Instrumented) ListFiles(ctx context.Context, cred *models.Credential, q models.ListQuery) (*models.Listing, error) {
	start := time.Now()
	listing, err := i.Provider.ListFiles(ctx, cred, q)
	i.observe(ctx, "list", start, err, zap.String("folder_id", q.FolderID), zap.String("sort", string(q.Sort.Field)))
	return listing, err
}

func (i *Instrumented) GetFileMetadata(ctx context.Context, cred *models.Credential, fileID string) (*models.File, error) {
	start := time.Now()
	f, err := i.Provider.GetFileMetadata(ctx, cred, fileID)
	i.observe(ctx, "metadata", start, err, zap.String("file_id", fileID))
	return f, err
}

func (i *Instrumented) GetFileContent(ctx context.Context, cred *models.Credential, fileID string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.Provider.GetFileContent(ctx, cred, fileID)
	i.observe(ctx, "content", start, err, zap.String("file_id", fileID))
	return rc, err
}

func (i *Instrumented) CreateFile(ctx context.Context, cred *models.Credential, req models.CreateRequest) (*models.File, error) {
	start := time.Now()
	f, err := i.Provider.CreateFile(ctx, cred, req)
	i.observe(ctx, "create", start, err, zap.String("name", req.Name), zap.Int64("size", req.Size))
	return f, err
}

func (i *Instrumented) DeleteFile(ctx context.Context, cred *models.Credential, fileID string) error {
	start := time.Now()
	err := i.Provider.DeleteFile(ctx, cred, fileID)
	i.observe(ctx, "delete", start, err, zap.String("file_id", fileID))
	return err
}
