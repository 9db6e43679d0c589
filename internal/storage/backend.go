// Package storage defines the Provider interface the server proxies file
// operations to, and builds the configured provider.
package storage

import (
	"context"
	"io"

	"github.com/drivepane/drivepane/pkg/models"
)

// Provider is the interface for remote storage providers. Every call takes
// the caller's credential explicitly; providers that authenticate with
// service credentials may ignore it.
type Provider interface {
	// ListFiles returns the children of q.FolderID ("" is root) ordered by
	// q.Sort, plus the folder's own metadata for non-root folders.
	ListFiles(ctx context.Context, cred *models.Credential, q models.ListQuery) (*models.Listing, error)

	// GetFileMetadata returns one record.
	GetFileMetadata(ctx context.Context, cred *models.Credential, fileID string) (*models.File, error)

	// GetFileContent streams a file's bytes. The caller closes the reader.
	GetFileContent(ctx context.Context, cred *models.Credential, fileID string) (io.ReadCloser, error)

	// CreateFile uploads req.Content under req.ParentID.
	CreateFile(ctx context.Context, cred *models.Credential, req models.CreateRequest) (*models.File, error)

	// DeleteFile removes a file or folder.
	DeleteFile(ctx context.Context, cred *models.Credential, fileID string) error

	// Type returns the provider identifier ("gdrive", "s3", "local").
	Type() string

	// Close releases any resources held by the provider.
	Close() error
}
