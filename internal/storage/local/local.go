// Package local provides a filesystem storage provider rooted at one
// directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/drivepane/drivepane/internal/storage/objectid"
	"github.com/drivepane/drivepane/pkg/models"
)

const tempPattern = ".drivepane-*.tmp"

// Config holds local filesystem provider settings.
type Config struct {
	RootPath   string
	CreateDirs bool
}

// Provider implements storage.Provider using the local filesystem.
// File IDs are the base64url form of the slash-separated relative path.
type Provider struct {
	rootPath string
}

// New creates a new local filesystem provider.
func New(cfg Config) (*Provider, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	return &Provider{rootPath: cfg.RootPath}, nil
}

func (p *Provider) fullPath(rel string) string {
	return filepath.Join(p.rootPath, filepath.FromSlash(strings.TrimSuffix(rel, "/")))
}

func (p *Provider) resolve(fileID string) (string, error) {
	return objectid.Decode(fileID)
}

// ListFiles reads one directory. The whole directory is returned in one
// page, sorted locally.
func (p *Provider) ListFiles(_ context.Context, _ *models.Credential, q models.ListQuery) (*models.Listing, error) {
	rel, err := p.resolve(q.FolderID)
	if err != nil {
		return nil, err
	}
	rel = strings.TrimSuffix(rel, "/")

	entries, err := os.ReadDir(p.fullPath(rel))
	if err != nil {
		return nil, mapErr("list", rel, err)
	}

	files := make([]models.File, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, p.record(path.Join(rel, e.Name()), info))
	}
	models.SortFiles(files, q.Sort)

	listing := &models.Listing{Files: files}
	if rel != "" {
		listing.Folder = &models.FolderRef{ID: q.FolderID, Name: path.Base(rel)}
	}
	return listing, nil
}

// GetFileMetadata stats one path.
func (p *Provider) GetFileMetadata(_ context.Context, _ *models.Credential, fileID string) (*models.File, error) {
	rel, err := p.resolve(fileID)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, models.Validationf("file id is required")
	}
	info, err := os.Stat(p.fullPath(rel))
	if err != nil {
		return nil, mapErr("metadata", rel, err)
	}
	f := p.record(strings.TrimSuffix(rel, "/"), info)
	return &f, nil
}

// GetFileContent opens a regular file for reading.
func (p *Provider) GetFileContent(_ context.Context, _ *models.Credential, fileID string) (io.ReadCloser, error) {
	rel, err := p.resolve(fileID)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, models.Validationf("file id is required")
	}
	f, err := os.Open(p.fullPath(rel))
	if err != nil {
		return nil, mapErr("content", rel, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapErr("content", rel, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, models.Validationf("cannot download a folder")
	}
	return f, nil
}

// CreateFile writes content atomically via a temp file and rename. A name
// that already exists gets a " (n)" suffix.
func (p *Provider) CreateFile(_ context.Context, _ *models.Credential, req models.CreateRequest) (*models.File, error) {
	if err := objectid.ValidName(req.Name); err != nil {
		return nil, err
	}
	parent, err := p.resolve(req.ParentID)
	if err != nil {
		return nil, err
	}
	parent = strings.TrimSuffix(parent, "/")
	dir := p.fullPath(parent)

	info, err := os.Stat(dir)
	if err != nil {
		return nil, mapErr("create", parent, err)
	}
	if !info.IsDir() {
		return nil, models.Validationf("parent is not a folder")
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return nil, models.Upstream("create", 0, fmt.Errorf("create temp for %s: %w", req.Name, err))
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, req.Content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, models.Upstream("create", 0, fmt.Errorf("write %s: %w", req.Name, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, models.Upstream("create", 0, fmt.Errorf("close temp for %s: %w", req.Name, err))
	}

	name := models.DedupName(req.Name, func(n string) bool {
		_, err := os.Lstat(filepath.Join(dir, n))
		return err == nil
	})
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return nil, models.Upstream("create", 0, fmt.Errorf("rename temp to %s: %w", name, err))
	}

	rel := path.Join(parent, name)
	info, err = os.Stat(p.fullPath(rel))
	if err != nil {
		return nil, mapErr("create", rel, err)
	}
	f := p.record(rel, info)
	if req.MimeType != "" {
		f.MimeType = req.MimeType
	}
	return &f, nil
}

// DeleteFile removes a file, or a folder with everything under it.
func (p *Provider) DeleteFile(_ context.Context, _ *models.Credential, fileID string) error {
	rel, err := p.resolve(fileID)
	if err != nil {
		return err
	}
	if rel == "" {
		return models.Validationf("cannot delete the root folder")
	}
	full := p.fullPath(rel)
	if _, err := os.Lstat(full); err != nil {
		return mapErr("delete", rel, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return models.Upstream("delete", 0, fmt.Errorf("delete %s: %w", rel, err))
	}
	return nil
}

// Type returns "local".
func (p *Provider) Type() string { return "local" }

// Close is a no-op for local providers.
func (p *Provider) Close() error { return nil }

func (p *Provider) record(rel string, info fs.FileInfo) models.File {
	f := models.File{
		ID:           objectid.Encode(rel),
		Name:         info.Name(),
		ModifiedTime: info.ModTime().UTC(),
	}
	if info.IsDir() {
		f.MimeType = models.FolderMimeType
		return f
	}
	f.MimeType = p.detectMime(rel)
	f.Size = models.Int64(info.Size())
	return f
}

// detectMime trusts the extension first and sniffs the header otherwise.
func (p *Provider) detectMime(rel string) string {
	if t := mime.TypeByExtension(path.Ext(rel)); t != "" {
		return baseType(t)
	}
	mt, err := mimetype.DetectFile(p.fullPath(rel))
	if err != nil {
		return "application/octet-stream"
	}
	return baseType(mt.String())
}

func baseType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.TrimSpace(t)
}

func mapErr(op, rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &models.UpstreamError{Op: op, Status: 404, Err: fmt.Errorf("%s not found", displayName(rel))}
	}
	return models.Upstream(op, 0, err)
}

func displayName(rel string) string {
	if rel == "" {
		return "root folder"
	}
	return rel
}
