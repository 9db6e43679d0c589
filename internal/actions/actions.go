// Package actions wraps the single-file remote operations offered on a
// listed record: download, delete and preview.
package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/models"
)

// DefaultPreviewBytes bounds the excerpt loaded for text previews.
const DefaultPreviewBytes = 64 * 1024

// Remote is the collaborator surface the actions need.
type Remote interface {
	GetFileContent(ctx context.Context, cred *models.Credential, fileID string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, cred *models.Credential, fileID string) error
}

// Remover drops a deleted record from the visible collection.
type Remover interface {
	RemoveFile(id string)
}

// Options configures a Runner.
type Options struct {
	DownloadDir  string
	PreviewBytes int64
	// ViewerURL builds the address that displays a file inline.
	ViewerURL func(fileID string) string
}

// Preview is what the viewer shows for one record.
type Preview struct {
	Kind      models.PreviewKind
	URL       string
	Text      string
	Truncated bool
}

// Runner performs actions for the signed-in user. Each action is one
// collaborator call and is never retried.
type Runner struct {
	remote   Remote
	sessions models.SessionSource
	nav      Remover
	opts     Options
	logger   *zap.Logger
}

// New creates a Runner. nav may be nil.
func New(remote Remote, sessions models.SessionSource, nav Remover, opts Options) *Runner {
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = DefaultPreviewBytes
	}
	return &Runner{
		remote:   remote,
		sessions: sessions,
		nav:      nav,
		opts:     opts,
		logger:   logging.Named("actions"),
	}
}

// Download saves the file content under its record name in the download
// directory and returns the path written. An existing file is never
// overwritten; the name gets a " (n)" suffix instead.
func (r *Runner) Download(ctx context.Context, file models.File) (string, error) {
	if file.IsFolder() {
		return "", models.Validationf("cannot download a folder")
	}
	cred, err := models.RequireSession(ctx, r.sessions)
	if err != nil {
		return "", err
	}
	body, err := r.remote.GetFileContent(ctx, cred, file.ID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(r.opts.DownloadDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	f, path, err := createUnique(r.opts.DownloadDir, safeName(file.Name))
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	r.logger.Info("downloaded file",
		zap.String("file_id", file.ID),
		zap.String("path", path),
		zap.Int64("bytes", n))
	return path, nil
}

// createUnique opens a new file for name in dir, picking the first free
// " (n)" variant. O_EXCL closes the race with a concurrent writer.
func createUnique(dir, name string) (*os.File, string, error) {
	taken := map[string]bool{}
	for {
		candidate := models.DedupName(name, func(n string) bool {
			if taken[n] {
				return true
			}
			_, err := os.Lstat(filepath.Join(dir, n))
			return err == nil
		})
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", path, err)
		}
		taken[candidate] = true
	}
}

// safeName keeps a remote name from escaping the download directory.
func safeName(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "download"
	}
	return name
}

// Delete removes the file remotely and, on success, from the navigation
// collection.
func (r *Runner) Delete(ctx context.Context, file models.File) error {
	cred, err := models.RequireSession(ctx, r.sessions)
	if err != nil {
		return err
	}
	if err := r.remote.DeleteFile(ctx, cred, file.ID); err != nil {
		return err
	}
	if r.nav != nil {
		r.nav.RemoveFile(file.ID)
	}
	r.logger.Info("deleted file", zap.String("file_id", file.ID), zap.String("name", file.Name))
	return nil
}

// Preview resolves the viewer for file. Text is loaded as a bounded excerpt;
// images, PDFs and office documents are shown through their viewer URL.
func (r *Runner) Preview(ctx context.Context, file models.File) (*Preview, error) {
	kind := models.PreviewKindOf(file.MimeType)
	p := &Preview{Kind: kind}

	switch kind {
	case models.PreviewUnsupported:
		return p, nil
	case models.PreviewText:
		return r.previewText(ctx, file, p)
	case models.PreviewOffice:
		if file.WebViewLink != "" {
			p.URL = file.WebViewLink
			return p, nil
		}
	}
	if _, err := models.RequireSession(ctx, r.sessions); err != nil {
		return nil, err
	}
	if r.opts.ViewerURL != nil {
		p.URL = r.opts.ViewerURL(file.ID)
	} else {
		p.URL = file.WebViewLink
	}
	return p, nil
}

func (r *Runner) previewText(ctx context.Context, file models.File, p *Preview) (*Preview, error) {
	cred, err := models.RequireSession(ctx, r.sessions)
	if err != nil {
		return nil, err
	}
	body, err := r.remote.GetFileContent(ctx, cred, file.ID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, r.opts.PreviewBytes+1))
	if err != nil {
		return nil, models.Upstream("preview", 0, err)
	}
	if int64(len(data)) > r.opts.PreviewBytes {
		data = trimPartialRune(data[:r.opts.PreviewBytes])
		p.Truncated = true
	}
	p.Text = string(data)
	return p, nil
}

// trimPartialRune drops a multi-byte rune cut in half by the size bound.
func trimPartialRune(data []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(data) > 0; i++ {
		r, size := utf8.DecodeLastRune(data)
		if r != utf8.RuneError || size != 1 {
			break
		}
		data = data[:len(data)-1]
	}
	return data
}

// Message turns an action error into the text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if models.IsAuth(err) {
		return models.NotAuthenticated + "."
	}
	return err.Error()
}
