// Package gdrive provides a Google Drive storage provider that acts with
// the signed-in user's OAuth token.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/drivepane/drivepane/pkg/models"
)

const (
	fileFields = "id, name, mimeType, modifiedTime, size, webViewLink"
	listFields = "nextPageToken, files(" + fileFields + ")"

	defaultPageSize = 30
	maxPageSize     = 1000
)

// ServiceFactory builds a Drive client for one credential.
type ServiceFactory func(ctx context.Context, cred *models.Credential) (*drive.Service, error)

// Config holds Google Drive provider settings.
type Config struct {
	// NewService overrides how clients are built. Nil uses the Drive API
	// with the credential's access token.
	NewService ServiceFactory
}

// Provider implements storage.Provider on the Drive v3 API.
type Provider struct {
	newService ServiceFactory
}

// New creates a new Google Drive provider.
func New(cfg Config) *Provider {
	if cfg.NewService == nil {
		cfg.NewService = tokenService
	}
	return &Provider{newService: cfg.NewService}
}

func tokenService(ctx context.Context, cred *models.Credential) (*drive.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken})
	return drive.NewService(ctx, option.WithTokenSource(ts))
}

func (p *Provider) service(ctx context.Context, cred *models.Credential) (*drive.Service, error) {
	if cred == nil || cred.AccessToken == "" {
		return nil, models.ErrNotAuthenticated
	}
	svc, err := p.newService(ctx, cred)
	if err != nil {
		return nil, models.Upstream("drive client", 0, err)
	}
	return svc, nil
}

// ListFiles lists the non-trashed children of a folder. Folder metadata is
// fetched alongside the listing for non-root folders.
func (p *Provider) ListFiles(ctx context.Context, cred *models.Credential, q models.ListQuery) (*models.Listing, error) {
	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{}
	g, gctx := errgroup.WithContext(ctx)

	if q.FolderID != "" {
		g.Go(func() error {
			f, err := svc.Files.Get(q.FolderID).Fields("id, name").SupportsAllDrives(true).Context(gctx).Do()
			if err != nil {
				return mapErr("get folder", err)
			}
			listing.Folder = &models.FolderRef{ID: f.Id, Name: f.Name}
			return nil
		})
	}

	g.Go(func() error {
		files, next, err := p.list(gctx, svc, q)
		if err != nil {
			return err
		}
		listing.Files = files
		listing.NextPageToken = next
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return listing, nil
}

func (p *Provider) list(ctx context.Context, svc *drive.Service, q models.ListQuery) ([]models.File, string, error) {
	call := svc.Files.List().
		Q(parentQuery(q.FolderID)).
		Fields(listFields).
		SupportsAllDrives(true).
		Context(ctx)

	order, serverSide := orderBy(q.Sort)
	if serverSide {
		pageSize := q.PageSize
		if pageSize <= 0 {
			pageSize = defaultPageSize
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		call = call.OrderBy(order).PageSize(int64(pageSize))
		if q.PageToken != "" {
			call = call.PageToken(q.PageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, "", mapErr("list", err)
		}
		return convertAll(res.Files), res.NextPageToken, nil
	}

	// Drive cannot order by mimeType: collect every page and sort here.
	files := []models.File{}
	err := call.PageSize(maxPageSize).Pages(ctx, func(res *drive.FileList) error {
		files = append(files, convertAll(res.Files)...)
		return nil
	})
	if err != nil {
		return nil, "", mapErr("list", err)
	}
	models.SortFiles(files, q.Sort)
	return files, "", nil
}

// GetFileMetadata fetches one file record.
func (p *Provider) GetFileMetadata(ctx context.Context, cred *models.Credential, fileID string) (*models.File, error) {
	if fileID == "" {
		return nil, models.Validationf("file id is required")
	}
	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	f, err := svc.Files.Get(fileID).Fields(fileFields).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil {
		return nil, mapErr("get metadata", err)
	}
	out := convert(f)
	return &out, nil
}

// GetFileContent downloads a file's bytes.
func (p *Provider) GetFileContent(ctx context.Context, cred *models.Credential, fileID string) (io.ReadCloser, error) {
	if fileID == "" {
		return nil, models.Validationf("file id is required")
	}
	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	res, err := svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, mapErr("download", err)
	}
	return res.Body, nil
}

// CreateFile uploads a new file, optionally inside a parent folder.
func (p *Provider) CreateFile(ctx context.Context, cred *models.Credential, req models.CreateRequest) (*models.File, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, models.Validationf("file name is required")
	}
	svc, err := p.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	meta := &drive.File{Name: req.Name, MimeType: req.MimeType}
	if req.ParentID != "" {
		meta.Parents = []string{req.ParentID}
	}
	var opts []googleapi.MediaOption
	if req.MimeType != "" {
		opts = append(opts, googleapi.ContentType(req.MimeType))
	}

	f, err := svc.Files.Create(meta).
		Media(req.Content, opts...).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapErr("create", err)
	}
	out := convert(f)
	return &out, nil
}

// DeleteFile permanently deletes a file or folder.
func (p *Provider) DeleteFile(ctx context.Context, cred *models.Credential, fileID string) error {
	if fileID == "" {
		return models.Validationf("file id is required")
	}
	svc, err := p.service(ctx, cred)
	if err != nil {
		return err
	}
	if err := svc.Files.Delete(fileID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return mapErr("delete", err)
	}
	return nil
}

// Type returns "gdrive".
func (p *Provider) Type() string { return "gdrive" }

// Close is a no-op; clients are built per request.
func (p *Provider) Close() error { return nil }

func parentQuery(folderID string) string {
	parent := "root"
	if folderID != "" {
		parent = escapeQuery(folderID)
	}
	return fmt.Sprintf("trashed = false and '%s' in parents", parent)
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// orderBy returns the Drive orderBy clause for s, or false when Drive
// cannot order by the field.
func orderBy(s models.Sort) (string, bool) {
	var key string
	switch s.Field {
	case models.SortByName:
		key = "name"
	case models.SortByModifiedTime:
		key = "modifiedTime"
	case models.SortBySize:
		key = "quotaBytesUsed"
	default:
		return "", false
	}
	if s.Order == models.Descending {
		key += " desc"
	}
	return key, true
}

func convertAll(in []*drive.File) []models.File {
	out := make([]models.File, 0, len(in))
	for _, f := range in {
		out = append(out, convert(f))
	}
	return out
}

func convert(f *drive.File) models.File {
	out := models.File{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		WebViewLink: f.WebViewLink,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		out.ModifiedTime = t.UTC()
	}
	// Folders and native Google documents report no byte size.
	if !strings.HasPrefix(f.MimeType, "application/vnd.google-apps.") {
		out.Size = models.Int64(f.Size)
	}
	return out
}

func mapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized {
			return models.ErrNotAuthenticated
		}
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &models.UpstreamError{Op: op, Status: gerr.Code, Err: errors.New(msg)}
	}
	return models.Upstream(op, 0, err)
}
