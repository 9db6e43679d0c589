// Package s3 provides an S3-compatible storage provider. Folders are key
// prefixes ending in "/" and file IDs are the base64url form of the key
// relative to the configured prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/drivepane/drivepane/internal/storage/objectid"
	"github.com/drivepane/drivepane/pkg/models"
)

const deleteBatchSize = 1000

// Provider implements storage.Provider using S3/MinIO.
type Provider struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

func (p *Provider) objectKey(rel string) string {
	return p.prefix + rel
}

func (p *Provider) relKey(key string) string {
	return strings.TrimPrefix(key, p.prefix)
}

// folderKey decodes a folder ID into a relative prefix ending in "/", or ""
// for root.
func folderKey(folderID string) (string, error) {
	rel, err := objectid.Decode(folderID)
	if err != nil {
		return "", err
	}
	if rel != "" && !strings.HasSuffix(rel, "/") {
		return "", models.Validationf("not a folder")
	}
	return rel, nil
}

// ListFiles lists one level below the folder prefix. The whole level is
// returned in one page, sorted locally.
func (p *Provider) ListFiles(ctx context.Context, _ *models.Credential, q models.ListQuery) (*models.Listing, error) {
	rel, err := folderKey(q.FolderID)
	if err != nil {
		return nil, err
	}

	var files []models.File
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(p.objectKey(rel)),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapErr("list", err)
		}
		for _, cp := range page.CommonPrefixes {
			files = append(files, folderRecord(p.relKey(aws.ToString(cp.Prefix))))
		}
		for _, obj := range page.Contents {
			key := p.relKey(aws.ToString(obj.Key))
			if key == rel || strings.HasSuffix(key, "/") {
				continue // folder marker
			}
			files = append(files, objectRecord(key, "", aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified)))
		}
	}
	models.SortFiles(files, q.Sort)

	listing := &models.Listing{Files: files}
	if listing.Files == nil {
		listing.Files = []models.File{}
	}
	if rel != "" {
		listing.Folder = &models.FolderRef{ID: q.FolderID, Name: objectid.Name(rel)}
	}
	return listing, nil
}

// GetFileMetadata heads an object. Folder IDs are answered without a call.
func (p *Provider) GetFileMetadata(ctx context.Context, _ *models.Credential, fileID string) (*models.File, error) {
	rel, err := objectid.Decode(fileID)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, models.Validationf("file id is required")
	}
	if strings.HasSuffix(rel, "/") {
		f := folderRecord(rel)
		return &f, nil
	}

	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(rel)),
	})
	if err != nil {
		return nil, mapErr("metadata", err)
	}
	f := objectRecord(rel, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), aws.ToTime(out.LastModified))
	return &f, nil
}

// GetFileContent streams an object body.
func (p *Provider) GetFileContent(ctx context.Context, _ *models.Credential, fileID string) (io.ReadCloser, error) {
	rel, err := objectid.Decode(fileID)
	if err != nil {
		return nil, err
	}
	if rel == "" || strings.HasSuffix(rel, "/") {
		return nil, models.Validationf("cannot download a folder")
	}
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.objectKey(rel)),
	})
	if err != nil {
		return nil, mapErr("content", err)
	}
	return out.Body, nil
}

// CreateFile puts one object below the parent prefix.
func (p *Provider) CreateFile(ctx context.Context, _ *models.Credential, req models.CreateRequest) (*models.File, error) {
	if err := objectid.ValidName(req.Name); err != nil {
		return nil, err
	}
	parent, err := folderKey(req.ParentID)
	if err != nil {
		return nil, err
	}
	rel := parent + req.Name
	contentType := req.MimeType
	if contentType == "" {
		contentType = mimeFromName(req.Name)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.objectKey(rel)),
		Body:        req.Content,
		ContentType: aws.String(contentType),
	}
	if req.Size > 0 {
		input.ContentLength = aws.Int64(req.Size)
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return nil, mapErr("create", err)
	}

	f := objectRecord(rel, contentType, req.Size, p.now().UTC())
	return &f, nil
}

// DeleteFile removes an object, or every object below a folder prefix.
func (p *Provider) DeleteFile(ctx context.Context, _ *models.Credential, fileID string) error {
	rel, err := objectid.Decode(fileID)
	if err != nil {
		return err
	}
	if rel == "" {
		return models.Validationf("cannot delete the root folder")
	}

	if !strings.HasSuffix(rel, "/") {
		if _, err := p.GetFileMetadata(ctx, nil, fileID); err != nil {
			return err
		}
		_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(p.objectKey(rel)),
		})
		return mapErr("delete", err)
	}

	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(p.objectKey(rel)),
		MaxKeys: aws.Int32(deleteBatchSize),
	})
	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapErr("delete", err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return mapErr("delete", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return &models.UpstreamError{Op: "delete", Err: fmt.Errorf("delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))}
		}
		deleted += len(ids)
	}
	if deleted == 0 {
		return &models.UpstreamError{Op: "delete", Status: http.StatusNotFound, Err: fmt.Errorf("folder %s not found", objectid.Name(rel))}
	}
	return nil
}

// Type returns "s3".
func (p *Provider) Type() string { return "s3" }

// Close is a no-op for S3 providers.
func (p *Provider) Close() error { return nil }

func folderRecord(rel string) models.File {
	if !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return models.File{
		ID:       objectid.Encode(rel),
		Name:     objectid.Name(rel),
		MimeType: models.FolderMimeType,
	}
}

func objectRecord(rel, contentType string, size int64, modified time.Time) models.File {
	if contentType == "" || contentType == "binary/octet-stream" {
		contentType = mimeFromName(rel)
	}
	return models.File{
		ID:           objectid.Encode(rel),
		Name:         objectid.Name(rel),
		MimeType:     contentType,
		ModifiedTime: modified.UTC(),
		Size:         models.Int64(size),
	}
}

func mimeFromName(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return "application/octet-stream"
}

// mapErr sorts SDK errors into the taxonomy, carrying the HTTP status.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		respErr  *awshttp.ResponseError
	)
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return &models.UpstreamError{Op: op, Status: http.StatusNotFound, Err: errors.New("file not found")}
	case errors.As(err, &respErr):
		return &models.UpstreamError{Op: op, Status: respErr.HTTPStatusCode(), Err: err}
	}
	return models.Upstream(op, 0, err)
}
