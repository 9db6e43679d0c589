// Package client is the HTTP collaborator used by the terminal client. Every
// file operation takes the credential explicitly and is attempted once.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/models"
	"github.com/drivepane/drivepane/pkg/protocol"
)

// Client talks to a drivepane server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Type identifies the collaborator in logs.
func (c *Client) Type() string {
	return "http"
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Upstream("ping", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Upstream("ping", resp.StatusCode, fmt.Errorf("server returned %d", resp.StatusCode))
	}
	return nil
}

// Config fetches the server's public settings.
func (c *Client) Config(ctx context.Context) (*protocol.ConfigResponse, error) {
	var out protocol.ConfigResponse
	if err := c.doJSON(ctx, "config", nil, http.MethodGet, "/api/config", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFiles lists one folder.
func (c *Client) ListFiles(ctx context.Context, cred *models.Credential, q models.ListQuery) (*models.Listing, error) {
	v := url.Values{}
	if q.FolderID != "" {
		v.Set("folderId", q.FolderID)
	}
	if q.Sort.Field != "" {
		v.Set("sortBy", string(q.Sort.Field))
	}
	if q.Sort.Order != "" {
		v.Set("sortOrder", string(q.Sort.Order))
	}
	if q.PageToken != "" {
		v.Set("pageToken", q.PageToken)
	}

	path := "/api/drive"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var out protocol.ListResponse
	if err := c.doJSON(ctx, "list", cred, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &models.Listing{Files: out.Files, Folder: out.Folder, NextPageToken: out.NextPageToken}, nil
}

// GetFileMetadata fetches one file record.
func (c *Client) GetFileMetadata(ctx context.Context, cred *models.Credential, fileID string) (*models.File, error) {
	var out models.File
	if err := c.doJSON(ctx, "metadata", cred, http.MethodGet, fileURL(fileID)+"/metadata", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFileContent streams a file's bytes. The caller closes the reader.
func (c *Client) GetFileContent(ctx context.Context, cred *models.Credential, fileID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "content", cred, http.MethodGet, fileURL(fileID), nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// CreateFile uploads a file as multipart form data. The body is streamed
// through a pipe, so large files are never held in memory.
func (c *Client) CreateFile(ctx context.Context, cred *models.Credential, req models.CreateRequest) (*models.File, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, req)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var out models.File
	if err := c.doJSON(ctx, "create", cred, http.MethodPost, "/api/drive", pr, mw.FormDataContentType(), &out); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, req models.CreateRequest) error {
	if req.ParentID != "" {
		if err := mw.WriteField("folderId", req.ParentID); err != nil {
			return err
		}
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(req.Name))}
	h["Content-Type"] = []string{mimeType}
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, req.Content)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// DeleteFile deletes a file or folder.
func (c *Client) DeleteFile(ctx context.Context, cred *models.Credential, fileID string) error {
	var out protocol.DeleteResponse
	return c.doJSON(ctx, "delete", cred, http.MethodDelete, fileURL(fileID), nil, "", &out)
}

// ViewerURL returns the browser address that shows a file inline.
func (c *Client) ViewerURL(fileID string) string {
	return c.baseURL + fileURL(fileID) + "?disposition=inline"
}

func fileURL(fileID string) string {
	return "/api/drive/" + url.PathEscape(fileID)
}

// do sends one request and maps any non-2xx response into the error taxonomy.
func (c *Client) do(ctx context.Context, op string, cred *models.Credential, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cred != nil && cred.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, models.Upstream(op, 0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var e protocol.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		logging.Debug("request failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("error", e.Error))
		return nil, protocol.ErrorFromResponse(op, resp.StatusCode, e.Error)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, op string, cred *models.Credential, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.do(ctx, op, cred, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return models.Upstream(op, resp.StatusCode, fmt.Errorf("parse response: %w", err))
	}
	return nil
}
