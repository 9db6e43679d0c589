package actions

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/pkg/models"
)

func init() {
	logging.InitNop()
}

type fakeRemote struct {
	mu       sync.Mutex
	content  map[string]string
	err      error
	gets     int
	deletes  []string
	lastCred *models.Credential
}

func (r *fakeRemote) GetFileContent(_ context.Context, cred *models.Credential, id string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	r.lastCred = cred
	if r.err != nil {
		return nil, r.err
	}
	body, ok := r.content[id]
	if !ok {
		return nil, &models.UpstreamError{Op: "content", Status: 404, Err: errors.New("file not found")}
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (r *fakeRemote) DeleteFile(_ context.Context, cred *models.Credential, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCred = cred
	if r.err != nil {
		return r.err
	}
	r.deletes = append(r.deletes, id)
	return nil
}

type fakeNav struct{ removed []string }

func (n *fakeNav) RemoveFile(id string) { n.removed = append(n.removed, id) }

var cred = &models.Credential{AccessToken: "tok", Subject: "alice"}

func newRunner(t *testing.T, remote *fakeRemote, nav Remover) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	return New(remote, models.StaticSession(cred), nav, Options{
		DownloadDir:  dir,
		PreviewBytes: 8,
		ViewerURL:    func(id string) string { return "https://drive.example/api/drive/" + id + "?disposition=inline" },
	}), dir
}

func TestDownloadWritesUnderRecordName(t *testing.T) {
	remote := &fakeRemote{content: map[string]string{"f1": "hello"}}
	r, dir := newRunner(t, remote, nil)

	path, err := r.Download(context.Background(), models.File{ID: "f1", Name: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Same(t, cred, remote.lastCred)
}

func TestDownloadNeverOverwrites(t *testing.T) {
	remote := &fakeRemote{content: map[string]string{"f1": "new"}}
	r, dir := newRunner(t, remote, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("old"), 0o644))

	path, err := r.Download(context.Background(), models.File{ID: "f1", Name: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes (1).txt"), path)

	old, _ := os.ReadFile(filepath.Join(dir, "notes.txt"))
	assert.Equal(t, "old", string(old))

	path, err = r.Download(context.Background(), models.File{ID: "f1", Name: "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes (2).txt"), path)
}

func TestDownloadStaysInsideDir(t *testing.T) {
	remote := &fakeRemote{content: map[string]string{"f1": "x"}}
	r, dir := newRunner(t, remote, nil)

	path, err := r.Download(context.Background(), models.File{ID: "f1", Name: "../../etc/passwd"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwd"), path)
}

func TestDownloadErrors(t *testing.T) {
	remote := &fakeRemote{content: map[string]string{}}
	r, dir := newRunner(t, remote, nil)

	_, err := r.Download(context.Background(), models.File{ID: "dir", Name: "Docs", MimeType: models.FolderMimeType})
	assert.True(t, models.IsValidation(err))
	assert.Equal(t, 0, remote.gets)

	_, err = r.Download(context.Background(), models.File{ID: "gone", Name: "gone.txt"})
	assert.True(t, models.IsNotFound(err))
	assert.Equal(t, 1, remote.gets, "exactly one call, no retry")
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "a failed download leaves nothing behind")

	anon := New(remote, models.StaticSession(nil), nil, Options{DownloadDir: dir})
	_, err = anon.Download(context.Background(), models.File{ID: "x", Name: "x.txt"})
	assert.True(t, models.IsAuth(err))
	assert.Equal(t, 1, remote.gets)
}

func TestDeleteRemovesFromNavigation(t *testing.T) {
	remote := &fakeRemote{}
	nav := &fakeNav{}
	r, _ := newRunner(t, remote, nav)

	require.NoError(t, r.Delete(context.Background(), models.File{ID: "f1", Name: "a.txt"}))
	assert.Equal(t, []string{"f1"}, remote.deletes)
	assert.Equal(t, []string{"f1"}, nav.removed)
}

func TestDeleteFailureKeepsRecord(t *testing.T) {
	remote := &fakeRemote{err: &models.UpstreamError{Op: "delete", Status: 502, Err: errors.New("upstream unavailable")}}
	nav := &fakeNav{}
	r, _ := newRunner(t, remote, nav)

	err := r.Delete(context.Background(), models.File{ID: "f1"})
	require.Error(t, err)
	assert.Empty(t, nav.removed)
	assert.Equal(t, "delete: upstream unavailable", Message(err))
}

func TestPreviewByKind(t *testing.T) {
	remote := &fakeRemote{content: map[string]string{"t1": "short", "t2": "0123456789abcdef"}}
	r, _ := newRunner(t, remote, nil)
	ctx := context.Background()

	p, err := r.Preview(ctx, models.File{ID: "i1", MimeType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, models.PreviewImage, p.Kind)
	assert.Equal(t, "https://drive.example/api/drive/i1?disposition=inline", p.URL)

	p, err = r.Preview(ctx, models.File{ID: "d1", MimeType: "application/vnd.google-apps.document", WebViewLink: "https://docs.example/d1"})
	require.NoError(t, err)
	assert.Equal(t, models.PreviewOffice, p.Kind)
	assert.Equal(t, "https://docs.example/d1", p.URL)

	p, err = r.Preview(ctx, models.File{ID: "z1", MimeType: "application/zip"})
	require.NoError(t, err)
	assert.Equal(t, models.PreviewUnsupported, p.Kind)
	assert.Empty(t, p.URL)
	assert.Equal(t, 0, remote.gets, "only text previews fetch content")

	p, err = r.Preview(ctx, models.File{ID: "t1", MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "short", p.Text)
	assert.False(t, p.Truncated)

	p, err = r.Preview(ctx, models.File{ID: "t2", MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "01234567", p.Text)
	assert.True(t, p.Truncated)
}

func TestPreviewTrimsSplitRune(t *testing.T) {
	// The 8-byte bound falls inside the two-byte é.
	remote := &fakeRemote{content: map[string]string{"t": "aaaaaaaé and more"}}
	r, _ := newRunner(t, remote, nil)

	p, err := r.Preview(context.Background(), models.File{ID: "t", MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaa", p.Text)
	assert.True(t, p.Truncated)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "Not authenticated.", Message(models.ErrNotAuthenticated))
	assert.Equal(t, "Not authenticated.", Message(&models.AuthError{Msg: "token expired"}))
	assert.Equal(t, "File size exceeds maximum allowed size (10 MB)",
		Message(models.Validationf("File size exceeds maximum allowed size (%d MB)", 10)))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}
