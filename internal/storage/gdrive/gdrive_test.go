package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/drivepane/drivepane/pkg/models"
)

// fakeDrive records the list queries it receives and answers from fixed
// fixtures.
type fakeDrive struct {
	mu       sync.Mutex
	queries  []string
	orders   []string
	pages    map[string]string // pageToken -> response body
	folders  map[string]string // id -> name
	content  map[string]string
	deleted  []string
	uploaded map[string]string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/drive/v3/files":
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		f.orders = append(f.orders, r.URL.Query().Get("orderBy"))
		body, ok := f.pages[r.URL.Query().Get("pageToken")]
		if !ok {
			body = `{"files":[]}`
		}
		io.WriteString(w, body)

	case r.Method == http.MethodPost && r.URL.Path == "/upload/drive/v3/files":
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		metaPart, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var meta drive.File
		json.NewDecoder(metaPart).Decode(&meta)
		dataPart, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(dataPart)
		f.uploaded[meta.Name] = string(data)
		parent := ""
		if len(meta.Parents) > 0 {
			parent = meta.Parents[0]
		}
		json.NewEncoder(w).Encode(map[string]string{
			"id":           "new-" + parent,
			"name":         meta.Name,
			"mimeType":     dataPart.Header.Get("Content-Type"),
			"modifiedTime": "2024-05-01T10:00:00.000Z",
			"size":         "5",
		})

	case strings.HasPrefix(r.URL.Path, "/drive/v3/files/"):
		id := strings.TrimPrefix(r.URL.Path, "/drive/v3/files/")
		switch r.Method {
		case http.MethodDelete:
			if id == "missing" {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"error":{"code":404,"message":"File not found: missing."}}`)
				return
			}
			f.deleted = append(f.deleted, id)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			if r.URL.Query().Get("alt") == "media" {
				w.Header().Set("Content-Type", "text/plain")
				io.WriteString(w, f.content[id])
				return
			}
			if id == "expired" {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
				return
			}
			name, ok := f.folders[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"error":{"code":404,"message":"File not found"}}`)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"id":       id,
				"name":     name,
				"mimeType": models.FolderMimeType,
			})
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestProvider(t *testing.T, fake *fakeDrive) *Provider {
	t.Helper()
	if fake.uploaded == nil {
		fake.uploaded = map[string]string{}
	}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(Config{NewService: func(ctx context.Context, cred *models.Credential) (*drive.Service, error) {
		return drive.NewService(ctx,
			option.WithEndpoint(srv.URL+"/drive/v3/"),
			option.WithHTTPClient(srv.Client()),
		)
	}})
}

var cred = &models.Credential{AccessToken: "ya29.token", Subject: "alice@example.com"}

func TestListFilesRootUsesServerOrder(t *testing.T) {
	fake := &fakeDrive{pages: map[string]string{
		"": `{"nextPageToken":"p2","files":[
			{"id":"f1","name":"Docs","mimeType":"application/vnd.google-apps.folder","modifiedTime":"2024-01-01T00:00:00.000Z"},
			{"id":"a","name":"a.txt","mimeType":"text/plain","modifiedTime":"2024-01-02T00:00:00.000Z","size":"12"},
			{"id":"d","name":"Plan","mimeType":"application/vnd.google-apps.document","modifiedTime":"2024-01-03T00:00:00.000Z"}
		]}`,
	}}
	p := newTestProvider(t, fake)

	listing, err := p.ListFiles(context.Background(), cred, models.ListQuery{
		Sort: models.Sort{Field: models.SortByModifiedTime, Order: models.Descending},
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if listing.Folder != nil {
		t.Errorf("root folder should be nil, got %+v", listing.Folder)
	}
	if listing.NextPageToken != "p2" {
		t.Errorf("next page token = %q", listing.NextPageToken)
	}
	if len(listing.Files) != 3 {
		t.Fatalf("files = %+v", listing.Files)
	}
	if listing.Files[0].Size != nil || listing.Files[2].Size != nil {
		t.Error("folders and native documents should carry no size")
	}
	if listing.Files[1].SizeOr(0) != 12 {
		t.Errorf("a.txt size = %d", listing.Files[1].SizeOr(0))
	}
	if got := fake.queries[0]; got != "trashed = false and 'root' in parents" {
		t.Errorf("q = %q", got)
	}
	if got := fake.orders[0]; got != "modifiedTime desc" {
		t.Errorf("orderBy = %q", got)
	}
}

func TestListFilesFolderFetchesMetadata(t *testing.T) {
	fake := &fakeDrive{
		pages:   map[string]string{"": `{"files":[]}`},
		folders: map[string]string{"F1": "Reports"},
	}
	p := newTestProvider(t, fake)

	listing, err := p.ListFiles(context.Background(), cred, models.ListQuery{FolderID: "F1", Sort: models.DefaultSort})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if listing.Folder == nil || listing.Folder.ID != "F1" || listing.Folder.Name != "Reports" {
		t.Fatalf("folder = %+v", listing.Folder)
	}
	if got := fake.queries[0]; got != "trashed = false and 'F1' in parents" {
		t.Errorf("q = %q", got)
	}
	if got := fake.orders[0]; got != "name" {
		t.Errorf("orderBy = %q", got)
	}
}

func TestListFilesByMimeTypeSortsAllPagesLocally(t *testing.T) {
	fake := &fakeDrive{pages: map[string]string{
		"": `{"nextPageToken":"p2","files":[
			{"id":"1","name":"b.png","mimeType":"image/png"},
			{"id":"2","name":"a.txt","mimeType":"text/plain"}
		]}`,
		"p2": `{"files":[
			{"id":"3","name":"c.pdf","mimeType":"application/pdf"}
		]}`,
	}}
	p := newTestProvider(t, fake)

	listing, err := p.ListFiles(context.Background(), cred, models.ListQuery{
		Sort: models.Sort{Field: models.SortByMimeType, Order: models.Ascending},
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if listing.NextPageToken != "" {
		t.Errorf("local sort should not expose a page token, got %q", listing.NextPageToken)
	}
	var ids []string
	for _, f := range listing.Files {
		ids = append(ids, f.ID)
	}
	if got := strings.Join(ids, ","); got != "3,1,2" {
		t.Errorf("order = %s", got)
	}
	if len(fake.queries) != 2 || fake.orders[0] != "" {
		t.Errorf("expected two unordered page fetches, got %v / %v", fake.queries, fake.orders)
	}
}

func TestListFilesEscapesFolderID(t *testing.T) {
	if got := parentQuery(`it's`); got != `trashed = false and 'it\'s' in parents` {
		t.Errorf("parentQuery = %q", got)
	}
}

func TestMissingCredentialIsAuthError(t *testing.T) {
	p := New(Config{})
	_, err := p.ListFiles(context.Background(), nil, models.ListQuery{})
	if !models.IsAuth(err) || err.Error() != models.NotAuthenticated {
		t.Fatalf("expected Not authenticated, got %v", err)
	}
}

func TestExpiredTokenIsAuthError(t *testing.T) {
	p := newTestProvider(t, &fakeDrive{})
	_, err := p.GetFileMetadata(context.Background(), cred, "expired")
	if !models.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestGetFileContent(t *testing.T) {
	p := newTestProvider(t, &fakeDrive{content: map[string]string{"a": "hello"}})
	rc, err := p.GetFileContent(context.Background(), cred, "a")
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func TestCreateFile(t *testing.T) {
	fake := &fakeDrive{}
	p := newTestProvider(t, fake)

	f, err := p.CreateFile(context.Background(), cred, models.CreateRequest{
		Name:     "notes.txt",
		MimeType: "text/plain",
		ParentID: "F1",
		Size:     5,
		Content:  strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if f.ID != "new-F1" || f.Name != "notes.txt" || f.SizeOr(0) != 5 {
		t.Errorf("created = %+v", f)
	}
	if fake.uploaded["notes.txt"] != "hello" {
		t.Errorf("uploaded = %v", fake.uploaded)
	}
}

func TestDeleteFile(t *testing.T) {
	fake := &fakeDrive{}
	p := newTestProvider(t, fake)

	if err := p.DeleteFile(context.Background(), cred, "a"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "a" {
		t.Errorf("deleted = %v", fake.deleted)
	}

	err := p.DeleteFile(context.Background(), cred, "missing")
	if !models.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "File not found") {
		t.Errorf("message should pass through, got %q", err.Error())
	}
}
