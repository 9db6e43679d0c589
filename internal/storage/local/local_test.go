package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drivepane/drivepane/internal/storage/objectid"
	"github.com/drivepane/drivepane/pkg/models"
)

func newTestProvider(t *testing.T) (*Provider, string) {
	t.Helper()
	root := t.TempDir()
	p, err := New(Config{RootPath: root})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty root")
	}
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := New(Config{RootPath: missing}); err == nil {
		t.Fatal("expected error for missing root without CreateDirs")
	}
	if _, err := New(Config{RootPath: missing, CreateDirs: true}); err != nil {
		t.Fatalf("CreateDirs: %v", err)
	}
}

func TestListFilesRoot(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, root, "b.txt", "hello world")
	writeFile(t, root, "a.json", `{"x":1}`)
	writeFile(t, root, "Docs/inner.txt", "x")
	writeFile(t, root, ".hidden", "x")

	listing, err := p.ListFiles(context.Background(), nil, models.ListQuery{Sort: models.DefaultSort})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if listing.Folder != nil {
		t.Errorf("root listing should have no folder, got %+v", listing.Folder)
	}
	var names []string
	for _, f := range listing.Files {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "Docs,a.json,b.txt" {
		t.Fatalf("names = %s", got)
	}
	if !listing.Files[0].IsFolder() || listing.Files[0].Size != nil {
		t.Errorf("Docs should be a size-less folder: %+v", listing.Files[0])
	}
	if listing.Files[1].MimeType != "application/json" {
		t.Errorf("a.json mime = %q", listing.Files[1].MimeType)
	}
	if listing.Files[2].SizeOr(0) != 11 {
		t.Errorf("b.txt size = %d", listing.Files[2].SizeOr(0))
	}
}

func TestListFilesSubfolderSortedBySizeDesc(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, root, "Docs/small.txt", "x")
	writeFile(t, root, "Docs/big.txt", "xxxxxxxxxx")
	writeFile(t, root, "Docs/Sub/inner.txt", "x")

	folderID := objectid.Encode("Docs")
	listing, err := p.ListFiles(context.Background(), nil, models.ListQuery{
		FolderID: folderID,
		Sort:     models.Sort{Field: models.SortBySize, Order: models.Descending},
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if listing.Folder == nil || listing.Folder.ID != folderID || listing.Folder.Name != "Docs" {
		t.Fatalf("folder = %+v", listing.Folder)
	}
	want := []string{"big.txt", "small.txt", "Sub"}
	for i, f := range listing.Files {
		if f.Name != want[i] {
			t.Errorf("files[%d] = %s, want %s", i, f.Name, want[i])
		}
	}
}

func TestListFilesMissingFolder(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.ListFiles(context.Background(), nil, models.ListQuery{FolderID: objectid.Encode("ghost")})
	if !models.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFilesRejectsEscape(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.ListFiles(context.Background(), nil, models.ListQuery{FolderID: objectid.Encode("../")})
	if !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateAndReadBack(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, root, "Docs/keep.txt", "x")
	ctx := context.Background()

	created, err := p.CreateFile(ctx, nil, models.CreateRequest{
		Name:     "notes.txt",
		ParentID: objectid.Encode("Docs"),
		Size:     5,
		Content:  strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if created.Name != "notes.txt" || created.SizeOr(0) != 5 || created.MimeType != "text/plain" {
		t.Fatalf("created = %+v", created)
	}

	rc, err := p.GetFileContent(ctx, nil, created.ID)
	if err != nil {
		t.Fatalf("GetFileContent: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	// No temp files are left behind.
	entries, _ := os.ReadDir(filepath.Join(root, "Docs"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCreateDedupsName(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, root, "a.txt", "old")

	created, err := p.CreateFile(context.Background(), nil, models.CreateRequest{
		Name:    "a.txt",
		Content: strings.NewReader("new"),
	})
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if created.Name != "a (1).txt" {
		t.Errorf("name = %q", created.Name)
	}
	old, _ := os.ReadFile(filepath.Join(root, "a.txt"))
	if string(old) != "old" {
		t.Errorf("existing file overwritten: %q", old)
	}
}

func TestCreateRejectsBadName(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.CreateFile(context.Background(), nil, models.CreateRequest{
		Name:    "../evil",
		Content: strings.NewReader("x"),
	})
	if !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetFileMetadataAndDelete(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, root, "Docs/a.txt", "abc")
	ctx := context.Background()

	id := objectid.Encode("Docs/a.txt")
	f, err := p.GetFileMetadata(ctx, nil, id)
	if err != nil {
		t.Fatalf("GetFileMetadata: %v", err)
	}
	if f.ID != id || f.Name != "a.txt" || f.SizeOr(0) != 3 {
		t.Errorf("metadata = %+v", f)
	}

	if err := p.DeleteFile(ctx, nil, objectid.Encode("Docs")); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "Docs")); !os.IsNotExist(err) {
		t.Errorf("Docs should be gone, stat err = %v", err)
	}
	if err := p.DeleteFile(ctx, nil, id); !models.IsNotFound(err) {
		t.Errorf("second delete should be not found, got %v", err)
	}
	if err := p.DeleteFile(ctx, nil, ""); !models.IsValidation(err) {
		t.Errorf("deleting root should be rejected, got %v", err)
	}
}

func TestGetFileContentRejectsFolder(t *testing.T) {
	p, root := newTestProvider(t)
	writeFile(t, root, "Docs/a.txt", "abc")
	_, err := p.GetFileContent(context.Background(), nil, objectid.Encode("Docs"))
	if !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
