// Package models contains shared data types used by the server and clients.
package models

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// FolderMimeType is the mimeType sentinel that marks a record as a folder.
const FolderMimeType = "application/vnd.google-apps.folder"

// File is an immutable snapshot of one remote object as returned by a listing.
// Size is nil for folders.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Size         *int64    `json:"size,omitempty"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
}

// IsFolder reports whether the record is a folder.
func (f File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// SizeOr returns the size, or fallback when the record carries none.
func (f File) SizeOr(fallback int64) int64 {
	if f.Size == nil {
		return fallback
	}
	return *f.Size
}

// Int64 returns a pointer to v, for filling File.Size.
func Int64(v int64) *int64 {
	return &v
}

// FolderRef identifies one folder in a breadcrumb path.
type FolderRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListQuery describes one listing request. An empty FolderID means root.
type ListQuery struct {
	FolderID  string
	Sort      Sort
	PageToken string
	PageSize  int
}

// Listing is the result of listing a folder.
type Listing struct {
	Files         []File     `json:"files"`
	Folder        *FolderRef `json:"folder"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// CreateRequest carries everything needed to create a file remotely.
type CreateRequest struct {
	Name     string
	MimeType string
	ParentID string
	Size     int64
	Content  io.Reader
}

// DedupName returns name, or the first "base (n).ext" variant for which
// taken reports false.
func DedupName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}
