package upload

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a handle to bytes the user picked for upload.
type File interface {
	Name() string
	Size() int64
	MimeType() string
	Open() (io.ReadCloser, error)
}

type localFile struct {
	path     string
	name     string
	size     int64
	mimeType string
}

// LocalFile returns a File for a regular file on disk. The MIME type comes
// from the extension, or from the content when the extension is unknown.
func LocalFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		if detected, err := mimetype.DetectFile(path); err == nil {
			mt = detected.String()
		}
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" {
		mt = "application/octet-stream"
	}

	return &localFile{
		path:     path,
		name:     filepath.Base(path),
		size:     info.Size(),
		mimeType: mt,
	}, nil
}

func (f *localFile) Name() string     { return f.name }
func (f *localFile) Size() int64      { return f.size }
func (f *localFile) MimeType() string { return f.mimeType }

func (f *localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
