package models

import "strings"

// PreviewKind is the viewer category for a MIME type.
type PreviewKind string

const (
	PreviewImage       PreviewKind = "image"
	PreviewPDF         PreviewKind = "pdf"
	PreviewOffice      PreviewKind = "office"
	PreviewText        PreviewKind = "text"
	PreviewUnsupported PreviewKind = "unsupported"
)

var officeTypes = []string{
	"application/vnd.google-apps.document",
	"application/vnd.google-apps.spreadsheet",
	"application/vnd.google-apps.presentation",
	"application/vnd.openxmlformats-officedocument.",
	"application/vnd.oasis.opendocument.",
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
}

// PreviewKindOf maps a MIME type to the viewer that can show it.
func PreviewKindOf(mimeType string) PreviewKind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == FolderMimeType:
		return PreviewUnsupported
	case strings.HasPrefix(mt, "image/"):
		return PreviewImage
	case mt == "application/pdf":
		return PreviewPDF
	case strings.HasPrefix(mt, "text/"), mt == "application/json":
		return PreviewText
	}
	for _, prefix := range officeTypes {
		if strings.HasPrefix(mt, prefix) {
			return PreviewOffice
		}
	}
	return PreviewUnsupported
}

// TypeLabel returns a short human label for the file table.
func TypeLabel(mimeType string) string {
	switch {
	case mimeType == FolderMimeType:
		return "Folder"
	case strings.Contains(mimeType, "vnd.google-apps.document"):
		return "Google Doc"
	case strings.Contains(mimeType, "vnd.google-apps.spreadsheet"):
		return "Google Sheet"
	case strings.Contains(mimeType, "vnd.google-apps.presentation"):
		return "Google Slides"
	case strings.Contains(mimeType, "officedocument.wordprocessingml"):
		return "Word"
	case strings.Contains(mimeType, "officedocument.spreadsheetml"):
		return "Excel"
	case strings.Contains(mimeType, "officedocument.presentationml"):
		return "PowerPoint"
	case mimeType == "application/pdf":
		return "PDF"
	case strings.HasPrefix(mimeType, "image/"):
		return "Image"
	case strings.HasPrefix(mimeType, "video/"):
		return "Video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "Audio"
	case strings.HasPrefix(mimeType, "text/"):
		return "Text"
	}
	if i := strings.LastIndexByte(mimeType, '/'); i >= 0 && i < len(mimeType)-1 {
		return strings.ToUpper(mimeType[i+1:])
	}
	return "File"
}
