package api

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/models"
	"github.com/drivepane/drivepane/pkg/protocol"
)

const (
	dispositionAttachment = "attachment"
	dispositionInline     = "inline"

	// multipart overhead allowed on top of MaxFileSize
	formOverhead = 1 << 20
)

// GET /api/drive?folderId&sortBy&sortOrder&pageToken
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	cred, err := s.auth.Credential(r.Context())
	if err != nil {
		s.sendOpError(w, r, "list", err)
		return
	}

	q := r.URL.Query()
	query := models.ListQuery{
		FolderID:  q.Get("folderId"),
		Sort:      models.ParseSort(q.Get("sortBy"), q.Get("sortOrder")),
		PageToken: q.Get("pageToken"),
		PageSize:  s.config.FilesPerPage,
	}

	listing, err := s.provider.ListFiles(r.Context(), cred, query)
	metrics.RecordListing(string(query.Sort.Field), err == nil)
	if err != nil {
		s.sendOpError(w, r, "list", err)
		return
	}

	files := listing.Files
	if files == nil {
		files = []models.File{}
	}
	s.sendJSON(w, http.StatusOK, protocol.ListResponse{
		Files:         files,
		Folder:        listing.Folder,
		NextPageToken: listing.NextPageToken,
	})
}

// POST /api/drive (multipart: file, folderId)
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithContext(r.Context())

	cred, err := s.auth.Credential(r.Context())
	if err != nil {
		s.sendOpError(w, r, "upload", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RecordUploadRejected("too_large")
			s.sendError(w, http.StatusBadRequest, "File size exceeds maximum allowed size")
			return
		}
		metrics.RecordUploadRejected("bad_form")
		s.sendError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		metrics.RecordUploadRejected("missing_file")
		s.sendError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if header.Size > s.config.MaxFileSize {
		metrics.RecordUploadRejected("too_large")
		s.sendError(w, http.StatusBadRequest, "File size exceeds maximum allowed size")
		return
	}

	mimeType, err := uploadMimeType(file, header)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	created, err := s.provider.CreateFile(r.Context(), cred, models.CreateRequest{
		Name:     header.Filename,
		MimeType: mimeType,
		ParentID: r.FormValue("folderId"),
		Size:     header.Size,
		Content:  file,
	})
	metrics.RecordContentUpload(header.Size, err == nil)
	if err != nil {
		s.sendOpError(w, r, "upload", err)
		return
	}

	logger.Info("file uploaded",
		zap.String("id", created.ID),
		zap.String("name", created.Name),
		zap.Int64("size", header.Size),
	)
	s.sendJSON(w, http.StatusCreated, created)
}

// uploadMimeType trusts the browser's Content-Type unless it is missing or
// generic, in which case the content is sniffed.
func uploadMimeType(file multipart.File, header *multipart.FileHeader) (string, error) {
	ct := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
		return mt, nil
	}
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	mt, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		return "application/octet-stream", nil
	}
	return mt, nil
}

// GET /api/drive/{fileId}[?disposition=inline]
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileId")
	disposition := dispositionAttachment
	if r.URL.Query().Get("disposition") == dispositionInline {
		disposition = dispositionInline
	}

	cred, err := s.auth.Credential(r.Context())
	if err != nil {
		s.sendOpError(w, r, "download", err)
		return
	}

	meta, err := s.provider.GetFileMetadata(r.Context(), cred, fileID)
	if err != nil {
		metrics.RecordContentDownload(disposition, 0, false)
		s.sendOpError(w, r, "download", err)
		return
	}
	if meta.IsFolder() {
		metrics.RecordContentDownload(disposition, 0, false)
		s.sendError(w, http.StatusBadRequest, "cannot download a folder")
		return
	}

	reader, err := s.provider.GetFileContent(r.Context(), cred, fileID)
	if err != nil {
		metrics.RecordContentDownload(disposition, 0, false)
		s.sendOpError(w, r, "download", err)
		return
	}
	defer reader.Close()

	ct := meta.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": meta.Name}))
	if meta.Size != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*meta.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, reader)
	if err != nil {
		logging.Warn("content transfer error", zap.String("id", fileID), zap.Error(err))
	}
	metrics.RecordContentDownload(disposition, n, err == nil)
}

// GET /api/drive/{fileId}/metadata
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	cred, err := s.auth.Credential(r.Context())
	if err != nil {
		s.sendOpError(w, r, "metadata", err)
		return
	}
	meta, err := s.provider.GetFileMetadata(r.Context(), cred, r.PathValue("fileId"))
	if err != nil {
		s.sendOpError(w, r, "metadata", err)
		return
	}
	s.sendJSON(w, http.StatusOK, meta)
}

// DELETE /api/drive/{fileId}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileId")

	cred, err := s.auth.Credential(r.Context())
	if err != nil {
		s.sendOpError(w, r, "delete", err)
		return
	}

	err = s.provider.DeleteFile(r.Context(), cred, fileID)
	metrics.RecordDelete(err == nil)
	if err != nil {
		s.sendOpError(w, r, "delete", err)
		return
	}

	logging.WithContext(r.Context()).Info("file deleted", zap.String("id", fileID))
	s.sendJSON(w, http.StatusOK, protocol.DeleteResponse{Success: true})
}
