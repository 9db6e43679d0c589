// Package protocol defines the API request/response types.
package protocol

import (
	"errors"
	"net/http"
	"time"

	"github.com/drivepane/drivepane/pkg/models"
)

// ListResponse is returned by GET /api/drive
type ListResponse struct {
	Files         []models.File     `json:"files"`
	Folder        *models.FolderRef `json:"folder"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// DeleteResponse is returned by DELETE /api/drive/{fileId}
type DeleteResponse struct {
	Success bool `json:"success"`
}

// ConfigResponse is returned by GET /api/config
type ConfigResponse struct {
	MaxFileSize  int64  `json:"maxFileSize"`
	FilesPerPage int    `json:"filesPerPage"`
	Provider     string `json:"provider"`
	AuthMode     string `json:"authMode"`
}

// LoginRequest is the body for POST /api/auth/token
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User describes the signed-in account.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

// SessionResponse is returned by POST /api/auth/token and GET /api/auth/session
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// StatusCode maps an error from the taxonomy to an HTTP status.
func StatusCode(err error) int {
	var ue *models.UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case models.IsAuth(err):
		return http.StatusUnauthorized
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &ue):
		if ue.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// ErrorFromResponse rebuilds a taxonomy error from an API error response.
func ErrorFromResponse(op string, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return &models.AuthError{Msg: message}
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return &models.ValidationError{Msg: message}
	}
	return &models.UpstreamError{Op: op, Status: status, Err: errors.New(message)}
}
