package auth

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/protocol"
)

// StaticLogin checks a single configured account.
type StaticLogin struct {
	username     string
	passwordHash []byte
}

// NewStaticLogin creates a login checker for username with a bcrypt hash.
func NewStaticLogin(username, passwordHash string) (*StaticLogin, error) {
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("invalid password hash: %w", err)
	}
	return &StaticLogin{username: username, passwordHash: []byte(passwordHash)}, nil
}

// Verify checks username and password.
func (s *StaticLogin) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return fmt.Errorf("invalid credentials")
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for STATIC_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// HandleLogin handles POST /api/auth/token
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if a.static == nil {
		sendAuthError(w, http.StatusNotFound, "password login is not enabled")
		return
	}

	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordAuthAttempt("static", false)
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		metrics.RecordAuthAttempt("static", false)
		sendAuthError(w, http.StatusBadRequest, "username and password required")
		return
	}

	if err := a.static.Verify(req.Username, req.Password); err != nil {
		metrics.RecordAuthAttempt("static", false)
		logging.WithContext(r.Context()).Warn("login failed", zap.String("username", req.Username))
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	user := protocol.User{Username: req.Username}
	tokenStr, sess, err := a.IssueSession(user, nil)
	if err != nil {
		metrics.RecordAuthAttempt("static", false)
		logging.WithContext(r.Context()).Error("failed to issue session", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordAuthAttempt("static", true)
	logging.WithContext(r.Context()).Info("login successful", zap.String("username", req.Username))

	a.setSessionCookie(w, tokenStr, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, protocol.SessionResponse{
		Token:     tokenStr,
		ExpiresAt: sess.ExpiresAt,
		User:      user,
	})
}
