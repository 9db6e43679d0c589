package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/drivepane/drivepane/pkg/models"
	"github.com/drivepane/drivepane/pkg/protocol"
)

// TokenFile holds a saved session token.
type TokenFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Server    string    `json:"server"`
	Username  string    `json:"username"`
}

// IsExpired returns true if the token has expired (with optional margin).
func (t *TokenFile) IsExpired(margin time.Duration) bool {
	return !t.ExpiresAt.IsZero() && time.Now().Add(margin).After(t.ExpiresAt)
}

// Credential converts the saved token into the credential passed to every
// file operation.
func (t *TokenFile) Credential() *models.Credential {
	return &models.Credential{AccessToken: t.Token, Subject: t.Username}
}

// Login authenticates with username/password (static auth mode).
func (c *Client) Login(ctx context.Context, username, password string) (*TokenFile, error) {
	body, _ := json.Marshal(protocol.LoginRequest{Username: username, Password: password})

	var out protocol.SessionResponse
	if err := c.doJSON(ctx, "login", nil, http.MethodPost, "/api/auth/token", bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return c.tokenFile(out), nil
}

// Session validates token against the server and returns the session it
// belongs to. Used to import a token copied from the web app.
func (c *Client) Session(ctx context.Context, token string) (*TokenFile, error) {
	var out protocol.SessionResponse
	cred := &models.Credential{AccessToken: token}
	if err := c.doJSON(ctx, "session", cred, http.MethodGet, "/api/auth/session", nil, "", &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		out.Token = token
	}
	return c.tokenFile(out), nil
}

// Logout revokes the session on the server.
func (c *Client) Logout(ctx context.Context, cred *models.Credential) error {
	var out protocol.DeleteResponse
	return c.doJSON(ctx, "logout", cred, http.MethodPost, "/auth/logout", nil, "", &out)
}

func (c *Client) tokenFile(s protocol.SessionResponse) *TokenFile {
	return &TokenFile{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		Server:    c.baseURL,
		Username:  s.User.Username,
	}
}

// TokenFilePath returns the default path for the token file.
func TokenFilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "drivepane", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "drivepane", "token.json")
}

// TokenStore persists the session token on disk and serves it as the
// terminal client's SessionSource.
type TokenStore struct {
	path string

	mu     sync.Mutex
	cached *TokenFile
}

// NewTokenStore creates a store at path, or at TokenFilePath when empty.
func NewTokenStore(path string) *TokenStore {
	if path == "" {
		path = TokenFilePath()
	}
	return &TokenStore{path: path}
}

// Path returns the token file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Save writes the token file with owner-only permissions.
func (s *TokenStore) Save(tf *TokenFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = tf
	s.mu.Unlock()
	return nil
}

// Load reads the token file. A missing file returns (nil, nil).
func (s *TokenStore) Load() (*TokenFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.cached = &tf
	return &tf, nil
}

// Delete removes the token file. A missing file is not an error.
func (s *TokenStore) Delete() error {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Session implements models.SessionSource. It returns nil when no token is
// saved or the saved token has expired.
func (s *TokenStore) Session(ctx context.Context) (*models.Credential, error) {
	tf, err := s.Load()
	if err != nil {
		return nil, err
	}
	if tf == nil || tf.Token == "" || tf.IsExpired(0) {
		return nil, nil
	}
	return tf.Credential(), nil
}
