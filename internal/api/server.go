// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/auth"
	"github.com/drivepane/drivepane/internal/config"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/internal/quota"
	"github.com/drivepane/drivepane/internal/storage"
	"github.com/drivepane/drivepane/pkg/models"
	"github.com/drivepane/drivepane/pkg/protocol"
	"github.com/drivepane/drivepane/webapp"
)

// Server is the HTTP server.
type Server struct {
	provider    storage.Provider
	auth        *auth.Auth
	rateLimiter *quota.RateLimiter
	config      *config.Config
	assets      fs.FS
}

// NewServer creates a new server.
func NewServer(provider storage.Provider, authHandler *auth.Auth, rateLimiter *quota.RateLimiter, cfg *config.Config) *Server {
	return &Server{
		provider:    provider,
		auth:        authHandler,
		rateLimiter: rateLimiter,
		config:      cfg,
		assets:      webapp.Assets,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no auth required)
	s.public(mux, "GET /health", s.handleHealth)
	s.public(mux, "GET /api/config", s.handleConfig)
	s.public(mux, "GET /auth/login", s.auth.HandleOIDCLogin)
	s.public(mux, "GET /auth/callback", s.auth.HandleOIDCCallback)
	s.public(mux, "POST /api/auth/token", s.auth.HandleLogin)

	// Web app (no auth, the app signs in through the API)
	// WEBAPP_DIR overrides embedded assets for live-reload during development
	if dir := s.config.WebappDir; dir != "" {
		logging.Info("serving webapp from disk", zap.String("dir", dir))
		s.assets = os.DirFS(dir)
	}
	mux.Handle("GET /app/", metrics.Middleware(http.StripPrefix("/app/", http.FileServer(http.FS(s.assets)))))
	s.public(mux, "GET /app/{$}", s.handleAppIndex)
	s.public(mux, "GET /app", redirectToApp)
	s.public(mux, "GET /{$}", redirectToApp)

	// Protected endpoints
	s.protected(mux, "POST /auth/logout", s.auth.HandleLogout)
	s.protected(mux, "GET /api/auth/session", s.auth.HandleSession)

	s.protected(mux, "GET /api/drive", s.handleList)
	s.protected(mux, "POST /api/drive", s.handleUpload)
	s.protected(mux, "GET /api/drive/{fileId}", s.handleContent)
	s.protected(mux, "GET /api/drive/{fileId}/metadata", s.handleMetadata)
	s.protected(mux, "DELETE /api/drive/{fileId}", s.handleDelete)

	// Apply middleware: security headers -> logging -> mux
	var handler http.Handler = mux
	handler = logging.Middleware(handler)
	handler = SecurityHeaders(s.config.IsDevelopment())(handler)
	return handler
}

// public registers a route with metrics only. Metrics sit below the mux so
// that requests are labelled by their matched pattern.
func (s *Server) public(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, metrics.Middleware(h))
}

// protected registers a route behind session auth and the rate limiter.
func (s *Server) protected(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.rateLimiter != nil && s.rateLimiter.Enabled() {
		handler = quota.RateLimitMiddleware(s.rateLimiter, auth.RateLimitKey)(handler)
	}
	handler = s.auth.Middleware(handler)
	mux.Handle(pattern, metrics.Middleware(handler))
}

func redirectToApp(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/app/", http.StatusMovedPermanently)
}

// handleAppIndex renders index.html with the request's CSP nonce.
func (s *Server) handleAppIndex(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(s.assets, "index.html")
	if err != nil {
		logging.WithContext(r.Context()).Error("failed to load webapp index", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "web app unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := tmpl.Execute(w, struct{ Nonce string }{NonceFromContext(r.Context())}); err != nil {
		logging.WithContext(r.Context()).Warn("failed to render webapp index", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.ConfigResponse{
		MaxFileSize:  s.config.MaxFileSize,
		FilesPerPage: s.config.FilesPerPage,
		Provider:     s.provider.Type(),
		AuthMode:     s.auth.Mode(),
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// sendOpError writes err with the status its taxonomy class maps to.
func (s *Server) sendOpError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := protocol.StatusCode(err)
	msg := err.Error()
	switch {
	case models.IsAuth(err):
		msg = models.NotAuthenticated
	case code >= http.StatusInternalServerError:
		logging.WithContext(r.Context()).Error(op+" failed", zap.Error(err))
		s.sendJSON(w, code, protocol.ErrorResponse{Error: msg, Code: code, RequestID: logging.RequestID(r.Context())})
		return
	default:
		logging.WithContext(r.Context()).Debug(op+" rejected", zap.Error(err))
	}
	s.sendError(w, code, msg)
}
