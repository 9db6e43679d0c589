// Package auth provides session authentication for the drivepane server:
// signed session tokens, the in-memory session store, Google sign-in and
// the static single-account login.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/models"
	"github.com/drivepane/drivepane/pkg/protocol"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "session_token"
)

// CookieName is the browser session cookie.
const CookieName = "drivepane_session"

const issuer = "drivepane"

// Claims holds session token claims.
type Claims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// Config holds Auth settings.
type Config struct {
	Secret       string
	MaxAge       time.Duration
	CookieSecure bool
	Mode         string // "oidc" or "static"
}

// Auth issues and validates session tokens.
type Auth struct {
	secret       []byte
	maxAge       time.Duration
	cookieSecure bool
	mode         string
	store        *SessionStore
	oidc         *OIDCProvider
	static       *StaticLogin
	now          func() time.Time
}

// New creates a new Auth handler.
func New(cfg Config) *Auth {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return &Auth{
		secret:       []byte(cfg.Secret),
		maxAge:       cfg.MaxAge,
		cookieSecure: cfg.CookieSecure,
		mode:         cfg.Mode,
		store:        NewSessionStore(cfg.MaxAge),
		now:          time.Now,
	}
}

// SetOIDCProvider enables Google sign-in.
func (a *Auth) SetOIDCProvider(p *OIDCProvider) {
	a.oidc = p
}

// SetStaticLogin enables password login.
func (a *Auth) SetStaticLogin(s *StaticLogin) {
	a.static = s
}

// Mode returns the configured auth mode.
func (a *Auth) Mode() string {
	return a.mode
}

// Store returns the session store.
func (a *Auth) Store() *SessionStore {
	return a.store
}

// IssueSession creates a session and returns its signed token.
func (a *Auth) IssueSession(user protocol.User, token *oauth2.Token) (string, Session, error) {
	sess := a.store.Create(user, token)
	claims := &Claims{
		SessionID: sess.ID,
		Username:  user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			Issuer:    issuer,
		},
	}
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		a.store.Delete(sess.ID)
		return "", Session{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, sess, nil
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.SessionID == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Authenticate resolves a session token to its live session.
func (a *Auth) Authenticate(tokenStr string) (Session, error) {
	claims, err := a.validateToken(tokenStr)
	if err != nil {
		return Session{}, err
	}
	sess, ok := a.store.Get(claims.SessionID)
	if !ok {
		return Session{}, fmt.Errorf("session has been revoked or expired")
	}
	return sess, nil
}

// Middleware returns HTTP middleware that requires a live session.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			sendAuthError(w, http.StatusUnauthorized, models.NotAuthenticated)
			return
		}

		sess, err := a.Authenticate(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt("session", false)
			logging.WithContext(r.Context()).Debug("session rejected", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, models.NotAuthenticated)
			return
		}

		ctx := logging.WithUser(r.Context(), sess.User.Username)
		ctx = context.WithValue(ctx, sessionContextKey, sess)
		ctx = context.WithValue(ctx, tokenContextKey, tokenStr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the session stored by Middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(Session)
	return sess, ok
}

// WithSession injects a session into a context.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// RateLimitKey charges requests to the signed-in account.
func RateLimitKey(r *http.Request) string {
	if sess, ok := SessionFromContext(r.Context()); ok {
		return "user:" + sess.User.Username
	}
	return ""
}

// Credential returns the provider credential for the request's session,
// refreshing the OAuth token when it has expired.
func (a *Auth) Credential(ctx context.Context) (*models.Credential, error) {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return nil, models.ErrNotAuthenticated
	}
	cred := &models.Credential{Subject: sess.User.Username}
	if sess.Token == nil {
		return cred, nil
	}
	if a.oidc == nil {
		return nil, models.ErrNotAuthenticated
	}

	tok, err := a.oidc.TokenSource(ctx, sess.Token).Token()
	if err != nil {
		logging.WithContext(ctx).Warn("token refresh failed",
			zap.String("username", sess.User.Username), zap.Error(err))
		a.store.Delete(sess.ID)
		return nil, models.ErrNotAuthenticated
	}
	if tok.AccessToken != sess.Token.AccessToken {
		a.store.UpdateToken(sess.ID, tok)
		logging.WithContext(ctx).Debug("provider token refreshed", zap.String("username", sess.User.Username))
	}
	cred.AccessToken = tok.AccessToken
	return cred, nil
}

// SessionSource adapts Credential to models.SessionSource for one request.
func (a *Auth) SessionSource() models.SessionSource {
	return models.SessionFunc(a.Credential)
}

func (a *Auth) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(a.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Auth) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// HandleSession handles GET /api/auth/session
func (a *Auth) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		sendAuthError(w, http.StatusUnauthorized, models.NotAuthenticated)
		return
	}
	token, _ := r.Context().Value(tokenContextKey).(string)
	writeJSON(w, http.StatusOK, protocol.SessionResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      sess.User,
	})
}

// HandleLogout handles POST /auth/logout
func (a *Auth) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := SessionFromContext(r.Context()); ok {
		a.store.Delete(sess.ID)
		logging.WithContext(r.Context()).Info("signed out", zap.String("username", sess.User.Username))
	}
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, protocol.DeleteResponse{Success: true})
}

func extractToken(r *http.Request) string {
	// Bearer token from Authorization header
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Browser session cookie
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	// Query parameter fallback
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
