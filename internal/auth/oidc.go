package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/pkg/protocol"
)

const (
	stateCookieName = "drivepane_oauth_state"
	stateMaxAge     = 10 * time.Minute
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL    string // e.g. https://accounts.google.com
	ClientID     string
	ClientSecret string
	RedirectURL  string // BASE_URL + /auth/callback
	Scopes       []string
}

// OIDCProvider runs the authorization-code flow and verifies ID tokens.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// NewOIDCProvider discovers the issuer and creates an OIDC provider.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return NewOIDCProviderWith(
		provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		&oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	), nil
}

// NewOIDCProviderWith builds a provider from an explicit verifier and OAuth
// client, skipping discovery.
func NewOIDCProviderWith(verifier *oidc.IDTokenVerifier, oauth *oauth2.Config) *OIDCProvider {
	return &OIDCProvider{verifier: verifier, oauth: oauth}
}

// AuthCodeURL returns the consent URL. Offline access with forced consent
// makes Google return a refresh token on every sign-in.
func (o *OIDCProvider) AuthCodeURL(state string) string {
	return o.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// TokenSource returns a source that refreshes tok when it expires.
func (o *OIDCProvider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return o.oauth.TokenSource(ctx, tok)
}

// Exchange trades an authorization code for tokens and verifies the ID
// token that comes with them.
func (o *OIDCProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, protocol.User, error) {
	tok, err := o.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, protocol.User{}, fmt.Errorf("exchange code: %w", err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, protocol.User{}, fmt.Errorf("token response has no id_token")
	}
	idToken, err := o.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, protocol.User{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
		Name              string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, protocol.User{}, fmt.Errorf("parse oidc claims: %w", err)
	}

	// Determine username: prefer email, fallback to preferred_username, then sub
	username := claims.Email
	if username == "" {
		username = claims.PreferredUsername
	}
	if username == "" {
		username = claims.Sub
	}

	return tok, protocol.User{Username: username, Email: claims.Email, Name: claims.Name}, nil
}

// HandleOIDCLogin handles GET /auth/login
func (a *Auth) HandleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	if a.oidc == nil {
		sendAuthError(w, http.StatusNotFound, "sign-in with Google is not enabled")
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int(stateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.oidc.AuthCodeURL(state), http.StatusFound)
}

// HandleOIDCCallback handles GET /auth/callback
func (a *Auth) HandleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	if a.oidc == nil {
		sendAuthError(w, http.StatusNotFound, "sign-in with Google is not enabled")
		return
	}
	logger := logging.WithContext(r.Context())

	if e := r.URL.Query().Get("error"); e != "" {
		metrics.RecordAuthAttempt("oidc", false)
		logger.Warn("sign-in refused by provider", zap.String("error", e))
		sendAuthError(w, http.StatusUnauthorized, "sign-in was cancelled")
		return
	}

	c, err := r.Cookie(stateCookieName)
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		metrics.RecordAuthAttempt("oidc", false)
		sendAuthError(w, http.StatusBadRequest, "invalid sign-in state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth/", MaxAge: -1})

	tok, user, err := a.oidc.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		metrics.RecordAuthAttempt("oidc", false)
		logger.Warn("sign-in failed", zap.Error(err))
		sendAuthError(w, http.StatusUnauthorized, "sign-in failed")
		return
	}

	tokenStr, sess, err := a.IssueSession(user, tok)
	if err != nil {
		logger.Error("failed to issue session", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	metrics.RecordAuthAttempt("oidc", true)
	logger.Info("signed in", zap.String("username", user.Username))
	a.setSessionCookie(w, tokenStr, sess.ExpiresAt)
	http.Redirect(w, r, "/app/", http.StatusFound)
}
