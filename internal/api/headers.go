package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type nonceKey struct{}

const permissionsPolicy = `camera=(), microphone=(), geolocation=(), interest-cohort=(), ` +
	`fullscreen=(self "https://drive.google.com" "https://docs.google.com"), display-capture=(self)`

// NonceFromContext returns the CSP nonce generated for the request.
func NonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceKey{}).(string)
	return nonce
}

// SecurityHeaders sets the browser hardening headers. The Content-Security-Policy
// is only sent outside development and carries a fresh nonce per request.
func SecurityHeaders(dev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce := base64.StdEncoding.EncodeToString([]byte(uuid.NewString()))
			r = r.WithContext(context.WithValue(r.Context(), nonceKey{}, nonce))

			h := w.Header()
			h.Del("Cross-Origin-Embedder-Policy")
			h.Del("Cross-Origin-Resource-Policy")
			h.Set("Cross-Origin-Opener-Policy", "same-origin-allow-popups")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("X-DNS-Prefetch-Control", "on")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "origin-when-cross-origin")
			if !dev {
				h.Set("Content-Security-Policy", contentSecurityPolicy(nonce))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func contentSecurityPolicy(nonce string) string {
	directives := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-inline' 'unsafe-eval' 'nonce-" + nonce + "' https://*.google.com https://apis.google.com https://accounts.google.com https://*.googleusercontent.com",
		"style-src 'self' 'unsafe-inline' https://*.googleapis.com https://*.google.com https://*.googleusercontent.com",
		"img-src 'self' blob: data: https://*.google.com https://*.googleusercontent.com https://drive.google.com https://www.gstatic.com https://*.docs.google.com",
		"frame-src 'self' blob: data: https://drive.google.com https://*.google.com https://docs.google.com https://accounts.google.com https://sheets.google.com https://docs.googleusercontent.com",
		"connect-src 'self' https: https://*.google.com https://apis.google.com https://www.googleapis.com https://accounts.google.com https://sheets.googleapis.com https://*.googleusercontent.com",
		"font-src 'self' https://fonts.gstatic.com",
		"object-src 'self' blob: data:",
		"media-src 'self' blob: data: https://*.google.com https://*.googleusercontent.com",
	}
	return strings.Join(directives, "; ")
}
