// drivepane server
//
// Features:
// - Google Drive, S3 or local storage behind one JSON file API
// - Google sign-in (OIDC) or a static single-account password login
// - Embedded browser web app with per-request CSP nonces
// - Prometheus metrics & structured logging (zap)
// - Per-session rate limiting
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/drivepane/drivepane/internal/api"
	"github.com/drivepane/drivepane/internal/auth"
	"github.com/drivepane/drivepane/internal/config"
	"github.com/drivepane/drivepane/internal/logging"
	"github.com/drivepane/drivepane/internal/metrics"
	"github.com/drivepane/drivepane/internal/quota"
	"github.com/drivepane/drivepane/internal/storage"
)

func main() {
	// "server hash-password" prints a bcrypt hash for STATIC_PASSWORD_HASH
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		hashPassword()
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("drivepane server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend),
		zap.String("auth", cfg.AuthMode))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize auth
	authHandler := auth.New(auth.Config{
		Secret:       cfg.SessionSecret,
		MaxAge:       cfg.SessionMaxAge,
		CookieSecure: cfg.CookieSecure,
		Mode:         cfg.AuthMode,
	})

	switch cfg.AuthMode {
	case config.AuthOIDC:
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.BaseURL + "/auth/callback",
			Scopes:       cfg.OIDCScopes,
		})
		if err != nil {
			logging.Fatal("OIDC provider init failed", zap.Error(err))
		}
		authHandler.SetOIDCProvider(oidcProvider)
	case config.AuthStatic:
		staticLogin, err := auth.NewStaticLogin(cfg.StaticUsername, cfg.StaticPasswordHash)
		if err != nil {
			logging.Fatal("static login init failed", zap.Error(err))
		}
		authHandler.SetStaticLogin(staticLogin)
	}

	// Initialize storage provider
	provider, err := storage.NewFromConfig(ctx, cfg)
	if err != nil {
		logging.Fatal("storage provider init failed", zap.Error(err))
	}
	defer provider.Close()

	rateLimiter := quota.NewRateLimiter(cfg.RateLimitRPM, nil)
	if rateLimiter.Enabled() {
		logging.Info("rate limiter enabled", zap.Int("rpm", cfg.RateLimitRPM))
	}

	// Create API server
	srv := api.NewServer(provider, authHandler, rateLimiter, cfg)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if useTLS {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	// Start periodic cleanup of idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rateLimiter.Cleanup(24 * time.Hour)
				metrics.SetActiveSessions(authHandler.Store().Count())
			}
		}
	}()

	if useTLS {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		if err := httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Fatal("server error", zap.Error(err))
		}
	}
}

func hashPassword() {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(os.Stderr, "read password:", err)
		os.Exit(1)
	}
	hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
