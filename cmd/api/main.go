package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"jotter/api/internal/app"
	"jotter/api/internal/authpw"
	"jotter/api/internal/avatars"
	"jotter/api/internal/config"
	"jotter/api/internal/session"
	"jotter/api/internal/store"
	"jotter/api/internal/summary"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	identity := authpw.NewService(dataStore, authpw.OAuthConfig{
		TokenURL:     cfg.OAuthTokenURL,
		UserInfoURL:  cfg.OAuthUserInfoURL,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Provider:     "oauth",
	})

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, identity)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, dataStore, identity)
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		avatarStore, err := avatars.New(avatars.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.AvatarsBucket,
			BaseURL:   cfg.AvatarsBaseURL,
		})
		if err != nil {
			log.Fatalf("avatar storage init failed: %v", err)
		}
		if err := avatarStore.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: avatars bucket not ready (uploads will fail): %v", err)
		}
		service.SetAvatarStore(avatarStore)
	} else {
		log.Printf("Avatar storage not configured, uploads disabled")
	}

	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		service.SetSummarizer(summary.New(cfg.AnthropicAPIKey, cfg.SummaryModel))
	} else {
		log.Printf("Summarization not configured, /api/summary disabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Jotter API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
