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

	"tokenforge/api/internal/app"
	"tokenforge/api/internal/authpw"
	"tokenforge/api/internal/config"
	"tokenforge/api/internal/draft"
	"tokenforge/api/internal/export"
	"tokenforge/api/internal/genai"
	"tokenforge/api/internal/history"
	"tokenforge/api/internal/search"
	"tokenforge/api/internal/session"
	"tokenforge/api/internal/store"
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

	pgStore := store.NewPostgresStore(db)

	// Drafts and refresh sessions share a backend: Postgres by default,
	// Redis when TOKENFORGE_REDIS_URL is set.
	var drafts draft.Store = pgStore
	var sessions app.SessionStore = pgStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for drafts and refresh sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		drafts = redisStore
		sessions = redisStore
	}

	var gateway genai.Gateway
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		gateway = genai.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		log.Printf("No OpenAI key configured, generation runs against canned content")
		gateway = genai.NewCannedGateway()
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	var historyService *history.Service
	if strings.TrimSpace(cfg.HistoryDir) != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			log.Fatalf("failed to create history dir: %v", err)
		}
		historyService = history.New(cfg.HistoryDir)
	}

	var archive *export.Archive
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err = export.NewArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("report archive connection failed: %v", err)
		}
	}

	service := app.New(cfg, app.Options{
		Drafts:   drafts,
		Sessions: sessions,
		Gateway:  gateway,
		Search:   searchService,
		History:  historyService,
		Exports:  export.NewService(archive),
		AuthPW:   authpw.NewService(pgStore),
		Adopter:  pgStore,
		Pinger:   pgStore,
	})

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
		log.Printf("TokenForge API listening on %s", cfg.Addr)
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
