package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/seyyidi/ravenchat/internal/api"
	"github.com/seyyidi/ravenchat/internal/cache"
	"github.com/seyyidi/ravenchat/internal/config"
	"github.com/seyyidi/ravenchat/internal/knowledge"
	"github.com/seyyidi/ravenchat/internal/repository"
	"github.com/seyyidi/ravenchat/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Empty storage paths mean a per-process workspace; transcripts and the
	// vector store then live only as long as the process.
	workspace := ""
	if cfg.Storage.Dir == "" || cfg.Database.Path == "" {
		workspace, err = os.MkdirTemp("", "ravenchat-")
		if err != nil {
			logger.Fatal("Failed to create workspace", zap.Error(err))
		}
		defer os.RemoveAll(workspace)
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = filepath.Join(workspace, "knowledge")
		if err := os.MkdirAll(cfg.Storage.Dir, 0755); err != nil {
			logger.Fatal("Failed to create storage directory", zap.Error(err))
		}
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(workspace, "sessions.db")
	}

	// Initialize transcript database
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	sessionRepo := repository.NewSessionRepository(db)

	// Initialize the knowledge orchestrator (rago: embedder, vector store, agent)
	orchestrator, err := knowledge.New(cfg, cfg.Storage.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize knowledge base", zap.Error(err))
	}
	defer orchestrator.Close()

	// Process-wide response cache shared by all sessions
	responseCache := cache.New(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.TTLSeconds)*time.Second)

	sessions := service.NewSessionService(cfg, sessionRepo, orchestrator, responseCache, logger)

	// Setup router
	router := api.SetupRouter(sessions, api.RouterConfig{
		AllowOrigins: []string{"*"},
	})

	// Create HTTP server. The write timeout is generous because chat
	// responses stream for the duration of a model call.
	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting ravenchat server",
			zap.String("address", cfg.Address()),
			zap.String("base_url", cfg.Server.BaseURL),
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
