// BrowserTeacher - session and lesson state backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/browserteacher/browserteacher/internal/api"
	"github.com/browserteacher/browserteacher/internal/browser"
	"github.com/browserteacher/browserteacher/internal/config"
	"github.com/browserteacher/browserteacher/internal/live"
	"github.com/browserteacher/browserteacher/internal/middleware"
	"github.com/browserteacher/browserteacher/internal/store"
	"github.com/browserteacher/browserteacher/internal/voice"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	provisioner := browser.NewClient(cfg.Browser)

	// Voice token issuance is optional; without credentials the endpoint
	// reports unavailable and the rest of the API works normally.
	var issuer *voice.Issuer
	if cfg.VoiceEnabled() {
		issuer = voice.NewIssuer(cfg.Voice)
		slog.Info("Voice token issuance enabled", "agent", cfg.Voice.AgentName)
	} else {
		slog.Info("Voice token issuance disabled (LIVEKIT_API_KEY/LIVEKIT_API_SECRET not set)")
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg)
	sessionHandler := api.NewSessionHandler(baseHandler, provisioner)
	lessonHandler := api.NewLessonHandler(baseHandler)
	messagesHandler := api.NewMessagesHandler(baseHandler)
	voiceHandler := api.NewVoiceHandler(baseHandler, issuer)
	healthHandler := api.NewHealthHandler(repo)
	feed := live.NewFeed(repo, cfg.FeedPollInterval, cfg.ChatHistoryLimit)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	lessonHandler.RegisterRoutes(r)
	messagesHandler.RegisterRoutes(r)
	voiceHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/messages", feed.ServeHTTP)

	// Create server. The message feed holds connections open, so no write
	// timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
