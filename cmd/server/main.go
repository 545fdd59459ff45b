package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/web-terminal/backend/api/handlers"
	"github.com/web-terminal/backend/internal/config"
	"github.com/web-terminal/backend/internal/db"
	"github.com/web-terminal/backend/internal/logging"
	"github.com/web-terminal/backend/internal/monitoring"
	"github.com/web-terminal/backend/internal/pty"
	"github.com/web-terminal/backend/internal/repository"
	"github.com/web-terminal/backend/internal/session"
	"github.com/web-terminal/backend/internal/shell"
	"github.com/web-terminal/backend/internal/ws"
)

func main() {
	// A .env file is optional; real environments set variables directly.
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return err
	}

	database, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	metrics := monitoring.NewMetrics()

	sessionRepo := repository.NewSessionRepository(database)
	historyRepo := repository.NewHistoryRepository(database, cfg.Session.HistoryLimit)

	ptyManager := pty.NewManager()
	ptyManager.RingBufferSize = cfg.Session.RingBufferSize
	defer ptyManager.Close()

	wsHandler := ws.NewHandler(ws.NewHubManager(), ptyManager, metrics, log)
	wsService := ws.NewService(ptyManager, wsHandler, sessionRepo, log)
	defer wsService.Close()

	sessionManager, err := session.NewManager(ptyManager, sessionRepo, wsService, session.Config{
		RecordingDir:       cfg.Storage.RecordingDir,
		MaxSessionsPerUser: cfg.Session.MaxPerUser,
		IdleTimeout:        cfg.Session.IdleTimeout,
		DefaultShell:       defaultShell(cfg.Session.DefaultShell),
	}, log, metrics)
	if err != nil {
		return err
	}
	defer sessionManager.Close()

	wsService.SetOnStatusChange(sessionManager.HandleStatusChange)
	sessionManager.StartReaper(ctx)

	interpreters := shell.NewRegistry(historyRepo)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
	}))
	router.Use(monitoring.Middleware(metrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		handlers.NewSessionHandler(sessionManager, log).RegisterRoutes(api)
		handlers.NewWebSocketHandler(sessionManager, wsHandler, log).RegisterRoutes(api)
		handlers.NewExecHandler(interpreters, historyRepo, cfg.RateLimit, metrics).RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// defaultShell picks the session command used when a request names none.
func defaultShell(configured string) string {
	if configured != "" {
		return configured
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}
