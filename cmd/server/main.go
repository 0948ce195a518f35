package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dzhang30/DZbot/internal/command"
	"github.com/dzhang30/DZbot/internal/config"
	"github.com/dzhang30/DZbot/internal/handlers"
	"github.com/dzhang30/DZbot/internal/hipchat"
	"github.com/dzhang30/DZbot/internal/middleware"
	"github.com/dzhang30/DZbot/internal/pagerduty"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	pd := pagerduty.NewClient(cfg, logger)
	chat := hipchat.NewClient(cfg, logger)
	dispatcher := command.NewDispatcher(pd, logger)
	monitor := pagerduty.NewMonitor(pd, chat, cfg, logger)

	router := setupRouter(cfg, logger, dispatcher, chat, monitor)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}

	logger.Info("server exiting")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func setupRouter(cfg *config.Config, logger *zap.Logger, dispatcher *command.Dispatcher, chat *hipchat.Client, monitor *pagerduty.Monitor) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	webhookHandler := handlers.NewWebhookHandler(dispatcher, chat, logger)
	router.POST("/", webhookHandler.Receive)
	router.GET("/capability-descriptor", webhookHandler.Descriptor)

	monitorHandler := handlers.NewMonitorHandler(monitor)
	router.GET("/monitor-pager-duty", monitorHandler.Run)

	return router
}
