package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"go-meter-reader/internal/config"
	"go-meter-reader/internal/container"
	"go-meter-reader/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	// Initialize dependency injection container
	c, err := container.NewContainer(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize container")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	c.WarmUp(ctx)

	// No write timeout: the SSE progress stream stays open until the client
	// leaves or ctx is cancelled on shutdown.
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           c.Handler(),
		ReadTimeout:       cfg.RequestTimeout,
		ReadHeaderTimeout: cfg.RequestTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Start server in a goroutine
	go func() {
		logger.WithFields(logrus.Fields{
			"address":  cfg.ServerAddress(),
			"camera":   cfg.CameraSource,
			"previews": cfg.PreviewStorage,
			"readings": cfg.ReadingsEnabled(),
		}).Info("Starting HTTP server")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stop()

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Cancel the active capture first so its request can return
	if err := c.Close(); err != nil {
		logger.WithError(err).Warn("Failed to release resources")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
