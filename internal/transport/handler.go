package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-meter-reader/internal/config"
	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/observer"
	"go-meter-reader/internal/service"
	"go-meter-reader/internal/storage"
	"go-meter-reader/pkg/models"
)

// Version is reported by /health.
const Version = "1.0.0"

// Dependencies are the services the HTTP API is built on. Readings may be nil
// when no JWT secret is configured, Previews when previews are not stored.
type Dependencies struct {
	Capture  service.CaptureService
	Readings service.ReadingService
	Previews storage.PreviewStore
	Events   observer.Subject
	Metrics  *observer.MetricsObserver
	Engine   *service.EngineMonitor
}

type handler struct {
	deps       Dependencies
	cfg        *config.Config
	jwtSecret  []byte
	sseClients int64
	heartbeat  time.Duration
}

func NewHandler(deps Dependencies, cfg *config.Config) http.Handler {
	return newRouter(&handler{
		deps:      deps,
		cfg:       cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		heartbeat: 15 * time.Second,
	})
}

func newRouter(h *handler) *gin.Engine {
	r := gin.New()

	// Add middleware
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(h.cfg.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.GET("/health", h.healthCheck)

	v1 := r.Group("/api/v1")
	capture := v1.Group("/capture")
	if h.deps.Readings != nil {
		capture.Use(h.optionalAuth())
	}
	capture.POST("", h.startCapture)
	capture.POST("/once", h.captureOnce)
	capture.DELETE("", h.cancelCapture)
	capture.GET("/events", h.streamEvents)
	capture.GET("/preview", h.preview)
	capture.GET("/live", h.liveFrame)
	capture.GET("/previews/:session_id", h.storedPreview)

	if h.deps.Readings != nil {
		readings := v1.Group("/readings", h.jwtAuth())
		readings.POST("", h.saveReading)
		readings.GET("", h.listReadings)
		readings.GET("/:id", h.getReading)
	}

	return r
}

func (h *handler) healthCheck(c *gin.Context) {
	resp := models.HealthResponse{
		Status:     "available",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    Version,
		Engine:     "unknown",
		Camera:     h.deps.Capture.CameraName(),
		SSEClients: int(atomic.LoadInt64(&h.sseClients)),
	}
	_, resp.Capturing = h.deps.Capture.ActiveSession()
	if h.deps.Engine != nil {
		status, _ := h.deps.Engine.Status()
		resp.Engine = string(status)
	}
	if h.deps.Metrics != nil {
		resp.Metrics = h.deps.Metrics.GetMetrics()
	}
	c.JSON(http.StatusOK, resp)
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
		}).Debug("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last().Err
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	// Check if it's a custom app error first
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	// Fallback to context-based errors
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail responds with the status carried by err.
func fail(c *gin.Context, message string, err error) {
	respondError(c, determineStatusCode(err), message, err)
}

func respondError(c *gin.Context, code int, message string, err error) {
	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	resp := models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Error = string(appErr.Type)
		resp.Details = appErr.Details
	}
	c.AbortWithStatusJSON(code, resp)
}
