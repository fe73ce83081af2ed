package container

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-meter-reader/internal/camera"
	"go-meter-reader/internal/capture"
	"go-meter-reader/internal/config"
	"go-meter-reader/internal/factory"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/observer"
	"go-meter-reader/internal/preprocess"
	"go-meter-reader/internal/recognition"
	"go-meter-reader/internal/recognition/tesseract"
	"go-meter-reader/internal/repository"
	"go-meter-reader/internal/service"
	"go-meter-reader/internal/storage"
	"go-meter-reader/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config         *config.Config
	events         *observer.EventPublisher
	metrics        *observer.MetricsObserver
	engine         *recognition.Adapter
	repository     repository.ReadingRepository
	captureService service.CaptureService
	handler        http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithFactory(cfg, factory.NewComponentFactory())
}

// NewContainerWithFactory builds the graph with custom component factories.
func NewContainerWithFactory(cfg *config.Config, components *factory.ComponentFactory) (*Container, error) {
	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	monitor := service.NewEngineMonitor(events)
	tessCfg := tesseract.DefaultConfig()
	tessCfg.Language = cfg.OCRLanguage
	tessCfg.TessdataPrefix = cfg.TessdataPrefix
	engine := recognition.NewAdapter(
		tesseract.Factory(tessCfg),
		recognition.WithStatusFunc(monitor.StatusFunc()),
	)

	source, err := components.SourceFactory.CreateSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create camera source: %w", err)
	}

	previews, err := components.StorageFactory.CreateStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create preview storage: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := storage.EnsureContainer(ctx, previews); err != nil {
		logger.WithError(err).Warn("Preview container check failed")
	}

	controller := capture.NewController(
		preprocess.NewDefault(),
		engine,
		capture.WithAttemptTimeout(cfg.RecognitionTimeout),
		capture.WithEvents(events),
	)

	opts := []service.CaptureServiceOption{
		service.WithDefaults(cfg.CaptureAttempts, cfg.CapturePacing),
		service.WithPreviewStore(previews),
	}

	c := &Container{
		config:  cfg,
		events:  events,
		metrics: metrics,
		engine:  engine,
	}

	var readings service.ReadingService
	if cfg.ReadingsEnabled() {
		repo, err := components.RepositoryFactory.CreateRepository(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create reading repository: %w", err)
		}
		c.repository = repo
		readings = service.NewReadingService(repo, events)
		opts = append(opts, service.WithReadingService(readings))
	} else {
		logger.Warn("JWT_SECRET not set, readings endpoints are disabled")
	}

	c.captureService = service.NewCaptureService(source, camera.NewLiveView(), controller, opts...)
	c.handler = transport.NewHandler(transport.Dependencies{
		Capture:  c.captureService,
		Readings: readings,
		Previews: previews,
		Events:   events,
		Metrics:  metrics,
		Engine:   monitor,
	}, cfg)

	return c, nil
}

// WarmUp loads the recognition engine in the background so the first capture
// does not pay for it.
func (c *Container) WarmUp(ctx context.Context) {
	go func() {
		start := time.Now()
		if err := c.engine.EnsureInitialized(ctx); err != nil {
			logger.WithError(err).Warn("Recognition engine warm-up failed, will retry on first capture")
			return
		}
		logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Recognition engine warmed up")
	}()
}

// Close cancels any running capture and releases the engine and database.
func (c *Container) Close() error {
	c.captureService.CancelCapture()
	err := c.engine.Close()
	if closer, ok := c.repository.(io.Closer); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Metrics returns the capture metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}
