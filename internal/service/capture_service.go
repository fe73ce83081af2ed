// Package service coordinates capture runs and reading persistence for the
// transport layer.
package service

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-meter-reader/internal/camera"
	"go-meter-reader/internal/capture"
	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/quality"
	"go-meter-reader/internal/scoring"
	"go-meter-reader/internal/storage"
	"go-meter-reader/pkg/models"
)

// CaptureRequest configures an auto-capture run.
type CaptureRequest struct {
	Attempts int
	// Pacing between attempts; nil selects the configured default.
	Pacing   *time.Duration
	AutoSave bool
	UserID   string
	Offline  bool
}

// CaptureService runs at most one capture at a time.
type CaptureService interface {
	// StartAutoCapture runs a multi-attempt capture and returns its outcome
	StartAutoCapture(ctx context.Context, req CaptureRequest) (*models.CaptureResult, error)

	// CaptureOnce runs a single attempt without pacing
	CaptureOnce(ctx context.Context) (*models.CaptureResult, error)

	// CancelCapture stops the active run; false when nothing is running
	CancelCapture() bool

	// ActiveSession returns the id of the running capture, if any
	ActiveSession() (string, bool)

	// Preview returns the PNG of the best processed frame of the latest run
	Preview() ([]byte, bool)

	// LiveFrame samples the camera while a session is open
	LiveFrame() (image.Image, error)

	// CameraName identifies the configured camera source
	CameraName() string
}

type activeRun struct {
	id      string
	cancel  context.CancelFunc
	session *camera.Session
}

type captureService struct {
	source     camera.Source
	view       *camera.LiveView
	controller *capture.Controller
	readings   ReadingService
	previews   storage.PreviewStore

	attempts int
	pacing   time.Duration

	mu     sync.Mutex
	active *activeRun

	previewMu sync.RWMutex
	preview   []byte
}

// CaptureServiceOption configures the capture service.
type CaptureServiceOption func(*captureService)

// WithDefaults sets the attempt budget and pacing used when a request leaves
// them unset.
func WithDefaults(attempts int, pacing time.Duration) CaptureServiceOption {
	return func(s *captureService) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if pacing >= 0 {
			s.pacing = pacing
		}
	}
}

// WithPreviewStore uploads the winning preview of matched runs.
func WithPreviewStore(store storage.PreviewStore) CaptureServiceOption {
	return func(s *captureService) { s.previews = store }
}

// WithReadingService enables auto-save of matched readings.
func WithReadingService(readings ReadingService) CaptureServiceOption {
	return func(s *captureService) { s.readings = readings }
}

// NewCaptureService creates a capture service over one camera source.
func NewCaptureService(
	source camera.Source,
	view *camera.LiveView,
	controller *capture.Controller,
	opts ...CaptureServiceOption,
) CaptureService {
	s := &captureService{
		source:     source,
		view:       view,
		controller: controller,
		attempts:   capture.DefaultAttempts,
		pacing:     capture.DefaultPacing,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *captureService) StartAutoCapture(ctx context.Context, req CaptureRequest) (*models.CaptureResult, error) {
	attempts := req.Attempts
	if attempts == 0 {
		attempts = s.attempts
	}
	pacing := s.pacing
	if req.Pacing != nil {
		pacing = *req.Pacing
	}
	if attempts < 1 {
		return nil, apperrors.NewValidationError("attempts must be at least 1", nil)
	}
	if pacing < 0 {
		return nil, apperrors.NewValidationError("pacing must not be negative", nil)
	}
	if req.AutoSave && s.readings == nil {
		return nil, apperrors.NewValidationError("auto-save is not available", nil).
			WithDetails("reading persistence is not configured")
	}
	if req.AutoSave && req.UserID == "" {
		return nil, apperrors.NewUnauthorizedError("a signed-in user is required to auto-save readings", nil)
	}

	runCtx, run, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.finish(run)

	log := logger.WithSession(run.id).WithFields(logrus.Fields{
		"attempts": attempts,
		"pacing":   pacing.String(),
		"source":   s.source.Name(),
	})
	log.Info("Starting auto-capture")

	if err := run.session.Open(runCtx); err != nil {
		run.session.Close()
		if runCtx.Err() != nil {
			return &models.CaptureResult{SessionID: run.id, Status: string(capture.StatusCancelled)}, nil
		}
		return nil, err
	}

	outcome, err := s.controller.Run(runCtx, run.session, attempts, pacing,
		capture.WithSessionID(run.id),
		capture.WithBestHandler(s.rememberBest),
	)
	if err != nil {
		log.WithError(err).Warn("Auto-capture aborted")
		return nil, err
	}

	result := toResult(outcome)
	log.WithFields(logrus.Fields{
		"status": result.Status,
		"value":  result.Value,
		"score":  result.Score,
	}).Info("Auto-capture finished")

	if outcome.Status != capture.StatusMatched {
		return result, nil
	}

	if s.previews != nil {
		if png, ok := s.Preview(); ok {
			location, err := s.previews.Put(ctx, storage.PreviewName(run.id), png)
			if err != nil {
				log.WithError(err).Warn("Failed to store capture preview")
			} else {
				result.PreviewURL = location
			}
		}
	}

	if req.AutoSave {
		reading, err := s.readings.Save(ctx, req.UserID, outcome.Value, req.Offline,
			FromCapture(run.id, outcome.RawText))
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return nil, appErr.WithDetails("recognized value: " + outcome.Value)
			}
			return nil, err
		}
		result.Reading = reading
	}
	return result, nil
}

func (s *captureService) CaptureOnce(ctx context.Context) (*models.CaptureResult, error) {
	noPause := time.Duration(0)
	return s.StartAutoCapture(ctx, CaptureRequest{Attempts: 1, Pacing: &noPause})
}

// begin claims the capture slot. A second caller gets capture_in_progress.
func (s *captureService) begin(ctx context.Context) (context.Context, *activeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, nil, apperrors.NewCaptureInProgressError(s.active.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &activeRun{
		id:      uuid.NewString(),
		cancel:  cancel,
		session: camera.NewSession(s.source, s.view),
	}
	s.active = run

	s.previewMu.Lock()
	s.preview = nil
	s.previewMu.Unlock()

	return runCtx, run, nil
}

func (s *captureService) finish(run *activeRun) {
	run.cancel()
	s.mu.Lock()
	if s.active == run {
		s.active = nil
	}
	s.mu.Unlock()
}

func (s *captureService) CancelCapture() bool {
	s.mu.Lock()
	run := s.active
	s.mu.Unlock()
	if run == nil {
		return false
	}

	run.cancel()
	// Release the camera right away rather than after the in-flight attempt.
	run.session.Close()
	logger.WithSession(run.id).Info("Auto-capture cancelled")
	return true
}

func (s *captureService) ActiveSession() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.id, true
}

func (s *captureService) rememberBest(attempt int, c scoring.Candidate) {
	if c.Frame == nil {
		return
	}
	png, err := c.Frame.PNG()
	if err != nil {
		logger.WithError(err).WithField("attempt", attempt).Warn("Failed to encode preview")
		return
	}
	s.previewMu.Lock()
	s.preview = png
	s.previewMu.Unlock()
}

func (s *captureService) Preview() ([]byte, bool) {
	s.previewMu.RLock()
	defer s.previewMu.RUnlock()
	if s.preview == nil {
		return nil, false
	}
	out := make([]byte, len(s.preview))
	copy(out, s.preview)
	return out, true
}

func (s *captureService) LiveFrame() (image.Image, error) {
	img, err := s.view.Snapshot()
	if errors.Is(err, camera.ErrNoStream) {
		return nil, apperrors.NewNotFoundError("no camera session is open", err)
	}
	return img, err
}

func (s *captureService) CameraName() string {
	return s.source.Name()
}

func toResult(o *capture.Outcome) *models.CaptureResult {
	r := &models.CaptureResult{
		SessionID:   o.SessionID,
		Status:      string(o.Status),
		Value:       o.Value,
		RawText:     o.RawText,
		Score:       o.Score,
		Attempts:    o.Attempts,
		BestAttempt: o.BestAttempt,
		Guidance:    o.Guidance,
		DurationMs:  o.Duration.Milliseconds(),
	}
	for _, q := range o.Quality {
		r.Quality = append(r.Quality, toFrameQuality(q))
	}
	return r
}

func toFrameQuality(q quality.Report) models.FrameQuality {
	return models.FrameQuality{
		Brightness:  q.Brightness,
		Contrast:    q.Contrast,
		Sharpness:   q.Sharpness,
		Dark:        q.Dark,
		Overexposed: q.Overexposed,
		Blurry:      q.Blurry,
	}
}
