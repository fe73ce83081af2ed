// Package capture runs the multi-attempt auto-capture loop: sample a frame,
// preprocess it, recognize it, score it and keep the best reading.
package capture

import (
	"context"
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"go-meter-reader/internal/camera"
	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
	"go-meter-reader/internal/observer"
	"go-meter-reader/internal/preprocess"
	"go-meter-reader/internal/quality"
	"go-meter-reader/internal/recognition"
	"go-meter-reader/internal/scoring"
)

// Defaults for a capture run.
const (
	DefaultAttempts       = 5
	DefaultPacing         = 300 * time.Millisecond
	DefaultAttemptTimeout = 10 * time.Second
)

// Status is the terminal state of a run.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusNoMatch   Status = "no_match"
	StatusCancelled Status = "cancelled"
)

// Outcome is the result of a run. NoMatch and Cancelled are normal outcomes,
// not errors.
type Outcome struct {
	SessionID   string
	Status      Status
	Value       string
	RawText     string
	Score       float64
	Attempts    int
	BestAttempt int
	Frame       *preprocess.ProcessedFrame
	Guidance    string
	Quality     []quality.Report
	Duration    time.Duration
}

// FrameSource is the part of a camera session the controller drives.
type FrameSource interface {
	CaptureFrame() (camera.Frame, error)
	Close() error
}

// Recognizer is the shared recognition engine.
type Recognizer interface {
	EnsureInitialized(ctx context.Context) error
	Recognize(ctx context.Context, img image.Image) (recognition.Result, error)
}

// Controller orchestrates capture attempts. A Controller holds no per-run
// state and may be reused; the caller ensures only one run uses a camera and
// engine at a time.
type Controller struct {
	preprocessor   *preprocess.Preprocessor
	engine         Recognizer
	assessor       *quality.Assessor
	events         observer.Subject
	attemptTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithAttemptTimeout bounds each recognition call; a slow call is abandoned
// and scored as zero.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithEvents publishes progress events to subject.
func WithEvents(subject observer.Subject) Option {
	return func(c *Controller) { c.events = subject }
}

// WithAssessor replaces the frame quality assessor.
func WithAssessor(a *quality.Assessor) Option {
	return func(c *Controller) { c.assessor = a }
}

// NewController creates a controller.
func NewController(pre *preprocess.Preprocessor, engine Recognizer, opts ...Option) *Controller {
	c := &Controller{
		preprocessor:   pre,
		engine:         engine,
		assessor:       quality.NewAssessor(),
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type runConfig struct {
	sessionID string
	onBest    func(attempt int, c scoring.Candidate)
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithSessionID tags events and logs of the run.
func WithSessionID(id string) RunOption {
	return func(rc *runConfig) { rc.sessionID = id }
}

// WithBestHandler is called synchronously whenever the best candidate changes.
func WithBestHandler(fn func(attempt int, c scoring.Candidate)) RunOption {
	return func(rc *runConfig) { rc.onBest = fn }
}

// Run performs up to attempts recognition attempts on session, waiting pacing
// between them, and returns the best reading or a no-match outcome. The
// session is closed on every path. Cancelling ctx stops the run; a recognition
// result arriving after cancellation is discarded.
//
// Engine unavailability is returned as an error before any attempt. Frame
// capture failure ends the loop early; recognition failures score zero.
func (c *Controller) Run(ctx context.Context, session FrameSource, attempts int, pacing time.Duration, opts ...RunOption) (*Outcome, error) {
	defer session.Close()

	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	log := logger.WithSession(rc.sessionID)
	start := time.Now()

	if attempts < 1 {
		return nil, apperrors.NewValidationError("attempts must be at least 1", nil)
	}
	if pacing < 0 {
		return nil, apperrors.NewValidationError("pacing must not be negative", nil)
	}

	if err := c.engine.EnsureInitialized(ctx); err != nil {
		c.publish(ctx, observer.CaptureEvent{
			EventType: observer.CaptureFailed,
			SessionID: rc.sessionID,
			Message:   err.Error(),
		})
		return nil, err
	}

	c.publish(ctx, observer.CaptureEvent{
		EventType: observer.CaptureStarted,
		SessionID: rc.sessionID,
		Total:     attempts,
		Success:   true,
	})

	var (
		best      scoring.Best
		reports   []quality.Report
		performed int
		cancelled bool
	)

	for i := 1; i <= attempts; i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		frame, err := session.CaptureFrame()
		if err != nil {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			log.WithError(err).WithField("attempt", i).Warn("Frame capture failed, ending capture")
			c.publish(ctx, observer.CaptureEvent{
				EventType: observer.AttemptFailed,
				SessionID: rc.sessionID,
				Attempt:   i,
				Total:     attempts,
				Message:   "frame capture failed: " + err.Error(),
			})
			break
		}
		performed = i

		report := c.assessor.Assess(frame.Image)
		reports = append(reports, report)

		candidate, err := c.attempt(ctx, frame)
		improved := false
		if ctx.Err() != nil {
			// The run was cancelled while recognizing: drop the result.
			cancelled = true
			break
		}

		event := observer.CaptureEvent{
			EventType: observer.AttemptCompleted,
			SessionID: rc.sessionID,
			Attempt:   i,
			Total:     attempts,
			Metadata: map[string]interface{}{
				"brightness": report.Brightness,
				"sharpness":  report.Sharpness,
			},
		}
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": i,
				"kind":    apperrors.KindOf(err),
			}).Warn("Capture attempt scored as zero")
			event.EventType = observer.AttemptFailed
			event.Message = err.Error()
		} else {
			event.Success = candidate.Matched()
			event.Score = candidate.Score
			event.Number = candidate.Number
			if candidate.Frame != nil {
				event.Metadata["threshold"] = candidate.Frame.Threshold
			}
			improved = best.Offer(i, candidate)
			event.Metadata["preview_updated"] = improved
		}
		c.publish(ctx, event)

		if improved {
			if rc.onBest != nil {
				rc.onBest(i, candidate)
			}
			c.publish(ctx, observer.CaptureEvent{
				EventType: observer.BestUpdated,
				SessionID: rc.sessionID,
				Attempt:   i,
				Total:     attempts,
				Score:     candidate.Score,
				Number:    candidate.Number,
				Success:   true,
			})
		}

		if i < attempts && !sleep(ctx, pacing) {
			cancelled = true
			break
		}
	}

	out := &Outcome{
		SessionID: rc.sessionID,
		Attempts:  performed,
		Quality:   reports,
		Duration:  time.Since(start),
	}

	winner := best.Candidate()
	switch {
	case cancelled:
		out.Status = StatusCancelled
		c.publish(ctx, observer.CaptureEvent{
			EventType: observer.CaptureCancelled,
			SessionID: rc.sessionID,
			Attempt:   performed,
			Total:     attempts,
			Duration:  out.Duration,
		})
	case winner.Matched():
		out.Status = StatusMatched
		out.Value = winner.Number
		out.RawText = winner.RawText
		out.Score = winner.Score
		out.Frame = winner.Frame
		out.BestAttempt = best.Attempt()
		c.publish(ctx, observer.CaptureEvent{
			EventType: observer.CaptureMatched,
			SessionID: rc.sessionID,
			Attempt:   out.BestAttempt,
			Total:     attempts,
			Score:     out.Score,
			Number:    out.Value,
			Duration:  out.Duration,
			Success:   true,
		})
	default:
		out.Status = StatusNoMatch
		out.Guidance = quality.Guidance(reports)
		c.publish(ctx, observer.CaptureEvent{
			EventType: observer.CaptureNoMatch,
			SessionID: rc.sessionID,
			Attempt:   performed,
			Total:     attempts,
			Duration:  out.Duration,
			Message:   out.Guidance,
		})
	}
	return out, nil
}

// attempt preprocesses and recognizes one frame under the attempt timeout.
func (c *Controller) attempt(ctx context.Context, frame camera.Frame) (scoring.Candidate, error) {
	processed, err := c.preprocessor.Process(frame.Image)
	if err != nil {
		return scoring.Candidate{}, err
	}

	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	result, err := c.engine.Recognize(actx, processed.Image)
	if err != nil {
		return scoring.Candidate{}, err
	}

	candidate := scoring.Score(result)
	candidate.Frame = processed
	return candidate, nil
}

func (c *Controller) publish(ctx context.Context, event observer.CaptureEvent) {
	if c.events == nil {
		return
	}
	c.events.NotifyObservers(context.WithoutCancel(ctx), event)
}

// sleep waits d or until ctx is done; it reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
