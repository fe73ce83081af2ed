// Package camera owns camera stream acquisition and frame sampling.
package camera

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
)

// Fallback frame size used while a stream has not reported its dimensions.
const (
	FallbackWidth  = 1280
	FallbackHeight = 720
)

// Facing modes.
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// ErrNoStream is returned by CaptureFrame when no stream is attached.
var ErrNoStream = errors.New("camera: no attached stream")

// Frame is a bitmap sampled from the live stream.
type Frame struct {
	Image      *image.NRGBA
	CapturedAt time.Time
}

// Constraints describe the requested stream.
type Constraints struct {
	FacingMode string
}

// DefaultConstraints prefers the rear-facing camera.
func DefaultConstraints() Constraints {
	return Constraints{FacingMode: FacingEnvironment}
}

// Source grants access to a camera.
type Source interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	Name() string
}

// Stream is a live camera feed. Read and Stop may be called concurrently.
type Stream interface {
	// Read returns the current frame.
	Read() (image.Image, error)
	// Dimensions returns the native resolution, or 0, 0 while unknown.
	Dimensions() (width, height int)
	// Stop releases the device. It must be safe to call more than once.
	Stop() error
}

// Surface displays the live stream while a session is open.
type Surface interface {
	Attach(stream Stream)
	Detach()
}

// Session exclusively owns one stream between Open and Close.
type Session struct {
	source      Source
	surface     Surface
	constraints Constraints

	mu     sync.Mutex
	stream Stream
	closed bool
}

// NewSession creates a session on source. A nil surface is allowed.
func NewSession(source Source, surface Surface) *Session {
	return &Session{
		source:      source,
		surface:     surface,
		constraints: DefaultConstraints(),
	}
}

// WithConstraints overrides the stream constraints before Open.
func (s *Session) WithConstraints(c Constraints) *Session {
	s.constraints = c
	return s
}

// Open acquires the stream and attaches it to the surface. Any failure is
// reported as camera_unavailable and leaves nothing attached.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return apperrors.NewCameraUnavailableError("session already closed", nil)
	}
	if s.stream != nil {
		return nil
	}

	stream, err := s.source.Acquire(ctx, s.constraints)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"source": s.source.Name(),
			"facing": s.constraints.FacingMode,
		}).Warn("Camera acquisition failed")
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeCameraUnavailable {
			return appErr
		}
		return apperrors.NewCameraUnavailableError("failed to open camera", err)
	}

	s.stream = stream
	if s.surface != nil {
		s.surface.Attach(stream)
	}
	w, h := stream.Dimensions()
	logger.WithFields(logrus.Fields{
		"source": s.source.Name(),
		"width":  w,
		"height": h,
	}).Info("Camera stream opened")
	return nil
}

// IsOpen reports whether a stream is attached.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// CaptureFrame samples the stream at its native resolution, or at 1280x720
// when the stream has not reported a size yet.
func (s *Session) CaptureFrame() (Frame, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return Frame{}, ErrNoStream
	}

	img, err := stream.Read()
	if err != nil {
		return Frame{}, err
	}
	if img == nil || img.Bounds().Empty() {
		return Frame{}, errors.New("camera: stream produced an empty frame")
	}

	w, h := stream.Dimensions()
	if w <= 0 || h <= 0 {
		w, h = FallbackWidth, FallbackHeight
	}

	var out *image.NRGBA
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		out = imaging.Clone(img)
	} else {
		out = imaging.Resize(img, w, h, imaging.Linear)
	}
	return Frame{Image: out, CapturedAt: time.Now()}, nil
}

// Close stops the stream, detaches the surface and drops the handle. Only the
// first call has an effect; a session that never attached a stream has
// nothing to detach.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}

	err := stream.Stop()
	if err != nil {
		logger.WithError(err).WithField("source", s.source.Name()).Warn("Failed to stop camera stream")
	}
	if s.surface != nil {
		s.surface.Detach()
	}
	logger.WithField("source", s.source.Name()).Debug("Camera session closed")
	return err
}
