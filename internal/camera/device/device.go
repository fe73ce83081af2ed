// Package device reads frames from a local webcam through OpenCV.
package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"go-meter-reader/internal/camera"
	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
)

// Source opens a V4L2/AVFoundation/DirectShow device by index.
type Source struct {
	deviceID int
}

// NewSource creates a webcam source for the given device index.
func NewSource(deviceID int) *Source {
	return &Source{deviceID: deviceID}
}

// Name implements camera.Source.
func (s *Source) Name() string { return fmt.Sprintf("device:%d", s.deviceID) }

// Acquire opens the device. OpenCV cannot select a facing mode, so the
// configured index is used regardless of the constraint.
func (s *Source) Acquire(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.FacingMode != "" && c.FacingMode != camera.FacingEnvironment {
		logger.WithField("facing", c.FacingMode).Debug("Facing mode ignored by device source")
	}

	vc, err := gocv.OpenVideoCapture(s.deviceID)
	if err != nil {
		return nil, apperrors.NewCameraUnavailableError("failed to open video device", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, apperrors.NewCameraUnavailableError(fmt.Sprintf("video device %d not available", s.deviceID), nil)
	}

	return &stream{vc: vc, mat: gocv.NewMat()}, nil
}

type stream struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	stopped bool
}

func (st *stream) Read() (image.Image, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.stopped {
		return nil, errors.New("device stream stopped")
	}
	if ok := st.vc.Read(&st.mat); !ok || st.mat.Empty() {
		return nil, errors.New("device returned no frame")
	}
	return st.mat.ToImage()
}

func (st *stream) Dimensions() (int, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stopped {
		return 0, 0
	}
	w := int(st.vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(st.vc.Get(gocv.VideoCaptureFrameHeight))
	return w, h
}

func (st *stream) Stop() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.stopped {
		return nil
	}
	st.stopped = true
	st.mat.Close()
	return st.vc.Close()
}
