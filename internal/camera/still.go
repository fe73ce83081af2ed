package camera

import (
	"context"
	"errors"
	"image"
	"sync"
)

// StillSource serves a fixed image as a live stream. It is used for offline
// evaluation of labelled meter photos.
type StillSource struct {
	img        image.Image
	reportSize bool
	name       string
}

// NewStillSource serves img and reports its size as the native resolution.
func NewStillSource(name string, img image.Image) *StillSource {
	return &StillSource{img: img, reportSize: true, name: name}
}

// WithoutDimensions makes the stream report 0x0, so frames are sampled at the
// fallback resolution.
func (s *StillSource) WithoutDimensions() *StillSource {
	s.reportSize = false
	return s
}

// Name implements Source.
func (s *StillSource) Name() string {
	if s.name == "" {
		return "still"
	}
	return s.name
}

// Acquire implements Source.
func (s *StillSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	if s.img == nil {
		return nil, errors.New("still source has no image")
	}
	return &stillStream{src: s}, nil
}

type stillStream struct {
	src     *StillSource
	mu      sync.Mutex
	stopped bool
}

func (s *stillStream) Read() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, errors.New("still stream stopped")
	}
	return s.src.img, nil
}

func (s *stillStream) Dimensions() (int, int) {
	if !s.src.reportSize {
		return 0, 0
	}
	b := s.src.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *stillStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
