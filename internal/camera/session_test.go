package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	apperrors "go-meter-reader/internal/errors"
)

type fakeStream struct {
	mu      sync.Mutex
	img     image.Image
	w, h    int
	stops   int
	readErr error
}

func (f *fakeStream) Read() (image.Image, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.img, nil
}

func (f *fakeStream) Dimensions() (int, int) { return f.w, f.h }

func (f *fakeStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeSource struct {
	stream     *fakeStream
	err        error
	acquired   int
	lastFacing string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	f.acquired++
	f.lastFacing = c.FacingMode
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 180, 180, 180, 255
	}
	return img
}

func TestSessionOpenAttachesAndPrefersRearCamera(t *testing.T) {
	stream := &fakeStream{img: solidImage(640, 480), w: 640, h: 480}
	src := &fakeSource{stream: stream}
	view := NewLiveView()

	s := NewSession(src, view)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src.lastFacing != FacingEnvironment {
		t.Errorf("facing mode = %q, want %q", src.lastFacing, FacingEnvironment)
	}
	if !view.Attached() || !s.IsOpen() {
		t.Error("expected stream to be attached after Open")
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if src.acquired != 1 {
		t.Errorf("acquired %d times, want 1", src.acquired)
	}
}

func TestSessionOpenFailureIsCameraUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"plain error", errors.New("permission denied")},
		{"typed error", apperrors.NewCameraUnavailableError("no device", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := NewLiveView()
			s := NewSession(&fakeSource{err: tt.err}, view)

			err := s.Open(context.Background())
			if !apperrors.IsType(err, apperrors.ErrorTypeCameraUnavailable) {
				t.Fatalf("expected camera_unavailable, got %v", err)
			}
			if view.Attached() {
				t.Error("nothing should be attached after a failed Open")
			}
			if _, err := s.CaptureFrame(); !errors.Is(err, ErrNoStream) {
				t.Errorf("CaptureFrame() error = %v, want ErrNoStream", err)
			}
			if err := s.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
			if attached, detached := view.Counts(); attached != 0 || detached != 0 {
				t.Errorf("attach/detach = %d/%d, want 0/0", attached, detached)
			}
		})
	}
}

func TestCaptureFrameUsesNativeResolution(t *testing.T) {
	stream := &fakeStream{img: solidImage(320, 240), w: 320, h: 240}
	s := NewSession(&fakeSource{stream: stream}, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame, err := s.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}
	if got := frame.Image.Bounds().Size(); got != image.Pt(320, 240) {
		t.Errorf("frame size = %v, want 320x240", got)
	}
	if frame.CapturedAt.IsZero() {
		t.Error("CapturedAt not set")
	}
	if c := frame.Image.NRGBAAt(10, 10); c != (color.NRGBA{180, 180, 180, 255}) {
		t.Errorf("pixel = %v", c)
	}
}

func TestCaptureFrameFallsBackTo720p(t *testing.T) {
	stream := &fakeStream{img: solidImage(64, 48)}
	s := NewSession(&fakeSource{stream: stream}, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame, err := s.CaptureFrame()
	if err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}
	if got := frame.Image.Bounds().Size(); got != image.Pt(FallbackWidth, FallbackHeight) {
		t.Errorf("frame size = %v, want %dx%d", got, FallbackWidth, FallbackHeight)
	}
}

func TestCaptureFrameDoesNotAliasStream(t *testing.T) {
	src := solidImage(8, 8)
	stream := &fakeStream{img: src, w: 8, h: 8}
	s := NewSession(&fakeSource{stream: stream}, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	frame, err := s.CaptureFrame()
	if err != nil {
		t.Fatal(err)
	}
	frame.Image.Pix[0] = 1
	if src.Pix[0] != 180 {
		t.Error("modifying the frame changed the stream's image")
	}
}

func TestCaptureFrameReadError(t *testing.T) {
	stream := &fakeStream{readErr: errors.New("device unplugged")}
	s := NewSession(&fakeSource{stream: stream}, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.CaptureFrame(); err == nil {
		t.Error("expected read error to propagate")
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	stream := &fakeStream{img: solidImage(10, 10), w: 10, h: 10}
	view := NewLiveView()
	s := NewSession(&fakeSource{stream: stream}, view)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	if stream.stops != 1 {
		t.Errorf("stream stopped %d times, want 1", stream.stops)
	}
	attached, detached := view.Counts()
	if attached != 1 || detached != 1 {
		t.Errorf("attach/detach = %d/%d, want 1/1", attached, detached)
	}
	if s.IsOpen() {
		t.Error("session still open after Close")
	}
	if _, err := s.CaptureFrame(); !errors.Is(err, ErrNoStream) {
		t.Errorf("CaptureFrame() after Close error = %v", err)
	}
	if err := s.Open(context.Background()); !apperrors.IsType(err, apperrors.ErrorTypeCameraUnavailable) {
		t.Errorf("Open() after Close error = %v", err)
	}
}

func TestLiveViewSnapshot(t *testing.T) {
	view := NewLiveView()
	if _, err := view.Snapshot(); !errors.Is(err, ErrNoStream) {
		t.Errorf("Snapshot() on empty view error = %v", err)
	}

	stream := &fakeStream{img: solidImage(4, 4), w: 4, h: 4}
	view.Attach(stream)
	img, err := view.Snapshot()
	if err != nil || img == nil {
		t.Fatalf("Snapshot() = %v, %v", img, err)
	}
	view.Detach()
	if view.Attached() {
		t.Error("view still attached")
	}
}

func TestStillSource(t *testing.T) {
	img := solidImage(100, 50)
	s := NewSession(NewStillSource("label.png", img).WithoutDimensions(), nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	frame, err := s.CaptureFrame()
	if err != nil {
		t.Fatal(err)
	}
	if frame.Image.Bounds().Dx() != FallbackWidth {
		t.Errorf("width = %d, want fallback %d", frame.Image.Bounds().Dx(), FallbackWidth)
	}
	_ = s.Close()

	if _, err := NewStillSource("", nil).Acquire(context.Background(), DefaultConstraints()); err == nil {
		t.Error("expected error for still source without image")
	}
}
