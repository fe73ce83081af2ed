package recognition

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "go-meter-reader/internal/errors"
)

type fakeEngine struct {
	result   Result
	err      error
	delay    time.Duration
	inFlight int32
	maxSeen  int32
	calls    int32
	closed   int32
}

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		old := atomic.LoadInt32(&f.maxSeen)
		if n <= old || atomic.CompareAndSwapInt32(&f.maxSeen, old, n) {
			break
		}
	}
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, f.err
}

func (f *fakeEngine) Close() error {
	atomic.AddInt32(&f.closed, 1)
	return nil
}

func testImage() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 4, 4))
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	var builds int32
	engine := &fakeEngine{}
	a := NewAdapter(func(ctx context.Context) (Engine, error) {
		atomic.AddInt32(&builds, 1)
		time.Sleep(10 * time.Millisecond)
		return engine, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.EnsureInitialized(context.Background()); err != nil {
				t.Errorf("EnsureInitialized() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if builds != 1 {
		t.Errorf("factory called %d times, want 1", builds)
	}
	if !a.Initialized() {
		t.Error("expected adapter to be initialized")
	}
}

func TestEnsureInitializedFailureIsRetried(t *testing.T) {
	var builds int32
	a := NewAdapter(func(ctx context.Context) (Engine, error) {
		if atomic.AddInt32(&builds, 1) == 1 {
			return nil, errors.New("eng.traineddata not found")
		}
		return &fakeEngine{}, nil
	})

	err := a.EnsureInitialized(context.Background())
	if !apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable) {
		t.Fatalf("expected engine_unavailable, got %v", err)
	}
	if a.Initialized() {
		t.Fatal("failed init must not leave an engine behind")
	}
	if err := a.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("second EnsureInitialized() error = %v", err)
	}
	if builds != 2 {
		t.Errorf("factory called %d times, want 2", builds)
	}
}

func TestNilFactoryIsEngineUnavailable(t *testing.T) {
	a := NewAdapter(nil)
	if _, err := a.Recognize(context.Background(), testImage()); !apperrors.IsType(err, apperrors.ErrorTypeEngineUnavailable) {
		t.Errorf("expected engine_unavailable, got %v", err)
	}
}

func TestStatusNotifications(t *testing.T) {
	var mu sync.Mutex
	var got []Status
	a := NewAdapter(
		func(ctx context.Context) (Engine, error) { return &fakeEngine{}, nil },
		WithStatusFunc(func(s Status, err error) {
			mu.Lock()
			got = append(got, s)
			mu.Unlock()
		}),
	)

	_ = a.EnsureInitialized(context.Background())
	_ = a.EnsureInitialized(context.Background())
	_ = a.Close()

	want := []Status{StatusInitializing, StatusReady, StatusClosed}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRecognizeMapsEngineErrors(t *testing.T) {
	a := NewAdapter(func(ctx context.Context) (Engine, error) {
		return &fakeEngine{err: errors.New("tesseract: page segmentation failed")}, nil
	})

	_, err := a.Recognize(context.Background(), testImage())
	if !apperrors.IsType(err, apperrors.ErrorTypeRecognition) {
		t.Errorf("expected recognition_failed, got %v", err)
	}
}

func TestRecognizeConfidenceScaling(t *testing.T) {
	tests := []struct {
		name  string
		scale float64
		conf  float64
		want  float64
	}{
		{"percent engine", 100, 87, 87},
		{"unit engine rescaled", 1, 0.87, 87},
		{"clamped", 100, 140, 100},
		{"negative", 100, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(func(ctx context.Context) (Engine, error) {
				return &fakeEngine{result: Result{Text: "123", Confidence: tt.conf}}, nil
			}, WithConfidenceScale(tt.scale))

			res, err := a.Recognize(context.Background(), testImage())
			if err != nil {
				t.Fatalf("Recognize() error = %v", err)
			}
			if diff := res.Confidence - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Confidence = %v, want %v", res.Confidence, tt.want)
			}
			if res.Text != "123" {
				t.Errorf("Text = %q", res.Text)
			}
		})
	}
}

func TestRecognizeIsSerialized(t *testing.T) {
	engine := &fakeEngine{result: Result{Text: "1"}, delay: 5 * time.Millisecond}
	a := NewAdapter(func(ctx context.Context) (Engine, error) { return engine, nil })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Recognize(context.Background(), testImage()); err != nil {
				t.Errorf("Recognize() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if engine.maxSeen != 1 {
		t.Errorf("observed %d concurrent engine calls, want 1", engine.maxSeen)
	}
	if engine.calls != 10 {
		t.Errorf("calls = %d, want 10", engine.calls)
	}
}

func TestRecognizeTimeoutAbandonsCall(t *testing.T) {
	engine := &fakeEngine{result: Result{Text: "1"}, delay: 200 * time.Millisecond}
	a := NewAdapter(func(ctx context.Context) (Engine, error) { return engine, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Recognize(ctx, testImage())
	if !apperrors.IsType(err, apperrors.ErrorTypeRecognition) {
		t.Fatalf("expected recognition_failed, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("Recognize returned after %s, expected to give up at the deadline", elapsed)
	}
}

type panicEngine struct{}

func (panicEngine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	panic("boom")
}

func (panicEngine) Close() error { return nil }

func TestRecognizeRecoversEnginePanic(t *testing.T) {
	a := NewAdapter(func(ctx context.Context) (Engine, error) { return panicEngine{}, nil })
	if _, err := a.Recognize(context.Background(), testImage()); !apperrors.IsType(err, apperrors.ErrorTypeRecognition) {
		t.Errorf("expected recognition_failed, got %v", err)
	}
}

func TestCloseDisposesAndAllowsReinit(t *testing.T) {
	var engines []*fakeEngine
	a := NewAdapter(func(ctx context.Context) (Engine, error) {
		e := &fakeEngine{}
		engines = append(engines, e)
		return e, nil
	})

	if err := a.EnsureInitialized(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if engines[0].closed != 1 {
		t.Errorf("engine closed %d times, want 1", engines[0].closed)
	}
	if err := a.EnsureInitialized(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(engines) != 2 {
		t.Errorf("expected a fresh engine after Close, got %d builds", len(engines))
	}
}
