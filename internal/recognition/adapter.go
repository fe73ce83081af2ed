package recognition

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "go-meter-reader/internal/errors"
	"go-meter-reader/internal/logger"
)

// Adapter owns the process-wide engine instance. The engine is built on first
// use, reused across capture sessions and never invoked concurrently.
type Adapter struct {
	factory         EngineFactory
	confidenceScale float64
	onStatus        StatusFunc

	initMu sync.Mutex
	engine Engine

	// callMu serializes Recognize; an abandoned call still holds it until the
	// engine returns.
	callMu sync.Mutex
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithConfidenceScale declares the engine's native confidence range. Engines
// reporting 0..1 use scale 1 and are rescaled to 0..100.
func WithConfidenceScale(scale float64) AdapterOption {
	return func(a *Adapter) {
		if scale > 0 {
			a.confidenceScale = scale
		}
	}
}

// WithStatusFunc registers a lifecycle notification callback.
func WithStatusFunc(fn StatusFunc) AdapterOption {
	return func(a *Adapter) {
		a.onStatus = fn
	}
}

// NewAdapter creates an adapter; no engine is built until EnsureInitialized.
func NewAdapter(factory EngineFactory, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		factory:         factory,
		confidenceScale: 100,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EnsureInitialized builds the engine if needed. Concurrent callers wait for a
// single construction; a failed construction is not cached.
func (a *Adapter) EnsureInitialized(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.engine != nil {
		return nil
	}
	if a.factory == nil {
		return apperrors.NewEngineUnavailableError("no recognition engine configured", nil)
	}

	a.notify(StatusInitializing, nil)
	start := time.Now()
	engine, err := a.factory(ctx)
	if err != nil {
		a.notify(StatusFailed, err)
		logger.WithError(err).Error("Recognition engine initialization failed")
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeEngineUnavailable {
			return appErr
		}
		return apperrors.NewEngineUnavailableError("failed to initialize recognition engine", err)
	}
	a.engine = engine
	a.notify(StatusReady, nil)
	logger.WithField("init_time_ms", time.Since(start).Milliseconds()).Info("Recognition engine ready")
	return nil
}

// Initialized reports whether an engine is currently loaded.
func (a *Adapter) Initialized() bool {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	return a.engine != nil
}

// Recognize runs the engine on img. Engine errors and context expiry are
// reported as recognition_failed; callers treat them as a zero-score attempt.
// When ctx ends first the engine call keeps running in the background and its
// result is dropped.
func (a *Adapter) Recognize(ctx context.Context, img image.Image) (Result, error) {
	if err := a.EnsureInitialized(ctx); err != nil {
		return Result{}, err
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		a.callMu.Lock()
		defer a.callMu.Unlock()

		a.initMu.Lock()
		engine := a.engine
		a.initMu.Unlock()
		if engine == nil {
			done <- outcome{err: errors.New("engine closed")}
			return
		}
		if ctx.Err() != nil {
			done <- outcome{err: ctx.Err()}
			return
		}

		res, err := a.safeRecognize(ctx, engine, img)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Result{}, apperrors.NewRecognitionError("recognition failed", out.err)
		}
		out.res.Confidence = a.normalizeConfidence(out.res.Confidence)
		return out.res, nil
	case <-ctx.Done():
		return Result{}, apperrors.NewRecognitionError("recognition abandoned", ctx.Err())
	}
}

func (a *Adapter) safeRecognize(ctx context.Context, engine Engine, img image.Image) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{"panic": r}).Error("Recognition engine panicked")
			err = errors.New("engine panicked")
		}
	}()
	return engine.Recognize(ctx, img)
}

func (a *Adapter) normalizeConfidence(conf float64) float64 {
	if math.IsNaN(conf) || conf < 0 {
		return 0
	}
	conf = conf * 100 / a.confidenceScale
	return math.Min(conf, 100)
}

// Close disposes the engine after any in-flight call finishes. A later
// EnsureInitialized builds a fresh one.
func (a *Adapter) Close() error {
	a.callMu.Lock()
	defer a.callMu.Unlock()
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if a.engine == nil {
		return nil
	}
	err := a.engine.Close()
	a.engine = nil
	a.notify(StatusClosed, err)
	return err
}

func (a *Adapter) notify(status Status, err error) {
	if a.onStatus == nil {
		return
	}
	a.onStatus(status, err)
}
