// Package recognition wraps a text-recognition engine behind a shared,
// lazily initialized adapter.
package recognition

import (
	"context"
	"image"
)

// Whitelist restricts recognition to meter digits.
const Whitelist = "0123456789."

// Result is the raw output of one recognition call.
type Result struct {
	Text       string
	Confidence float64 // 0..100, 0 when unknown
}

// Engine is a text-recognition backend. Implementations need not be safe for
// concurrent use; the Adapter serializes calls.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (Result, error)
	Close() error
}

// EngineFactory constructs and configures an engine. It is called lazily and
// may be slow (language data is loaded here).
type EngineFactory func(ctx context.Context) (Engine, error)

// Status values reported during engine initialization.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusReady        Status = "ready"
	StatusFailed       Status = "failed"
	StatusClosed       Status = "closed"
)

// StatusFunc receives informational lifecycle notifications.
type StatusFunc func(status Status, err error)
