package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CaptureEvent describes progress of a capture session
type CaptureEvent struct {
	EventType EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Attempt   int                    `json:"attempt,omitempty"`
	Total     int                    `json:"total,omitempty"`
	Score     float64                `json:"score,omitempty"`
	Number    string                 `json:"number,omitempty"`
	Duration  time.Duration          `json:"duration,omitempty"`
	Success   bool                   `json:"success"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of capture event
type EventType string

const (
	// CaptureStarted when the camera is open and attempts begin
	CaptureStarted EventType = "capture_started"
	// AttemptCompleted after each scored attempt, "attempt i of N"
	AttemptCompleted EventType = "attempt_completed"
	// AttemptFailed when an attempt is scored as zero
	AttemptFailed EventType = "attempt_failed"
	// BestUpdated when an attempt beats the current best; preview changes
	BestUpdated EventType = "best_updated"
	// CaptureMatched when the session ends with a reading
	CaptureMatched EventType = "capture_matched"
	// CaptureNoMatch when no attempt produced a number
	CaptureNoMatch EventType = "capture_no_match"
	// CaptureFailed when camera or engine acquisition fails
	CaptureFailed EventType = "capture_failed"
	// CaptureCancelled when the user cancels the session
	CaptureCancelled EventType = "capture_cancelled"
	// EngineStatus for recognition engine lifecycle notifications
	EngineStatus EventType = "engine_status"
	// ReadingSaved when a reading is handed off to persistence
	ReadingSaved EventType = "reading_saved"
)

// Terminal reports whether no further events follow for the session.
func (t EventType) Terminal() bool {
	switch t {
	case CaptureMatched, CaptureNoMatch, CaptureFailed, CaptureCancelled:
		return true
	}
	return false
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event CaptureEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event CaptureEvent)
}

// LoggingObserver logs capture events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles capture events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"success":    event.Success,
	}
	if event.Total > 0 {
		fields["attempt"] = event.Attempt
		fields["total"] = event.Total
	}
	if event.Number != "" {
		fields["number"] = event.Number
		fields["score"] = event.Score
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Message != "" {
		fields["message"] = event.Message
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case CaptureStarted:
		entry.Info("Capture started")
	case AttemptCompleted, BestUpdated:
		entry.Debug("Capture attempt scored")
	case AttemptFailed:
		entry.Warn("Capture attempt failed")
	case CaptureMatched:
		entry.Info("Capture matched a reading")
	case CaptureNoMatch:
		entry.Info("Capture finished without a reading")
	case CaptureFailed:
		entry.Error("Capture failed")
	case CaptureCancelled:
		entry.Info("Capture cancelled")
	case EngineStatus:
		entry.Debug("Recognition engine status")
	default:
		entry.Info("Capture event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects metrics from capture events
type MetricsObserver struct {
	mu             sync.RWMutex
	sessions       int64
	matched        int64
	noMatch        int64
	failed         int64
	cancelled      int64
	attempts       int64
	failedAttempts int64
	totalDuration  time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles capture events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case CaptureStarted:
		o.sessions++
	case AttemptCompleted:
		o.attempts++
	case AttemptFailed:
		o.attempts++
		o.failedAttempts++
	case CaptureMatched:
		o.matched++
		o.totalDuration += event.Duration
	case CaptureNoMatch:
		o.noMatch++
		o.totalDuration += event.Duration
	case CaptureFailed:
		o.failed++
	case CaptureCancelled:
		o.cancelled++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	finished := o.matched + o.noMatch
	avgDuration := time.Duration(0)
	matchRate := 0.0
	if finished > 0 {
		avgDuration = o.totalDuration / time.Duration(finished)
		matchRate = float64(o.matched) / float64(finished)
	}

	return map[string]interface{}{
		"sessions":        o.sessions,
		"matched":         o.matched,
		"no_match":        o.noMatch,
		"failed":          o.failed,
		"cancelled":       o.cancelled,
		"attempts":        o.attempts,
		"failed_attempts": o.failedAttempts,
		"match_rate":      matchRate,
		"avg_duration_ms": avgDuration.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs == observer {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription order.
// Delivery is synchronous so progress events keep their order; observers
// must not block.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event CaptureEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event CaptureEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the capture loop
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
