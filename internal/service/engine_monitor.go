package service

import (
	"context"
	"sync"

	"go-meter-reader/internal/observer"
	"go-meter-reader/internal/recognition"
)

// EngineMonitor tracks the recognition engine lifecycle for health reporting
// and forwards status changes as events.
type EngineMonitor struct {
	mu      sync.RWMutex
	status  recognition.Status
	lastErr error
	events  observer.Subject
}

// NewEngineMonitor creates a monitor. events may be nil.
func NewEngineMonitor(events observer.Subject) *EngineMonitor {
	return &EngineMonitor{status: "not_loaded", events: events}
}

// StatusFunc returns the callback to register on the recognition adapter.
func (m *EngineMonitor) StatusFunc() recognition.StatusFunc {
	return func(status recognition.Status, err error) {
		m.mu.Lock()
		m.status = status
		m.lastErr = err
		m.mu.Unlock()

		if m.events == nil {
			return
		}
		event := observer.CaptureEvent{
			EventType: observer.EngineStatus,
			Success:   status != recognition.StatusFailed,
			Message:   string(status),
		}
		if err != nil {
			event.Metadata = map[string]interface{}{"error": err.Error()}
		}
		m.events.NotifyObservers(context.Background(), event)
	}
}

// Status returns the last reported status and error.
func (m *EngineMonitor) Status() (recognition.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.lastErr
}
