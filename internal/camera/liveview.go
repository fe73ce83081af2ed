package camera

import (
	"image"
	"sync"
)

// LiveView is a Surface that lets the HTTP layer sample the attached stream
// for a live preview.
type LiveView struct {
	mu      sync.RWMutex
	stream  Stream
	attachN int
	detachN int
}

// NewLiveView creates an empty live view.
func NewLiveView() *LiveView {
	return &LiveView{}
}

// Attach implements Surface.
func (v *LiveView) Attach(stream Stream) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stream = stream
	v.attachN++
}

// Detach implements Surface.
func (v *LiveView) Detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stream = nil
	v.detachN++
}

// Attached reports whether a stream is currently displayed.
func (v *LiveView) Attached() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stream != nil
}

// Snapshot reads the current live frame.
func (v *LiveView) Snapshot() (image.Image, error) {
	v.mu.RLock()
	stream := v.stream
	v.mu.RUnlock()
	if stream == nil {
		return nil, ErrNoStream
	}
	return stream.Read()
}

// Counts returns how many times the view was attached and detached.
func (v *LiveView) Counts() (attached, detached int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.attachN, v.detachN
}
