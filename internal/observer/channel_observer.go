package observer

import (
	"context"
	"sync"
	"sync/atomic"
)

// ChannelObserver forwards events to a buffered channel, for streaming
// progress to a client. Events are dropped rather than blocking the capture
// loop when the consumer falls behind.
type ChannelObserver struct {
	name    string
	ch      chan CaptureEvent
	dropped int64

	mu     sync.Mutex
	closed bool
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(name string, buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelObserver{
		name: name,
		ch:   make(chan CaptureEvent, buffer),
	}
}

// OnEvent implements Observer.
func (o *ChannelObserver) OnEvent(ctx context.Context, event CaptureEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- event:
	default:
		atomic.AddInt64(&o.dropped, 1)
	}
}

// GetObserverName implements Observer.
func (o *ChannelObserver) GetObserverName() string {
	return o.name
}

// Events returns the receive side of the channel.
func (o *ChannelObserver) Events() <-chan CaptureEvent {
	return o.ch
}

// Dropped returns how many events did not fit in the buffer.
func (o *ChannelObserver) Dropped() int64 {
	return atomic.LoadInt64(&o.dropped)
}

// Close closes the channel. Unsubscribe first; later events are ignored.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}
