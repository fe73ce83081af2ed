package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []CaptureEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, e CaptureEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, e CaptureEvent) { panic("observer bug") }
func (panickingObserver) GetObserverName() string { return "panicking" }

func TestPublisherDeliversInOrder(t *testing.T) {
	p := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	p.Subscribe(rec)

	for i := 1; i <= 5; i++ {
		p.NotifyObservers(context.Background(), CaptureEvent{EventType: AttemptCompleted, Attempt: i, Total: 5})
	}

	if len(rec.events) != 5 {
		t.Fatalf("received %d events, want 5", len(rec.events))
	}
	for i, e := range rec.events {
		if e.Attempt != i+1 {
			t.Errorf("event %d has attempt %d", i, e.Attempt)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("event %d has no timestamp", i)
		}
	}
}

func TestPublisherSurvivesPanickingObserver(t *testing.T) {
	p := NewEventPublisher()
	rec := &recordingObserver{name: "rec"}
	p.Subscribe(panickingObserver{})
	p.Subscribe(rec)

	p.NotifyObservers(context.Background(), CaptureEvent{EventType: CaptureStarted})

	if len(rec.events) != 1 {
		t.Errorf("observer after a panicking one received %d events, want 1", len(rec.events))
	}
}

func TestUnsubscribe(t *testing.T) {
	p := NewEventPublisher()
	a := &recordingObserver{name: "same"}
	b := &recordingObserver{name: "same"}
	p.Subscribe(a)
	p.Subscribe(b)
	p.Unsubscribe(a)

	p.NotifyObservers(context.Background(), CaptureEvent{EventType: CaptureStarted})

	if len(a.events) != 0 {
		t.Error("unsubscribed observer still notified")
	}
	if len(b.events) != 1 {
		t.Error("observer with the same name must stay subscribed")
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()
	events := []CaptureEvent{
		{EventType: CaptureStarted},
		{EventType: AttemptCompleted},
		{EventType: AttemptFailed},
		{EventType: CaptureMatched, Duration: 2 * time.Second},
		{EventType: CaptureStarted},
		{EventType: CaptureNoMatch, Duration: 4 * time.Second},
		{EventType: CaptureStarted},
		{EventType: CaptureCancelled},
	}
	for _, e := range events {
		m.OnEvent(ctx, e)
	}

	got := m.GetMetrics()
	want := map[string]interface{}{
		"sessions":        int64(3),
		"matched":         int64(1),
		"no_match":        int64(1),
		"cancelled":       int64(1),
		"attempts":        int64(2),
		"failed_attempts": int64(1),
		"match_rate":      0.5,
		"avg_duration_ms": int64(3000),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestLoggingObserverWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	o := NewLoggingObserver(l)
	o.OnEvent(context.Background(), CaptureEvent{
		EventType: CaptureMatched,
		SessionID: "s-42",
		Number:    "123.4",
		Score:     5.8,
		Success:   true,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid log line %q: %v", buf.String(), err)
	}
	if entry["session_id"] != "s-42" || entry["number"] != "123.4" {
		t.Errorf("unexpected fields: %v", entry)
	}
	if !strings.Contains(entry["msg"].(string), "matched") {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestChannelObserver(t *testing.T) {
	o := NewChannelObserver("sse", 2)
	ctx := context.Background()

	o.OnEvent(ctx, CaptureEvent{Attempt: 1})
	o.OnEvent(ctx, CaptureEvent{Attempt: 2})
	o.OnEvent(ctx, CaptureEvent{Attempt: 3})

	if o.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", o.Dropped())
	}
	if e := <-o.Events(); e.Attempt != 1 {
		t.Errorf("first event attempt = %d", e.Attempt)
	}

	o.Close()
	o.Close()
	o.OnEvent(ctx, CaptureEvent{Attempt: 4})

	var rest []int
	for e := range o.Events() {
		rest = append(rest, e.Attempt)
	}
	if len(rest) != 1 || rest[0] != 2 {
		t.Errorf("remaining events = %v, want [2]", rest)
	}
}

func TestTerminalEvents(t *testing.T) {
	terminal := []EventType{CaptureMatched, CaptureNoMatch, CaptureFailed, CaptureCancelled}
	for _, et := range terminal {
		if !et.Terminal() {
			t.Errorf("%s should be terminal", et)
		}
	}
	for _, et := range []EventType{CaptureStarted, AttemptCompleted, BestUpdated, EngineStatus} {
		if et.Terminal() {
			t.Errorf("%s should not be terminal", et)
		}
	}
}
