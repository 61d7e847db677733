package authguard

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestJSONWriterSink_WritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditLockoutTriggered,
		UserID:    "u1",
		Metadata:  map[string]string{"email": "a@test.com"},
	})
	sink.Emit(context.Background(), AuditEvent{EventType: AuditCSRFRejected, SessionID: "s1"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded AuditEvent
	if err := json.Unmarshal(lines[0], &decoded); err != nil {
		t.Fatalf("line not valid JSON: %v", err)
	}
	if decoded.EventType != AuditLockoutTriggered || decoded.UserID != "u1" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	seen    chan AuditEvent
}

func (s *blockingSink) Emit(_ context.Context, event AuditEvent) {
	s.entered <- struct{}{}
	<-s.release
	s.seen <- event
}

func TestDispatcher_DropsBeyondBufferAndCounts(t *testing.T) {
	sink := &blockingSink{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		seen:    make(chan AuditEvent, 16),
	}
	d := newAuditDispatcher(2, sink)

	// Park the worker inside the sink first, then fill the buffer; the
	// rest must be dropped without blocking the caller.
	d.emit(AuditEvent{EventType: AuditRateLimitDenied})
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached the sink")
	}
	for i := 0; i < 7; i++ {
		d.emit(AuditEvent{EventType: AuditRateLimitDenied})
	}

	if got := d.Dropped(); got != 5 {
		t.Fatalf("expected 5 dropped, got %d", got)
	}

	close(sink.release)
	d.Close()

	delivered := 0
	for {
		select {
		case <-sink.seen:
			delivered++
		case <-sink.entered:
		default:
			if delivered != 3 {
				t.Fatalf("expected 3 delivered, got %d", delivered)
			}
			return
		}
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	var mu sync.Mutex
	var got []AuditEvent
	sink := sinkFunc(func(event AuditEvent) {
		mu.Lock()
		got = append(got, event)
		mu.Unlock()
	})

	d := newAuditDispatcher(16, sink)
	for i := 0; i < 10; i++ {
		d.emit(AuditEvent{EventType: AuditSessionCreated})
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("expected 10 events after close, got %d", len(got))
	}
	for _, event := range got {
		if event.Timestamp.IsZero() {
			t.Fatal("dispatcher must stamp events")
		}
	}
}

func TestDispatcher_EmitAfterCloseIsNoOp(t *testing.T) {
	d := newAuditDispatcher(4, NoOpSink{})
	d.Close()
	d.emit(AuditEvent{EventType: AuditRateLimitDenied})
	d.Close()
}

func TestNilDispatcher_Safe(t *testing.T) {
	var d *auditDispatcher
	d.emit(AuditEvent{EventType: AuditRateLimitDenied})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

type sinkFunc func(AuditEvent)

func (f sinkFunc) Emit(_ context.Context, event AuditEvent) { f(event) }
