package eident

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nordauth/eident/order"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func newAuditTestEngine(t *testing.T, sink AuditSink) (*Engine, *mockRemoteClient, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	rc := newMockRemoteClient()
	engine := newTestEngine(t, rdb, rc, newMockPrincipalProvider())
	engine.audit = newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 64,
		DropIfFull: true,
	}, sink)

	return engine, rc, func() {
		engine.Close()
		mr.Close()
	}
}

func waitForEvents(t *testing.T, sink *countingSink, want int64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for sink.Count() < want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d audit events, got %d", want, sink.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuditEventsFlowThroughDispatcher(t *testing.T) {
	sink := &countingSink{}
	engine, rc, done := newAuditTestEngine(t, sink)
	defer done()

	attempt := initiateForTest(t, engine)
	rc.setStatus(attempt.Order.OrderRef, &StatusResult{
		Status:     order.StatusComplete,
		Completion: testCompletion("190001019876"),
	})
	if _, err := engine.Poll(context.Background(), attempt.Order.OrderRef, attempt.SessionToken); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if _, err := engine.Complete(context.Background(), attempt.Order.OrderRef, attempt.SessionToken); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// initiate + poll + complete
	waitForEvents(t, sink, 3)
}

func TestAuditEventsNeverCarrySecrets(t *testing.T) {
	sink := NewChannelSink(64)
	engine, _, done := newAuditTestEngine(t, sink)
	defer done()

	attempt := initiateForTest(t, engine)
	if _, err := engine.Poll(context.Background(), attempt.Order.OrderRef, attempt.SessionToken); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}

	stored, err := engine.orderStore.GetByRef(context.Background(), attempt.Order.OrderRef)
	if err != nil {
		t.Fatalf("GetByRef failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for received := 0; received < 2; received++ {
		select {
		case event := <-sink.Events():
			encoded, err := json.Marshal(event)
			if err != nil {
				t.Fatalf("marshal event: %v", err)
			}
			if strings.Contains(string(encoded), attempt.SessionToken) {
				t.Fatal("audit event leaked the session token")
			}
			if strings.Contains(string(encoded), stored.QRStartSecret) {
				t.Fatal("audit event leaked the QR start secret")
			}
		case <-deadline:
			t.Fatal("expected two audit events")
		}
	}
}

func TestAuditDropsWhenFull(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)

	for i := 0; i < 10; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventPollSuccess})
	}

	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.gate)
	dispatcher.Close()
}

func TestAuditCloseDrains(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 64,
		DropIfFull: false,
	}, sink)

	const events = 20
	for i := 0; i < events; i++ {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventPollSuccess})
	}

	dispatcher.Close()

	if sink.Count() != events {
		t.Fatalf("expected %d events after Close, got %d", events, sink.Count())
	}

	// Emit after Close is a no-op.
	dispatcher.Emit(context.Background(), AuditEvent{EventType: auditEventPollSuccess})
	if sink.Count() != events {
		t.Fatal("expected no delivery after Close")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventInitiateSuccess,
		OrderRef:  "order-1",
		Success:   true,
	})

	var decoded AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if decoded.EventType != auditEventInitiateSuccess || decoded.OrderRef != "order-1" {
		t.Fatalf("unexpected event %+v", decoded)
	}
}
