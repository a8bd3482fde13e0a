package goSession

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	return &captureSink{events: make(chan AuditEvent, buffer)}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) {
	panic("sink exploded")
}

func buildAuditTestEngine(t *testing.T, sink AuditSink, store IdentityStore) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 16, DropIfFull: true}

	engine, err := New().
		WithConfig(cfg).
		WithMasterSecret(testSecret).
		WithIdentityStore(store).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func nextEvent(t *testing.T, sink *captureSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
	return AuditEvent{}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine, err := New().
		WithMasterSecret(testSecret).
		WithIdentityStore(newMapStore(alice)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ns := mustNamespace(t, engine, "user")
	serve(ns.Handler(whoami))
	loginCookies(t, engine, alice)
	time.Sleep(30 * time.Millisecond)

	if sink.count.Load() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.count.Load())
	}
}

func TestAuditLoginAndRejectionEvents(t *testing.T) {
	sink := newCaptureSink(8)
	engine := buildAuditTestEngine(t, sink, newMapStore(alice))
	ns := mustNamespace(t, engine, "user")

	c := cookieNamed(loginCookies(t, engine, alice), "user")
	login := nextEvent(t, sink)
	if login.EventType != auditEventLoginSuccess || !login.Success || login.Username != "alice" || login.Namespace != "user" {
		t.Fatalf("unexpected login event: %+v", login)
	}
	if _, err := uuid.Parse(login.ID); err != nil {
		t.Fatalf("expected uuid event id, got %q", login.ID)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.33:4711"
	req.AddCookie(&http.Cookie{Name: "user", Value: c.Value + "x"})
	ns.Handler(whoami).ServeHTTP(httptest.NewRecorder(), req)

	failure := nextEvent(t, sink)
	if failure.EventType != auditEventAuthFailure || failure.Success {
		t.Fatalf("unexpected failure event: %+v", failure)
	}
	if failure.IP != "198.51.100.33" {
		t.Fatalf("expected IP 198.51.100.33, got %q", failure.IP)
	}
	if failure.Error != string(auditErrCookieMalformed) && failure.Error != string(auditErrCookieForged) {
		t.Fatalf("unexpected failure reason %q", failure.Error)
	}
	if strings.Contains(failure.Error, c.Value) {
		t.Fatal("cookie value leaked into audit event")
	}
	if failure.ID == login.ID {
		t.Fatal("event ids must be unique")
	}
}

func TestAuditLoginRequestCarriesClientIP(t *testing.T) {
	sink := newCaptureSink(8)
	engine := buildAuditTestEngine(t, sink, newMapStore(root))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:51000"
	if _, err := engine.LoginRequest(httptest.NewRecorder(), req, root); err != nil {
		t.Fatalf("LoginRequest failed: %v", err)
	}
	ev := nextEvent(t, sink)
	if ev.EventType != auditEventLoginSuccess || ev.IP != "203.0.113.7" || ev.Namespace != "admin" {
		t.Fatalf("unexpected login event: %+v", ev)
	}
}

func TestAuditLoginRequestHonoursCancellation(t *testing.T) {
	sink := newGateSink()
	cfg := DefaultConfig()
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: false}
	engine, err := New().
		WithConfig(cfg).
		WithMasterSecret(testSecret).
		WithIdentityStore(newMapStore(alice)).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer func() {
		close(sink.gate)
		engine.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/login", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			_, _ = engine.LoginRequest(httptest.NewRecorder(), req, alice)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected logins to return once the request context is cancelled")
	}
	if engine.AuditDropped() == 0 {
		t.Fatal("expected events to be dropped for the cancelled request")
	}
}

func TestAuditLogoutEvent(t *testing.T) {
	sink := newCaptureSink(8)
	engine := buildAuditTestEngine(t, sink, newMapStore(alice))
	ns := mustNamespace(t, engine, "user")
	c := cookieNamed(loginCookies(t, engine, alice), "user")
	nextEvent(t, sink)

	serve(ns.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		IdentityFrom(r).Logout()
	})), c)

	ev := nextEvent(t, sink)
	if ev.EventType != auditEventLogout || ev.Username != "alice" {
		t.Fatalf("unexpected logout event: %+v", ev)
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink, zerolog.Nop())
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullBlockingRespectsContext(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink, zerolog.Nop())
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(ctx, AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to return once the context ends")
	}
	if dispatcher.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", dispatcher.Dropped())
	}
}

func TestAuditSinkPanicIsContained(t *testing.T) {
	var logs bytes.Buffer
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, panicSink{}, zerolog.New(&logs))

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
	dispatcher.Close()

	if !strings.Contains(logs.String(), "audit sink panicked") {
		t.Fatalf("expected panic to be logged, got %q", logs.String())
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{ID: "a", EventType: auditEventLogout, Success: true})
	sink.Emit(context.Background(), AuditEvent{ID: "b", EventType: auditEventAuthFailure, Error: "cookie_forged"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.ID != "b" || ev.Error != "cookie_forged" {
		t.Fatalf("unexpected decoded event: %+v", ev)
	}
}

func TestChannelSinkDeliversAndRespectsContext(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), AuditEvent{ID: "first"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink.Emit(ctx, AuditEvent{ID: "second"})

	if ev := <-sink.Events(); ev.ID != "first" {
		t.Fatalf("unexpected event %+v", ev)
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("expected cancelled emit to be dropped, got %+v", ev)
	default:
	}
}
