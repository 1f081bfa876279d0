// End-to-end tests for the waconnect server stack.
//
// This test exercises the full stack:
//   - Real HTTP router (chi) served over TCP
//   - Real SQLite event log (WAL mode, temp dir)
//   - Real event bus and session controller
//   - Real view client (WebSocket event channel + HTTP commands)
//
// Only the messaging engine is scripted. Does NOT require network access
// or a paired phone.
package waconnect_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jxucoder/waconnect"
	"github.com/jxucoder/waconnect/engine"
	"github.com/jxucoder/waconnect/model"
	sqliteStore "github.com/jxucoder/waconnect/store/sqlite"
	"github.com/jxucoder/waconnect/view"
)

// scriptedEngine forwards whatever the test feeds it.
type scriptedEngine struct {
	feed chan engine.Event

	mu    sync.Mutex
	sends []string
	fail  error
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{feed: make(chan engine.Event)}
}

func (e *scriptedEngine) Run(ctx context.Context, events chan<- engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.feed:
			select {
			case events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (e *scriptedEngine) Send(_ context.Context, to, body string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return "", e.fail
	}
	e.sends = append(e.sends, to+"|"+body)
	return "3EB0C767D26A", nil
}

func (e *scriptedEngine) AddressSuffix() string { return model.UserSuffix }

type stack struct {
	url    string
	engine *scriptedEngine
	done   chan error
}

func startStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()
	st, err := sqliteStore.New(filepath.Join(dir, "waconnect.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	eng := newScriptedEngine()
	app, err := waconnect.NewBuilder().
		WithConfig(waconnect.Config{DataDir: dir, PingInterval: time.Second}).
		WithEngine(eng).
		WithStore(st).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			t.Error("server did not stop")
		}
	})

	return &stack{url: "http://" + ln.Addr().String(), engine: eng, done: done}
}

func (s *stack) emit(t *testing.T, evs ...engine.Event) {
	t.Helper()
	for _, ev := range evs {
		select {
		case s.engine.feed <- ev:
		case <-time.After(3 * time.Second):
			t.Fatalf("engine event %T not consumed", ev)
		}
	}
}

func next(t *testing.T, ch <-chan *model.Event) *model.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

func TestE2EPairReceiveSend(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	client := view.NewClient(s.url)
	defer client.Close()
	events, err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Fresh pairing.
	state := view.NewState()
	s.emit(t, engine.QR{Payload: "2@ABC"})
	state = view.Reduce(state, next(t, events))
	if state.QR != "2@ABC" || state.Scanned {
		t.Fatalf("after qr: %+v", state)
	}

	s.emit(t, engine.Authenticated{}, engine.Ready{})
	state = view.Reduce(state, next(t, events))
	state = view.Reduce(state, next(t, events))
	if state.Phase != model.PhaseReady || state.QR != "" || !state.Scanned {
		t.Fatalf("after ready: %+v", state)
	}

	// Inbound group message.
	s.emit(t, engine.Inbound{Message: model.Message{
		Origin:    "120363000000000000@g.us",
		Body:      "hi",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Chat:      model.Group{DisplayName: "Anna"},
	}})
	state = view.Reduce(state, next(t, events))
	m, ok := state.Timeline.Last()
	if !ok || m.Body != "hi" {
		t.Fatalf("expected inbound message, got %+v", m)
	}
	if name, _ := m.DisplayName(); name != "Anna" {
		t.Fatalf("expected group sender Anna, got %+v", m)
	}

	// Send through the view submit path.
	state.Recipient, state.Body = "+7 912 345-67-89", "hello"
	state, pending, err := view.BeginSubmit(state, state.Recipient, state.Body, model.UserSuffix)
	if err != nil {
		t.Fatalf("begin submit: %v", err)
	}
	id, err := client.Send(ctx, pending.To, pending.Body)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "3EB0C767D26A" {
		t.Fatalf("unexpected message id %q", id)
	}
	state = view.CompleteSubmit(state, pending, err, time.Now())
	if state.Timeline.Len() != 2 || state.Recipient != "" {
		t.Fatalf("after send: %+v", state)
	}
	if s.engine.sends[0] != "79123456789@s.whatsapp.net|hello" {
		t.Fatalf("unexpected engine send %q", s.engine.sends[0])
	}

	// The send itself is not broadcast.
	select {
	case ev := <-events:
		t.Fatalf("unexpected broadcast after send: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestE2ESendNotReadyAndEngineFailure(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()
	client := view.NewClient(s.url)

	_, err := client.Send(ctx, "79123456789", "hi")
	if !errors.Is(err, model.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}

	s.emit(t, engine.Authenticated{}, engine.Ready{})
	waitForPhase(t, client, model.PhaseReady)

	s.engine.mu.Lock()
	s.engine.fail = errors.New("websocket not connected")
	s.engine.mu.Unlock()

	_, err = client.Send(ctx, "79123456789", "hi")
	var sf *model.SendFailedError
	if !errors.As(err, &sf) || sf.Detail != "websocket not connected" {
		t.Fatalf("expected engine detail, got %v", err)
	}

	_, err = client.Send(ctx, "79123456789", "   ")
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestE2ELateViewGetsSnapshot(t *testing.T) {
	s := startStack(t)
	ctx := context.Background()

	s.emit(t, engine.QR{Payload: "ABC"}, engine.Authenticated{}, engine.Ready{})
	waitForPhase(t, view.NewClient(s.url), model.PhaseReady)

	late := view.NewClient(s.url)
	defer late.Close()
	events, err := late.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	state := view.NewState()
	state = view.Reduce(state, next(t, events))
	state = view.Reduce(state, next(t, events))
	if state.Phase != model.PhaseReady || state.QR != "" {
		t.Fatalf("late view not caught up: %+v", state)
	}
}

func TestE2EEventsReplay(t *testing.T) {
	s := startStack(t)
	s.emit(t, engine.QR{Payload: "ABC"}, engine.Authenticated{}, engine.Ready{})
	waitForPhase(t, view.NewClient(s.url), model.PhaseReady)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	defer resp.Body.Close()

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(names) < 3 {
		if line := scanner.Text(); strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	if strings.Join(names, ",") != "qr,authenticated,ready" {
		t.Fatalf("unexpected replay %v", names)
	}
}

func waitForPhase(t *testing.T, c *view.Client, want model.Phase) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := c.Status(context.Background())
		if err == nil && st.Phase == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("phase %s not reached", want)
}

// brokenEngine fails to connect at startup.
type brokenEngine struct{ scriptedEngine }

func (b *brokenEngine) Run(context.Context, chan<- engine.Event) error {
	return errors.New("connecting: dial tcp: network is unreachable")
}

func TestE2EEngineFailureKeepsServing(t *testing.T) {
	dir := t.TempDir()
	st, err := sqliteStore.New(filepath.Join(dir, "waconnect.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	app, err := waconnect.NewBuilder().
		WithConfig(waconnect.Config{DataDir: dir, PingInterval: time.Second}).
		WithEngine(&brokenEngine{}).
		WithStore(st).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	url := "http://" + ln.Addr().String()
	client := view.NewClient(url)
	waitForPhase(t, client, model.PhaseDisconnected)

	select {
	case err := <-done:
		t.Fatalf("server stopped on engine failure: %v", err)
	default:
	}

	resp, err := http.Get(url + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status.LastDisconnectReason, "network is unreachable") {
		t.Fatalf("unexpected status %+v", status)
	}

	if _, err := client.Send(context.Background(), "79123456789", "hi"); !errors.Is(err, model.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}
