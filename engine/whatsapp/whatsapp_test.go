package whatsapp

import (
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/jxucoder/waconnect/engine"
	"github.com/jxucoder/waconnect/model"
)

func TestFreshPairingReportsAuthenticatedOnce(t *testing.T) {
	var tr translator
	now := time.Now()

	out, restart := tr.translate(&events.PairSuccess{}, now)
	if restart || len(out) != 1 {
		t.Fatalf("unexpected pair success translation: %v %v", out, restart)
	}
	if _, ok := out[0].(engine.Authenticated); !ok {
		t.Fatalf("expected Authenticated, got %T", out[0])
	}

	out, _ = tr.translate(&events.Connected{}, now)
	if len(out) != 1 {
		t.Fatalf("expected only Ready after pairing, got %v", out)
	}
	if _, ok := out[0].(engine.Ready); !ok {
		t.Fatalf("expected Ready, got %T", out[0])
	}
}

func TestRestoredSessionReportsAuthenticatedThenReady(t *testing.T) {
	var tr translator
	out, _ := tr.translate(&events.Connected{}, time.Now())
	if len(out) != 2 {
		t.Fatalf("expected 2 events, got %v", out)
	}
	if _, ok := out[0].(engine.Authenticated); !ok {
		t.Fatalf("expected Authenticated first, got %T", out[0])
	}
	if _, ok := out[1].(engine.Ready); !ok {
		t.Fatalf("expected Ready second, got %T", out[1])
	}
}

func TestReconnectAfterDisconnectReauthenticates(t *testing.T) {
	var tr translator
	now := time.Now()
	tr.translate(&events.Connected{}, now)

	out, restart := tr.translate(&events.Disconnected{}, now)
	if restart {
		t.Fatal("a plain disconnect should not restart pairing")
	}
	if d, ok := out[0].(engine.Disconnected); !ok || d.Reason != "connection lost" {
		t.Fatalf("unexpected disconnect translation: %v", out)
	}

	out, _ = tr.translate(&events.Connected{}, now)
	if len(out) != 2 {
		t.Fatalf("expected Authenticated+Ready after reconnect, got %v", out)
	}
}

func TestLoggedOutRestartsPairing(t *testing.T) {
	var tr translator
	out, restart := tr.translate(&events.LoggedOut{}, time.Now())
	if !restart {
		t.Fatal("expected restart after logout")
	}
	if d, ok := out[0].(engine.Disconnected); !ok || d.Reason != "LOGOUT" {
		t.Fatalf("unexpected logout translation: %v", out)
	}

	out, restart = tr.translate(&events.LoggedOut{OnConnect: true}, time.Now())
	if !restart {
		t.Fatal("expected restart after rejected credentials")
	}
	if _, ok := out[0].(engine.AuthFailure); !ok {
		t.Fatalf("expected AuthFailure, got %T", out[0])
	}
}

func TestPairErrorIsAuthFailure(t *testing.T) {
	var tr translator
	out, restart := tr.translate(&events.PairError{Error: errors.New("bad signature")}, time.Now())
	if !restart {
		t.Fatal("expected a fresh pairing flow after a pairing error")
	}
	f, ok := out[0].(engine.AuthFailure)
	if !ok || f.Reason != "bad signature" {
		t.Fatalf("unexpected translation: %v", out)
	}
}

func TestGroupMessageTranslation(t *testing.T) {
	var tr translator
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:    types.NewJID("120363000000000000", types.GroupServer),
				Sender:  types.NewJID("79123456789", types.DefaultUserServer),
				IsGroup: true,
			},
			PushName: "Anna",
		},
		Message: &waE2E.Message{Conversation: proto.String("hello group")},
	}

	out, _ := tr.translate(evt, now)
	if len(out) != 1 {
		t.Fatalf("expected 1 event, got %v", out)
	}
	in, ok := out[0].(engine.Inbound)
	if !ok {
		t.Fatalf("expected Inbound, got %T", out[0])
	}
	msg := in.Message
	if msg.Origin != "120363000000000000@g.us" || msg.Body != "hello group" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if name, ok := msg.DisplayName(); !ok || name != "Anna" {
		t.Fatalf("expected group sender Anna, got %q", name)
	}
	if !msg.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, msg.Timestamp)
	}
}

func TestDirectMessageFromExtendedText(t *testing.T) {
	var tr translator
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("79123456789", types.DefaultUserServer),
				Sender: types.NewJID("79123456789", types.DefaultUserServer),
			},
		},
		Message: &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("see https://example.com")},
		},
	}
	out, _ := tr.translate(evt, time.Now())
	in := out[0].(engine.Inbound)
	if in.Message.IsGroup() {
		t.Fatal("expected direct chat")
	}
	if in.Message.Chat != (model.Direct{}) {
		t.Fatalf("unexpected chat variant %#v", in.Message.Chat)
	}
	if in.Message.Body != "see https://example.com" {
		t.Fatalf("unexpected body %q", in.Message.Body)
	}
}

func TestEmptyMessageSkipped(t *testing.T) {
	var tr translator
	out, _ := tr.translate(&events.Message{Message: &waE2E.Message{}}, time.Now())
	if len(out) != 0 {
		t.Fatalf("expected no events, got %v", out)
	}
}

func TestFormatOptionsSorted(t *testing.T) {
	got := formatOptions(map[string]string{"no_sandbox": "true", "headless": "true"})
	if got != "headless=true no_sandbox=true" {
		t.Fatalf("got %q", got)
	}
}
