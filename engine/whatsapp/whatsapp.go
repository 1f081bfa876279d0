// Package whatsapp implements engine.Engine on top of whatsmeow.
//
// Device credentials are persisted by whatsmeow's own SQLite store; this
// package only opens it and never reads or writes the rows itself. After a
// logout, a failed pairing or an expired QR code the engine starts a fresh
// pairing flow, which surfaces as a new QR event.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/jxucoder/waconnect/engine"
	"github.com/jxucoder/waconnect/model"
)

// Config holds engine-specific configuration.
type Config struct {
	// DatabasePath is the SQLite file holding device credentials.
	DatabasePath string

	// LogLevel is the whatsmeow log level ("DEBUG", "INFO", "WARN", "ERROR").
	LogLevel string

	// DeviceName is shown in the phone's linked devices list.
	DeviceName string

	// Options are passed through to the engine untouched.
	Options map[string]string
}

// Engine is a whatsmeow-backed engine.Engine.
type Engine struct {
	config    Config
	container *sqlstore.Container
	clientLog waLog.Logger

	mu      sync.Mutex
	client  *whatsmeow.Client
	tr      translator
	events  chan<- engine.Event
	ctx     context.Context
	relogin chan struct{}
}

// New opens the device store and returns an engine ready to Run.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "WARN"
	}
	if cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(cfg.DeviceName)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", cfg.DatabasePath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}

	return &Engine{
		config:    cfg,
		container: container,
		clientLog: waLog.Stdout("Client", cfg.LogLevel, true),
		relogin:   make(chan struct{}, 1),
	}, nil
}

// AddressSuffix implements engine.Engine.
func (e *Engine) AddressSuffix() string { return model.UserSuffix }

// Run implements engine.Engine. It connects with stored credentials, or
// starts QR pairing if there are none, and restarts pairing whenever the
// session is logged out.
func (e *Engine) Run(ctx context.Context, events chan<- engine.Event) error {
	e.mu.Lock()
	e.events = events
	e.ctx = ctx
	e.mu.Unlock()

	if len(e.config.Options) > 0 {
		log.Printf("whatsapp: engine options %s", formatOptions(e.config.Options))
	}

	for {
		if err := e.connect(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			e.disconnect()
			return nil
		case <-e.relogin:
			log.Println("whatsapp: session ended, starting a new pairing flow")
			e.disconnect()
		}
	}
}

// Send implements engine.Engine.
func (e *Engine) Send(ctx context.Context, to, body string) (string, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return "", errors.New("client is not connected")
	}

	resp, err := client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

// Close releases the device store.
func (e *Engine) Close() error {
	e.disconnect()
	return e.container.Close()
}

func (e *Engine) connect(ctx context.Context) error {
	device, err := e.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("loading device: %w", err)
	}

	client := whatsmeow.NewClient(device, e.clientLog)
	client.AddEventHandler(e.handle)

	e.mu.Lock()
	e.client = client
	e.tr = translator{}
	e.mu.Unlock()

	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
		return nil
	}

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("opening QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	go e.pumpQR(qrChan)
	return nil
}

func (e *Engine) disconnect() {
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}

func (e *Engine) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			e.emit(engine.QR{Payload: item.Code})
		case "success":
			// PairSuccess arrives through the event handler.
		case "timeout":
			e.emit(engine.Disconnected{Reason: "QR code expired"})
			e.restart()
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			e.emit(engine.AuthFailure{Reason: reason})
		}
	}
}

func (e *Engine) handle(evt any) {
	e.mu.Lock()
	out, restart := e.tr.translate(evt, time.Now())
	e.mu.Unlock()

	for _, ev := range out {
		e.emit(ev)
	}
	if restart {
		e.restart()
	}
}

func (e *Engine) emit(ev engine.Event) {
	e.mu.Lock()
	events, ctx := e.events, e.ctx
	e.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (e *Engine) restart() {
	select {
	case e.relogin <- struct{}{}:
	default:
	}
}

// translator maps whatsmeow events onto engine events. It remembers
// whether Authenticated was already reported for the current connection
// so that restored sessions and fresh pairings both report
// Authenticated exactly once before Ready.
type translator struct {
	authenticated bool
}

func (t *translator) translate(evt any, now time.Time) (out []engine.Event, restart bool) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		t.authenticated = true
		return []engine.Event{engine.Authenticated{}}, false

	case *events.PairError:
		reason := "pairing failed"
		if v.Error != nil {
			reason = v.Error.Error()
		}
		return []engine.Event{engine.AuthFailure{Reason: reason}}, true

	case *events.Connected:
		if !t.authenticated {
			t.authenticated = true
			out = append(out, engine.Authenticated{})
		}
		return append(out, engine.Ready{}), false

	case *events.Disconnected:
		t.authenticated = false
		return []engine.Event{engine.Disconnected{Reason: "connection lost"}}, false

	case *events.StreamReplaced:
		t.authenticated = false
		return []engine.Event{engine.Disconnected{Reason: "CONFLICT"}}, false

	case *events.LoggedOut:
		t.authenticated = false
		if v.OnConnect {
			return []engine.Event{engine.AuthFailure{Reason: fmt.Sprintf("logged out: %v", v.Reason)}}, true
		}
		return []engine.Event{engine.Disconnected{Reason: "LOGOUT"}}, true

	case *events.ConnectFailure:
		t.authenticated = false
		return []engine.Event{engine.Disconnected{Reason: fmt.Sprintf("connect failure: %v", v.Reason)}}, false

	case *events.TemporaryBan:
		t.authenticated = false
		return []engine.Event{engine.AuthFailure{Reason: fmt.Sprintf("temporary ban: %v", v.Code)}}, false

	case *events.Message:
		msg, ok := toMessage(v, now)
		if !ok {
			return nil, false
		}
		return []engine.Event{engine.Inbound{Message: msg}}, false
	}
	return nil, false
}

// toMessage converts a whatsmeow message into a model.Message. Messages
// without text (receipts, reactions, media without caption) are skipped.
func toMessage(v *events.Message, now time.Time) (model.Message, bool) {
	body := messageText(v.Message)
	if body == "" {
		return model.Message{}, false
	}

	var chat model.Chat = model.Direct{}
	if v.Info.IsGroup {
		name := v.Info.PushName
		if name == "" {
			name = v.Info.Sender.User
		}
		chat = model.Group{DisplayName: name}
	}

	return model.Message{
		Origin:    v.Info.Chat.String(),
		Body:      body,
		Timestamp: now.UTC(),
		Chat:      chat,
		Outbound:  v.Info.IsFromMe,
	}, true
}

func messageText(m *waE2E.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	if text := m.GetExtendedTextMessage().GetText(); text != "" {
		return text
	}
	if caption := m.GetImageMessage().GetCaption(); caption != "" {
		return caption
	}
	return m.GetVideoMessage().GetCaption()
}

func formatOptions(opts map[string]string) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+opts[k])
	}
	return strings.Join(parts, " ")
}
