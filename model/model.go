// Package model defines the core domain types shared across all waconnect packages.
// It has zero dependencies on other waconnect packages.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the discrete state of a messaging session in its lifecycle.
type Phase string

const (
	PhaseInitializing  Phase = "initializing"
	PhaseAwaitingScan  Phase = "awaiting_scan"
	PhaseAuthenticated Phase = "authenticated"
	PhaseReady         Phase = "ready"
	PhaseDisconnected  Phase = "disconnected"
	PhaseAuthFailed    Phase = "auth_failed"
)

// SelfOrigin is the origin of messages authored by the local operator.
const SelfOrigin = "self"

// TimestampLayout is the ISO-8601 layout used on the wire.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Chat describes the conversation a message belongs to. It is either
// Direct or Group; only group chats carry a sender display name.
type Chat interface {
	isChat()
}

// Direct is a one-to-one conversation.
type Direct struct{}

// Group is a group conversation. DisplayName labels the member who sent
// the message.
type Group struct {
	DisplayName string
}

func (Direct) isChat() {}
func (Group) isChat()  {}

// Message is a single chat line. It is never mutated after construction.
type Message struct {
	Origin    string
	Body      string
	Timestamp time.Time
	Chat      Chat
	Outbound  bool
}

// IsGroup reports whether the message belongs to a group chat.
func (m Message) IsGroup() bool {
	_, ok := m.Chat.(Group)
	return ok
}

// DisplayName returns the group sender label, if any.
func (m Message) DisplayName() (string, bool) {
	g, ok := m.Chat.(Group)
	if !ok {
		return "", false
	}
	return g.DisplayName, true
}

// NewOutboundMessage builds the local copy of a message the operator sent.
func NewOutboundMessage(body string, now time.Time) Message {
	return Message{
		Origin:    SelfOrigin,
		Body:      body,
		Timestamp: now.UTC(),
		Chat:      Direct{},
		Outbound:  true,
	}
}

type wireMessage struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
	IsGroup   bool   `json:"isGroup"`
	FromMe    bool   `json:"fromMe"`
	Sender    string `json:"sender,omitempty"`
}

// MarshalJSON encodes the message in its wire form. The sender field is
// present only for group chats.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		From:      m.Origin,
		Body:      m.Body,
		Timestamp: m.Timestamp.UTC().Format(TimestampLayout),
		FromMe:    m.Outbound,
	}
	if name, ok := m.DisplayName(); ok {
		w.IsGroup = true
		w.Sender = name
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form. A sender on a non-group message is
// dropped.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var ts time.Time
	if w.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing message timestamp: %w", err)
		}
		ts = parsed
	}
	var chat Chat = Direct{}
	if w.IsGroup {
		chat = Group{DisplayName: w.Sender}
	}
	*m = Message{
		Origin:    w.From,
		Body:      w.Body,
		Timestamp: ts,
		Chat:      chat,
		Outbound:  w.FromMe,
	}
	return nil
}

// EventType names an event on the real-time channel.
type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventAuthFailure   EventType = "auth_failure"
	EventDisconnected  EventType = "disconnected"
	EventMessage       EventType = "message"
)

// Event is one named event broadcast from the controller to views.
// Text carries the payload of qr, auth_failure and disconnected;
// Message carries the payload of message.
type Event struct {
	ID        int64
	Type      EventType
	Text      string
	Message   *Message
	CreatedAt time.Time
}

// NewEvent creates a lifecycle event stamped with the current time.
func NewEvent(t EventType, text string) *Event {
	return &Event{Type: t, Text: text, CreatedAt: time.Now().UTC()}
}

// NewMessageEvent wraps a message for broadcast.
func NewMessageEvent(m Message) *Event {
	return &Event{Type: EventMessage, Message: &m, CreatedAt: time.Now().UTC()}
}

type wireEvent struct {
	ID    int64           `json:"id,omitempty"`
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the event as {"event": name, "data": payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{ID: e.ID, Event: e.Type}
	switch e.Type {
	case EventQR, EventAuthFailure, EventDisconnected:
		data, err := json.Marshal(e.Text)
		if err != nil {
			return nil, err
		}
		w.Data = data
	case EventMessage:
		if e.Message == nil {
			return nil, fmt.Errorf("message event without message")
		}
		data, err := json.Marshal(e.Message)
		if err != nil {
			return nil, err
		}
		w.Data = data
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an event frame.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ev := Event{ID: w.ID, Type: w.Event}
	switch w.Event {
	case EventQR, EventAuthFailure, EventDisconnected:
		if len(w.Data) > 0 {
			if err := json.Unmarshal(w.Data, &ev.Text); err != nil {
				return fmt.Errorf("decoding %s payload: %w", w.Event, err)
			}
		}
	case EventMessage:
		var m Message
		if err := json.Unmarshal(w.Data, &m); err != nil {
			return fmt.Errorf("decoding message payload: %w", err)
		}
		ev.Message = &m
	case EventAuthenticated, EventReady:
	default:
		return fmt.Errorf("unknown event %q", w.Event)
	}
	*e = ev
	return nil
}

// Truncate shortens a string to maxLen runes, adding "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 3 {
		r := []rune(s)
		if len(r) <= maxLen {
			return s
		}
		return string(r[:maxLen])
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
