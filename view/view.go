// Package view implements the Session View: a pure reducer that folds the
// controller's events into local UI state, the append-only message
// timeline, and the outbound submit path.
//
// All functions here are pure; the caller runs them from a single event
// loop so that each event or user action is applied to completion before
// the next.
package view

import (
	"time"

	"github.com/jxucoder/waconnect/model"
)

// Variant selects the visual layout of the view.
type Variant int

const (
	// Full shows status, QR, the send form and the message timeline.
	Full Variant = iota
	// Compact shows status, QR and the send form only.
	Compact
)

// ParseVariant maps "compact" to Compact and anything else to Full.
func ParseVariant(s string) Variant {
	if s == "compact" {
		return Compact
	}
	return Full
}

// TransportLostReason is the disconnect reason synthesized when the event
// channel drops without an explicit disconnected event.
const TransportLostReason = "transport lost"

// Timeline is an append-only, insertion-ordered list of messages.
// The zero value is empty and ready to use.
type Timeline struct {
	messages []model.Message
}

// Append returns a timeline with m added last. The receiver is unchanged.
func (t Timeline) Append(m model.Message) Timeline {
	n := len(t.messages)
	return Timeline{messages: append(t.messages[:n:n], m)}
}

// Len returns the number of messages.
func (t Timeline) Len() int { return len(t.messages) }

// Messages returns a copy of the messages in display order.
func (t Timeline) Messages() []model.Message {
	out := make([]model.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the most recent message.
func (t Timeline) Last() (model.Message, bool) {
	if len(t.messages) == 0 {
		return model.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// State is the local UI state of one view.
type State struct {
	Phase    model.Phase
	QR       string
	Scanned  bool
	Timeline Timeline

	// Status is a human-readable description of the connection phase.
	Status string
	// LastError is the most recent error shown to the operator.
	LastError string

	// Recipient and Body mirror the send form inputs.
	Recipient string
	Body      string
	// Sending is true while an outbound send is in flight.
	Sending bool
}

// NewState returns the state of a freshly mounted view.
func NewState() State {
	return State{Phase: model.PhaseInitializing, Status: "Connecting..."}
}

// Reduce applies one event from the controller.
func Reduce(s State, ev *model.Event) State {
	if ev == nil {
		return s
	}
	switch ev.Type {
	case model.EventQR:
		s.QR = ev.Text
		s.Scanned = false
		s.Phase = model.PhaseAwaitingScan
		s.Status = "Waiting for QR code scan"
	case model.EventAuthenticated:
		s.Phase = model.PhaseAuthenticated
		s.Status = "Authenticated"
	case model.EventReady:
		s.Phase = model.PhaseReady
		s.Scanned = true
		s.QR = ""
		s.Status = "Connected"
	case model.EventMessage:
		if ev.Message != nil {
			s.Timeline = s.Timeline.Append(*ev.Message)
		}
	case model.EventDisconnected:
		s.Phase = model.PhaseDisconnected
		s.QR = ""
		s.Scanned = false
		s.Status = "Disconnected"
		if ev.Text != "" {
			s.Status += ": " + ev.Text
		}
	case model.EventAuthFailure:
		s.Phase = model.PhaseAuthFailed
		s.Status = "Authentication failed"
		if ev.Text != "" {
			s.Status += ": " + ev.Text
		}
	}
	return s
}

// TransportLost is the event a view applies when its event channel drops.
func TransportLost() *model.Event {
	return model.NewEvent(model.EventDisconnected, TransportLostReason)
}

// Pending is an outbound send accepted by BeginSubmit.
type Pending struct {
	// To is the normalized recipient address.
	To   string
	Body string
}

// BeginSubmit validates the form and marks the state as sending. It fails
// with a ValidationError on blank fields and with ErrSendInFlight while a
// previous send has not completed; in both cases no command may be issued.
func BeginSubmit(s State, recipient, body, suffix string) (State, Pending, error) {
	if s.Sending {
		return s, Pending{}, model.ErrSendInFlight
	}
	if model.IsBlank(recipient) || model.IsBlank(body) {
		err := &model.ValidationError{Reason: "phone number and message are required"}
		s.LastError = err.Error()
		return s, Pending{}, err
	}
	to, err := model.NormalizeRecipient(recipient, suffix)
	if err != nil {
		s.LastError = err.Error()
		return s, Pending{}, err
	}

	s.Recipient = recipient
	s.Body = body
	s.Sending = true
	s.LastError = ""
	return s, Pending{To: to, Body: body}, nil
}

// CompleteSubmit records the outcome of a send started by BeginSubmit. On
// success the message is appended to the timeline as an outbound message
// and the inputs are cleared; on failure the timeline and inputs are kept
// and the error is recorded.
func CompleteSubmit(s State, p Pending, err error, now time.Time) State {
	s.Sending = false
	if err != nil {
		s.LastError = err.Error()
		return s
	}
	s.Timeline = s.Timeline.Append(model.NewOutboundMessage(p.Body, now))
	s.Recipient = ""
	s.Body = ""
	s.LastError = ""
	return s
}

// CanSubmit reports whether the send form should accept a submission.
func (s State) CanSubmit() bool {
	return !s.Sending && !model.IsBlank(s.Recipient) && !model.IsBlank(s.Body)
}
