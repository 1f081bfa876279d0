// Package session implements the Session Controller: the lifecycle state
// machine that turns engine callbacks into broadcast events, and the
// outbound send command.
package session

import (
	"github.com/jxucoder/waconnect/engine"
	"github.com/jxucoder/waconnect/model"
)

// State is the controller-owned state of one engine session.
// QRPayload is non-empty if and only if Phase is PhaseAwaitingScan.
type State struct {
	Phase                model.Phase `json:"phase"`
	QRPayload            string      `json:"qr,omitempty"`
	LastDisconnectReason string      `json:"lastDisconnectReason,omitempty"`
	LastAuthError        string      `json:"lastAuthError,omitempty"`
}

// NewState returns the initial state.
func NewState() State {
	return State{Phase: model.PhaseInitializing}
}

// Apply computes the transition for one engine event. It returns the next
// state and the event to broadcast, or a nil event when the trigger is not
// valid in the current phase; in that case the state is returned unchanged.
func Apply(s State, ev engine.Event) (State, *model.Event) {
	switch ev := ev.(type) {
	case engine.QR:
		if ev.Payload == "" {
			return s, nil
		}
		switch s.Phase {
		case model.PhaseInitializing, model.PhaseAwaitingScan, model.PhaseDisconnected, model.PhaseAuthFailed:
			s.Phase = model.PhaseAwaitingScan
			s.QRPayload = ev.Payload
			return s, model.NewEvent(model.EventQR, ev.Payload)
		}

	case engine.Authenticated:
		switch s.Phase {
		// Initializing and Disconnected reach Authenticated directly when
		// the engine restores stored credentials.
		case model.PhaseAwaitingScan, model.PhaseInitializing, model.PhaseDisconnected:
			s.Phase = model.PhaseAuthenticated
			s.QRPayload = ""
			return s, model.NewEvent(model.EventAuthenticated, "")
		}

	case engine.Ready:
		if s.Phase == model.PhaseAuthenticated {
			s.Phase = model.PhaseReady
			s.QRPayload = ""
			return s, model.NewEvent(model.EventReady, "")
		}

	case engine.AuthFailure:
		switch s.Phase {
		case model.PhaseInitializing, model.PhaseAwaitingScan, model.PhaseAuthenticated, model.PhaseReady:
			s.Phase = model.PhaseAuthFailed
			s.QRPayload = ""
			s.LastAuthError = ev.Reason
			return s, model.NewEvent(model.EventAuthFailure, ev.Reason)
		}

	case engine.Inbound:
		if s.Phase == model.PhaseReady {
			return s, model.NewMessageEvent(ev.Message)
		}

	case engine.Disconnected:
		s.Phase = model.PhaseDisconnected
		s.QRPayload = ""
		s.LastDisconnectReason = ev.Reason
		return s, model.NewEvent(model.EventDisconnected, ev.Reason)
	}
	return s, nil
}

// Snapshot returns the events that bring a newly connected view from its
// initial state to s.
func (s State) Snapshot() []*model.Event {
	switch s.Phase {
	case model.PhaseAwaitingScan:
		return []*model.Event{model.NewEvent(model.EventQR, s.QRPayload)}
	case model.PhaseAuthenticated:
		return []*model.Event{model.NewEvent(model.EventAuthenticated, "")}
	case model.PhaseReady:
		return []*model.Event{
			model.NewEvent(model.EventAuthenticated, ""),
			model.NewEvent(model.EventReady, ""),
		}
	case model.PhaseDisconnected:
		return []*model.Event{model.NewEvent(model.EventDisconnected, s.LastDisconnectReason)}
	case model.PhaseAuthFailed:
		return []*model.Event{model.NewEvent(model.EventAuthFailure, s.LastAuthError)}
	}
	return nil
}

func eventName(ev engine.Event) string {
	switch ev.(type) {
	case engine.QR:
		return "qr"
	case engine.Authenticated:
		return "authenticated"
	case engine.Ready:
		return "ready"
	case engine.AuthFailure:
		return "auth_failure"
	case engine.Disconnected:
		return "disconnected"
	case engine.Inbound:
		return "message"
	}
	return "unknown"
}
