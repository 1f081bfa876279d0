// Package engine defines the boundary between waconnect and the messaging
// automation engine. The engine reports lifecycle changes and inbound
// messages as Events and executes outbound sends.
package engine

import (
	"context"

	"github.com/jxucoder/waconnect/model"
)

// Engine is a messaging engine owning a single account session.
type Engine interface {
	// Run initializes the engine and delivers events on the given channel,
	// one at a time, until ctx is canceled. The engine never closes events.
	Run(ctx context.Context, events chan<- Event) error

	// Send delivers body to the canonical address to and returns the
	// engine-assigned message ID.
	Send(ctx context.Context, to, body string) (string, error)

	// AddressSuffix is the fixed suffix of canonical user addresses.
	AddressSuffix() string
}

// Event is a lifecycle or message callback from the engine.
type Event interface {
	isEvent()
}

// QR carries a fresh pairing payload to be shown to the operator.
type QR struct {
	Payload string
}

// Authenticated reports that the account credentials were accepted.
type Authenticated struct{}

// Ready reports that the session can send and receive messages.
type Ready struct{}

// AuthFailure reports that authentication was rejected.
type AuthFailure struct {
	Reason string
}

// Disconnected reports that the session was lost.
type Disconnected struct {
	Reason string
}

// Inbound carries a message received by the account.
type Inbound struct {
	Message model.Message
}

func (QR) isEvent()            {}
func (Authenticated) isEvent() {}
func (Ready) isEvent()         {}
func (AuthFailure) isEvent()   {}
func (Disconnected) isEvent()  {}
func (Inbound) isEvent()       {}
