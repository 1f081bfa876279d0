// Package store defines persistence interfaces for waconnect.
package store

import "github.com/jxucoder/waconnect/model"

// EventLog persists lifecycle events (qr, authenticated, ready,
// auth_failure, disconnected). Message events are never stored.
type EventLog interface {
	// AddEvent stores the event and sets its ID.
	AddEvent(event *model.Event) error
	// GetEvents returns events with an ID greater than afterID, oldest first.
	GetEvents(afterID int64) ([]*model.Event, error)
	Close() error
}
