package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/jxucoder/waconnect/engine"
	"github.com/jxucoder/waconnect/eventbus"
	"github.com/jxucoder/waconnect/model"
	"github.com/jxucoder/waconnect/store"
)

// Controller owns one engine session. Engine events are applied one at a
// time by the loop started with Run; every other method only reads.
type Controller struct {
	engine engine.Engine
	bus    eventbus.Bus
	events store.EventLog // optional

	mu    sync.RWMutex
	state State

	incoming chan engine.Event
}

// New creates a Controller in the Initializing phase. eventLog may be nil.
func New(eng engine.Engine, bus eventbus.Bus, eventLog store.EventLog) *Controller {
	return &Controller{
		engine:   eng,
		bus:      bus,
		events:   eventLog,
		state:    NewState(),
		incoming: make(chan engine.Event),
	}
}

// Run starts the engine and applies its events until ctx is canceled.
// An engine failure is not fatal: it is broadcast as a disconnect and the
// controller keeps serving state and subscriptions. Run returns only after
// the engine goroutine has exited.
func (c *Controller) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		errCh <- c.engine.Run(ctx, c.incoming)
	}()

	for {
		select {
		case <-ctx.Done():
			<-engineDone
			return nil
		case ev := <-c.incoming:
			c.Handle(ev)
		case err := <-errCh:
			errCh = nil
			if err != nil && ctx.Err() == nil {
				log.Printf("session: engine stopped: %v", err)
				c.Handle(engine.Disconnected{Reason: err.Error()})
			}
		}
	}
}

// Handle applies a single engine event atomically, then records and
// broadcasts the resulting event.
func (c *Controller) Handle(ev engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state.Phase
	next, out := Apply(c.state, ev)
	if out == nil {
		log.Printf("session: ignoring %s in phase %s", eventName(ev), prev)
		return
	}
	c.state = next

	if next.Phase != prev {
		log.Printf("session: %s -> %s (%s)", prev, next.Phase, eventName(ev))
	}

	if out.Type != model.EventMessage && c.events != nil {
		if err := c.events.AddEvent(out); err != nil {
			log.Printf("session: error storing event: %v", err)
		}
	}
	c.bus.Publish(out)
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// AddressSuffix returns the engine's canonical address suffix.
func (c *Controller) AddressSuffix() string {
	return c.engine.AddressSuffix()
}

// Subscribe registers a new view connection. The returned snapshot brings
// the view up to the current phase and must be delivered before anything
// read from the channel; no event is lost or duplicated between the two.
func (c *Controller) Subscribe() (snapshot []*model.Event, ch chan *model.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Snapshot(), c.bus.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (c *Controller) Unsubscribe(ch chan *model.Event) {
	c.bus.Unsubscribe(ch)
}

// SendMessage validates and normalizes the command, then hands it to the
// engine. It returns the engine message ID. The controller keeps no copy
// of the message.
func (c *Controller) SendMessage(ctx context.Context, recipient, body string) (string, error) {
	if model.IsBlank(body) {
		return "", &model.ValidationError{Field: "message", Reason: "is required"}
	}
	to, err := model.NormalizeRecipient(recipient, c.engine.AddressSuffix())
	if err != nil {
		return "", err
	}

	if phase := c.State().Phase; phase != model.PhaseReady {
		return "", fmt.Errorf("%w (phase %s)", model.ErrNotReady, phase)
	}

	id, err := c.engine.Send(ctx, to, body)
	if err != nil {
		log.Printf("session: send to %s failed: %v", to, err)
		return "", &model.SendFailedError{Detail: err.Error()}
	}
	return id, nil
}
