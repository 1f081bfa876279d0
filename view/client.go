package view

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jxucoder/waconnect/model"
)

// ErrAlreadyConnected is returned by Connect on a client that already
// opened its event channel.
var ErrAlreadyConnected = errors.New("event channel already opened")

// Client connects a view to the relay server: one WebSocket event channel
// and the HTTP command path.
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	opened  bool
	closed  bool
	done    chan struct{}
	stopped chan struct{} // closed when the read loop exits
}

// NewClient creates a client for the server at serverURL
// (e.g. "http://localhost:3000").
func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		dialer:  websocket.DefaultDialer,
		done:    make(chan struct{}),
	}
}

// Connect opens the event channel. Events arrive on the returned channel
// in the order the server sent them. The channel is unbuffered: an event
// is delivered only while the caller is receiving. If the connection
// drops, a disconnected event with TransportLostReason is delivered before
// the channel closes. Once Close returns the channel is closed and nothing
// more is delivered.
func (c *Client) Connect(ctx context.Context) (<-chan *model.Event, error) {
	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.opened = true
	c.mu.Unlock()

	wsURL, err := c.wsURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Origin", c.baseURL)
	conn, _, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("connecting to event channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil, errors.New("client closed")
	}
	c.conn = conn
	c.stopped = make(chan struct{})
	events := make(chan *model.Event)
	go c.readLoop(conn, events, c.stopped)
	c.mu.Unlock()

	return events, nil
}

// Close closes the event channel and waits for the read loop to stop. It
// is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn, stopped := c.conn, c.stopped
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := conn.Close()
	<-stopped
	return err
}

func (c *Client) readLoop(conn *websocket.Conn, events chan<- *model.Event, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(events)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				log.Printf("view: event channel lost: %v", err)
				c.deliver(events, TransportLost())
			}
			return
		}
		ev := &model.Event{}
		if err := json.Unmarshal(data, ev); err != nil {
			log.Printf("view: skipping frame: %v", err)
			continue
		}
		if !c.deliver(events, ev) {
			return
		}
	}
}

// deliver hands ev to the receiver unless the client has been closed.
// Close waits for the read loop, so a delivery never happens after Close
// returns.
func (c *Client) deliver(events chan<- *model.Event, ev *model.Event) bool {
	if c.isClosed() {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Send issues the send-message command and returns the engine message ID.
// Server errors are mapped back onto the model error taxonomy.
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(sendRequest{PhoneNumber: to, Message: body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-message", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	switch {
	case resp.StatusCode == http.StatusOK && out.Success:
		return out.MessageID, nil
	case resp.StatusCode == http.StatusBadRequest:
		return "", &model.ValidationError{Reason: out.Error}
	case resp.StatusCode == http.StatusConflict:
		return "", model.ErrNotReady
	default:
		detail := out.Error
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return "", &model.SendFailedError{Detail: detail}
	}
}

// Status is the server's view of the session.
type Status struct {
	Phase                model.Phase `json:"phase"`
	QR                   string      `json:"qr"`
	LastDisconnectReason string      `json:"lastDisconnectReason"`
	LastAuthError        string      `json:"lastAuthError"`
	AddressSuffix        string      `json:"addressSuffix"`
}

// Status fetches the current session state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &st, nil
}
