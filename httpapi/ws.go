package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jxucoder/waconnect/model"
)

const writeWait = 10 * time.Second

// handleWebSocket serves one view connection. The view first receives the
// snapshot of the current phase, then every broadcast event in order.
// Frames from the view are read only to notice that it went away.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	connID := uuid.New().String()[:8]
	log.Printf("ws: view %s connected from %s", connID, r.RemoteAddr)
	defer log.Printf("ws: view %s disconnected", connID)

	snapshot, ch := h.controller.Subscribe()
	defer h.controller.Unsubscribe(ch)

	pongWait := 2 * h.opts.PingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for _, ev := range snapshot {
		if err := writeFrame(conn, ev); err != nil {
			log.Printf("ws: view %s: %v", connID, err)
			return
		}
	}

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(conn, ev); err != nil {
				log.Printf("ws: view %s: %v", connID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, ev *model.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
