// Package httpapi provides the HTTP API and the real-time event channel
// for waconnect. It delegates all session logic to the controller.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/jxucoder/waconnect/model"
	"github.com/jxucoder/waconnect/session"
	"github.com/jxucoder/waconnect/store"
)

// Options configures the HTTP surface.
type Options struct {
	// AllowedOrigin is the browser origin allowed to call the API and open
	// the event channel. "*" allows any origin.
	AllowedOrigin string

	// PingInterval is how often idle WebSocket connections are pinged
	// (default 25s).
	PingInterval time.Duration
}

// Handler provides the HTTP API for waconnect.
type Handler struct {
	controller *session.Controller
	events     store.EventLog // nil disables /events replay
	opts       Options
	upgrader   websocket.Upgrader
	router     chi.Router
}

// New creates a new HTTP API handler. eventLog may be nil.
func New(ctrl *session.Controller, eventLog store.EventLog, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	h := &Handler{
		controller: ctrl,
		events:     eventLog,
		opts:       opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	h.router = h.buildRouter()
	return h
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Post("/send-message", h.handleSendMessage)
		r.Get("/status", h.handleStatus)
	})
	r.Get("/ws", h.handleWebSocket)
	r.Get("/events", h.handleEvents)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type sendMessageRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type statusResponse struct {
	session.State
	AddressSuffix string `json:"addressSuffix"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// --- Handlers ---

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if model.IsBlank(req.PhoneNumber) || model.IsBlank(req.Message) {
		writeError(w, http.StatusBadRequest, "phoneNumber and message are required")
		return
	}

	id, err := h.controller.SendMessage(r.Context(), req.PhoneNumber, req.Message)
	if err != nil {
		status, msg := describeError(err)
		if status == http.StatusInternalServerError {
			log.Printf("Error sending message: %v", err)
		}
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, MessageID: id})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:         h.controller.State(),
		AddressSuffix: h.controller.AddressSuffix(),
	})
}

// handleEvents streams the event channel as server-sent events. Stored
// lifecycle events after ?after=N (or Last-Event-ID) are replayed first.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	afterID, err := parseAfter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	snapshot, ch := h.controller.Subscribe()
	defer h.controller.Unsubscribe(ch)

	var lastID int64
	if h.events != nil {
		replay, err := h.events.GetEvents(afterID)
		if err != nil {
			log.Printf("failed to load events: %v", err)
		}
		for _, e := range replay {
			writeSSE(w, e)
			lastID = e.ID
		}
	} else {
		for _, e := range snapshot {
			writeSSE(w, e)
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.ID != 0 && event.ID <= lastID {
				continue
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

// --- Helpers ---

// describeError maps a send error to a status code and the message shown
// to the operator. Engine failures are reported with the engine's detail.
func describeError(err error) (int, string) {
	var sendErr *model.SendFailedError
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrNotReady):
		return http.StatusConflict, err.Error()
	case errors.As(err, &sendErr):
		return http.StatusInternalServerError, sendErr.Detail
	}
	return http.StatusInternalServerError, "failed to send message"
}

func parseAfter(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("after")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid event id %q", raw)
	}
	return n, nil
}

func (h *Handler) allowedOrigins() []string {
	if h.opts.AllowedOrigin == "" {
		return []string{"*"}
	}
	return strings.Split(h.opts.AllowedOrigin, ",")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins() {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	// Same-host pages are always allowed.
	return strings.HasSuffix(origin, "://"+r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func writeSSE(w http.ResponseWriter, event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("writeSSE marshal error: %v", err)
		return
	}
	if event.ID != 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.ID); err != nil {
			log.Printf("writeSSE write error: %v", err)
			return
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, string(data)); err != nil {
		log.Printf("writeSSE write error: %v", err)
	}
}
