// Package waconnect is the top-level entry point for the WhatsApp relay.
//
// Use the Builder to compose an application:
//
//	app, err := waconnect.NewBuilder().Build(ctx)
//	app.Start(ctx)
//
// Or replace individual components:
//
//	app, err := waconnect.NewBuilder().
//	    WithEngine(myEngine).
//	    WithStore(myStore).
//	    Build(ctx)
package waconnect

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jxucoder/waconnect/engine"
	"github.com/jxucoder/waconnect/eventbus"
	"github.com/jxucoder/waconnect/httpapi"
	"github.com/jxucoder/waconnect/session"
	"github.com/jxucoder/waconnect/store"
)

// Config holds top-level configuration for a waconnect application.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (default ":3000").
	ServerAddr string

	// AllowedOrigin is the browser origin allowed to use the API
	// (default "http://localhost:5173").
	AllowedOrigin string

	// DataDir is the directory for persistent data (default "~/.waconnect").
	DataDir string

	// DatabasePath is the lifecycle event log (default DataDir/waconnect.db).
	DatabasePath string

	// DevicePath is the engine credential store (default DataDir/device.db).
	DevicePath string

	// EngineLogLevel is the engine's log level (default "WARN").
	EngineLogLevel string

	// DeviceName is shown in the phone's linked devices list.
	DeviceName string

	// EngineOptions are passed to the engine without interpretation.
	EngineOptions map[string]string

	// PingInterval is the event channel keepalive interval (default 25s).
	PingInterval time.Duration
}

// Builder constructs a waconnect App.
type Builder struct {
	config Config
	engine engine.Engine
	store  store.EventLog
	bus    eventbus.Bus
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithEngine sets the messaging engine.
func (b *Builder) WithEngine(e engine.Engine) *Builder {
	b.engine = e
	return b
}

// WithStore sets the lifecycle event log.
func (b *Builder) WithStore(s store.EventLog) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	if err := applyDefaults(ctx, b); err != nil {
		return nil, err
	}

	ctrl := session.New(b.engine, b.bus, b.store)
	handler := httpapi.New(ctrl, b.store, httpapi.Options{
		AllowedOrigin: b.config.AllowedOrigin,
		PingInterval:  b.config.PingInterval,
	})

	return &App{
		config:     b.config,
		engine:     b.engine,
		store:      b.store,
		controller: ctrl,
		handler:    handler,
	}, nil
}

// App is a waconnect application.
type App struct {
	config     Config
	engine     engine.Engine
	store      store.EventLog
	controller *session.Controller
	handler    *httpapi.Handler
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.handler.Router() }

// Start runs the engine and serves HTTP on the configured address. Blocks
// until ctx is done; an engine failure leaves the server running.
func (a *App) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.ServerAddr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is like Start but accepts connections on ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The controller outlives engine failures, so it only stops with ctx.
	ctrlErr := make(chan error, 1)
	go func() {
		ctrlErr <- a.controller.Run(ctx)
	}()

	srv := &http.Server{Handler: a.handler.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("waconnect server listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-ctrlErr
		a.Close()
		return err
	}
	cancel()

	return errors.Join(<-ctrlErr, a.Close())
}

// Close releases the engine and the event log.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.engine.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
