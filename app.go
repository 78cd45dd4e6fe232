package roll

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Option configures an App at construction time, following the
// functional-options idiom the teacher's own config structs default
// through (module.go's Provision defaulting pattern, translated from
// struct-field zero values to explicit options since App is built
// programmatically rather than unmarshaled from a config file).
type Option func(*App)

// WithLogger overrides the zap logger used for connection and
// dispatch diagnostics. Defaults to zap.NewNop() if never set.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithIdleTimeout overrides how long a keep-alive connection may sit
// IDLE before the connection registry's sweep closes it (§5, §9).
// Defaults to 10s.
func WithIdleTimeout(d time.Duration) Option {
	return func(a *App) { a.idleTimeout = d }
}

// App is the top-level facade (C8): it owns the router, the global
// hook pipeline, and the connection registry, and is the value a
// program constructs once and calls Listen on.
type App struct {
	logger      *zap.Logger
	idleTimeout time.Duration

	router   *Router
	pipeline *Pipeline
	registry *connRegistry

	ctx    context.Context
	cancel context.CancelFunc

	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs an App with an empty router and hook pipeline.
func New(opts ...Option) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		logger:      zap.NewNop(),
		idleTimeout: defaultIdleTimeout,
		router:      NewRouter(),
		pipeline:    newPipeline(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.registry = newConnRegistry(a.idleTimeout)
	return a
}

// Route registers an ordinary HTTP route for one or more methods. name,
// if non-empty, makes the route resolvable via URLFor. extras applies
// RouteOptions such as LazyBody before the route is added.
func (a *App) Route(pattern string, methods []string, name string, handler Handler, extras ...RouteOption) error {
	payload := newRoutePayload(name)
	for _, m := range methods {
		payload.Methods[m] = handler
	}
	for _, opt := range extras {
		opt(payload)
	}
	return a.router.Add(pattern, payload)
}

// WebSocketRoute registers a route that only answers upgrade requests.
// extras applies RouteOptions such as Subprotocols before the route is
// added.
func (a *App) WebSocketRoute(pattern string, name string, handler WebSocketHandler, extras ...RouteOption) error {
	payload := newRoutePayload(name)
	payload.WebSocket = handler
	for _, opt := range extras {
		opt(payload)
	}
	return a.router.Add(pattern, payload)
}

// RouteHooks returns the route-scoped hook pipeline registered under
// pattern, so callers can attach per-route listeners after Route or
// WebSocketRoute. It looks the route up by re-walking the router, since
// Router does not expose raw *route values outside the package.
func (a *App) RouteHooks(pattern string) (*Pipeline, bool) {
	for _, r := range a.router.routes {
		if r.pattern.raw == pattern {
			return r.payload.Hooks, true
		}
	}
	return nil, false
}

// URLFor reverses a named route back into a concrete path.
func (a *App) URLFor(name string, params map[string]string) (string, error) {
	return a.router.URLFor(name, params)
}

// Global hook registration, delegating to the App's pipeline (§4.5).
func (a *App) OnStartup(fn LifecycleHook)                       { a.pipeline.OnStartup(fn) }
func (a *App) OnShutdown(fn LifecycleHook)                      { a.pipeline.OnShutdown(fn) }
func (a *App) OnHeaders(fn HeadersHook)                          { a.pipeline.OnHeaders(fn) }
func (a *App) OnRequest(fn RequestHook)                          { a.pipeline.OnRequest(fn) }
func (a *App) OnResponse(fn ResponseHook)                         { a.pipeline.OnResponse(fn) }
func (a *App) OnError(fn ErrorHook)                               { a.pipeline.OnError(fn) }
func (a *App) OnWebSocketConnect(fn WebSocketConnectHook)         { a.pipeline.OnWebSocketConnect(fn) }
func (a *App) OnWebSocketDisconnect(fn WebSocketDisconnectHook)   { a.pipeline.OnWebSocketDisconnect(fn) }

// Listen binds addr and serves connections until Shutdown is called.
// It runs the startup hook before accepting any connection and the
// shutdown hook after the listener stops.
func (a *App) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return a.Serve(ln)
}

// Factory returns the single constructor an external server launcher
// needs (§6 "app.factory() -> connection-protocol-instance"): given an
// accepted net.Conn, it builds the per-connection protocol instance
// and registers it with the idle sweep, without starting the
// self-driven read loop Serve/Listen normally run. A launcher that
// owns its own I/O loop (rather than handing Roll a net.Listener) is
// expected to drive the returned *Connection via DataReceived and
// ConnectionLost instead of calling Connection.Serve.
func (a *App) Factory() func(net.Conn) *Connection {
	return func(conn net.Conn) *Connection {
		c := NewConnection(conn, a)
		a.registry.add(c)
		return c
	}
}

// Serve runs the accept loop over an already-bound listener, letting
// callers supply their own (e.g. a systemd socket activation listener).
func (a *App) Serve(ln net.Listener) error {
	a.listener = ln
	if err := a.pipeline.runStartup(a.ctx); err != nil {
		ln.Close()
		return err
	}
	a.logger.Info("rolling", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-a.ctx.Done():
				a.wg.Wait()
				return a.pipeline.runShutdown(context.Background())
			default:
				return err
			}
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			c := NewConnection(conn, a)
			c.Serve(a.ctx)
		}()
	}
}

// Shutdown stops accepting new connections and closes every tracked
// connection. It does not run the shutdown hook itself: Serve runs it
// once its accept loop sees the listener close.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()
	if a.listener != nil {
		a.listener.Close()
	}
	a.registry.shutdown()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
