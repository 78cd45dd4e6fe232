package roll

import "context"

// Hook function shapes, one per named lifecycle event (§4.5, C5). Go has
// no duck-typed "call with whatever kwargs fit" dispatch, so each event
// gets its own typed signature and its own registration/run method,
// mirroring how the teacher's webhook manager dedicates one method per
// event (OnStreamAppend, OnStreamCreated, OnStreamDeleted) rather than
// routing everything through a single untyped callback.
type (
	LifecycleHook           func(ctx context.Context) error
	HeadersHook             func(ctx context.Context, req *Request) error
	RequestHook             func(ctx context.Context, req *Request, resp *Response) (handled bool, err error)
	ResponseHook            func(ctx context.Context, req *Request, resp *Response) error
	ErrorHook               func(ctx context.Context, req *Request, cause error) (resp *Response, handled bool)
	WebSocketConnectHook    func(ctx context.Context, req *Request, ws WebSocketConn) error
	WebSocketDisconnectHook func(ctx context.Context, req *Request, cause error)
)

// Pipeline is the ordered set of listeners bound to one App (global
// pipeline) or one route (route-scoped pipeline, run after the global
// one). Listeners run in registration order; a RequestHook or ErrorHook
// that reports handled=true short-circuits the remaining listeners and
// the route dispatch itself, mirroring the original's "first non-None
// result wins" semantics (§4.5).
type Pipeline struct {
	startup             []LifecycleHook
	shutdown            []LifecycleHook
	headers             []HeadersHook
	request             []RequestHook
	response            []ResponseHook
	errorHooks          []ErrorHook
	websocketConnect    []WebSocketConnectHook
	websocketDisconnect []WebSocketDisconnectHook
}

func newPipeline() *Pipeline { return &Pipeline{} }

func (p *Pipeline) OnStartup(fn LifecycleHook)             { p.startup = append(p.startup, fn) }
func (p *Pipeline) OnShutdown(fn LifecycleHook)            { p.shutdown = append(p.shutdown, fn) }
func (p *Pipeline) OnHeaders(fn HeadersHook)                { p.headers = append(p.headers, fn) }
func (p *Pipeline) OnRequest(fn RequestHook)                { p.request = append(p.request, fn) }
func (p *Pipeline) OnResponse(fn ResponseHook)               { p.response = append(p.response, fn) }
func (p *Pipeline) OnError(fn ErrorHook)                     { p.errorHooks = append(p.errorHooks, fn) }
func (p *Pipeline) OnWebSocketConnect(fn WebSocketConnectHook) {
	p.websocketConnect = append(p.websocketConnect, fn)
}
func (p *Pipeline) OnWebSocketDisconnect(fn WebSocketDisconnectHook) {
	p.websocketDisconnect = append(p.websocketDisconnect, fn)
}

func (p *Pipeline) runStartup(ctx context.Context) error {
	for _, fn := range p.startup {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runShutdown(ctx context.Context) error {
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runHeaders fires once headers are parsed but before the body is read,
// letting listeners reject a request early (e.g. on Content-Length) by
// returning an error.
func (p *Pipeline) runHeaders(ctx context.Context, req *Request) error {
	for _, fn := range p.headers {
		if err := fn(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// runRequest fires before route dispatch. The first listener to report
// handled=true stops both the remaining listeners and the route handler
// (or the 404/405 an unmatched path would get); its mutations to resp
// become the final response.
func (p *Pipeline) runRequest(ctx context.Context, req *Request, resp *Response) (bool, error) {
	for _, fn := range p.request {
		handled, err := fn(ctx, req, resp)
		if err != nil {
			return false, err
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}

// runResponse fires after a response has been produced, whether by a
// RequestHook, the route handler, or error handling, letting listeners
// observe or mutate the final response before it is written.
func (p *Pipeline) runResponse(ctx context.Context, req *Request, resp *Response) error {
	for _, fn := range p.response {
		if err := fn(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// runError fires when dispatch or a handler returns an error. The first
// listener to report handled=true supplies the response to write;
// otherwise the caller falls back to the default HttpError rendering.
func (p *Pipeline) runError(ctx context.Context, req *Request, cause error) (*Response, bool) {
	for _, fn := range p.errorHooks {
		if resp, handled := fn(ctx, req, cause); handled {
			return resp, true
		}
	}
	return nil, false
}

func (p *Pipeline) runWebSocketConnect(ctx context.Context, req *Request, ws WebSocketConn) error {
	for _, fn := range p.websocketConnect {
		if err := fn(ctx, req, ws); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runWebSocketDisconnect(ctx context.Context, req *Request, cause error) {
	for _, fn := range p.websocketDisconnect {
		fn(ctx, req, cause)
	}
}
