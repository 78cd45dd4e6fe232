package roll

import (
	"context"
	"errors"
	"net/http"
	"sort"
)

// Handler answers one HTTP request. vars carries the typed path
// parameters extracted by the router (§3 "Route payload").
type Handler func(ctx context.Context, req *Request, resp *Response, vars map[string]string) error

// WebSocketConn is the minimal surface a websocket route handler needs
// from the underlying session; wsproto.Session satisfies it. Accepting
// the interface here, rather than the concrete wsproto type, keeps the
// router decoupled from the wire-level framing implementation.
type WebSocketConn interface {
	Send(ctx context.Context, message []byte, binary bool) error
	Receive(ctx context.Context) (message []byte, binary bool, err error)
	Close(ctx context.Context, code int, reason string) error
}

// WebSocketHandler answers one upgraded connection after the handshake
// completes.
type WebSocketHandler func(ctx context.Context, req *Request, ws WebSocketConn, vars map[string]string) error

// RoutePayload is what gets registered against one compiled path
// pattern: either a method->Handler table for ordinary HTTP routes, or
// a single WebSocketHandler for a websocket route (§3). Name, if set,
// lets URLFor resolve the pattern back to a concrete path. LazyBody
// opts the route out of the automatic pre-handler body load (§4.6 step
// 4); Subprotocols is the route's declared, ordered subprotocol list,
// consulted during the websocket handshake (§4.7) and meaningless on a
// non-websocket route.
type RoutePayload struct {
	Name         string
	Methods      map[string]Handler
	WebSocket    WebSocketHandler
	Hooks        *Pipeline // route-scoped hooks, run after global ones
	LazyBody     bool
	Subprotocols []string
}

func newRoutePayload(name string) *RoutePayload {
	return &RoutePayload{Name: name, Methods: make(map[string]Handler), Hooks: newPipeline()}
}

// RouteOption configures the RoutePayload App.Route/App.WebSocketRoute
// build, following the same functional-options idiom App itself uses
// (app.go's Option). Passed as the trailing extras of Route/WebSocketRoute.
type RouteOption func(*RoutePayload)

// LazyBody marks a route as owning its own body load (§3 "flags
// (lazy_body ...)"): dispatch skips the automatic pre-handler
// LoadBody call, leaving the handler free to stream the body itself
// via Request.NextChunk/Read on its own schedule.
func LazyBody() RouteOption {
	return func(p *RoutePayload) { p.LazyBody = true }
}

// Subprotocols declares the ordered list of websocket subprotocols a
// route accepts (§3 "optional subprotocols list for WebSocket
// routes"); the handshake negotiates the first client-offered protocol
// that also appears here, or none if nothing matches.
func Subprotocols(protocols ...string) RouteOption {
	return func(p *RoutePayload) { p.Subprotocols = append([]string(nil), protocols...) }
}

// IsWebSocket reports whether this route answers upgrade requests
// instead of ordinary HTTP methods.
func (p *RoutePayload) IsWebSocket() bool { return p.WebSocket != nil }

// AllowedMethods lists the HTTP methods registered for this route, sorted;
// Match collects them into the Context of its 405 error.
func (p *RoutePayload) AllowedMethods() []string {
	methods := make([]string, 0, len(p.Methods))
	for m := range p.Methods {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

type route struct {
	pattern *compiledPattern
	payload *RoutePayload
	order   int // registration order, used as the stable tiebreaker
}

// MatchedRoute is the result of a successful Router.Match: the payload
// that owns the matched pattern, plus the path variables it extracted.
// Requests carry their MatchedRoute from dispatch onward (§3).
type MatchedRoute struct {
	Payload *RoutePayload
	Vars    map[string]string
}

// Router holds the registered path patterns and dispatches a (method,
// path) pair to the most specific matching route (§4.4, C4).
//
// Registering the same pattern twice with disjoint method sets merges
// them onto one route — GET and POST on the same path is the ordinary
// way a resource ends up with more than one handler. Registering the
// same (pattern, method) pair twice is the genuinely ambiguous case:
// this router rejects it via ErrDuplicateRoute rather than silently
// letting the second registration shadow the first, since a shadowed
// handler in a statically-registered router almost always means a typo
// (see the Open Question decision in DESIGN.md).
type Router struct {
	routes   []*route
	byName   map[string]*route
	nextOrd  int
}

// NewRouter allocates an empty Router.
func NewRouter() *Router {
	return &Router{byName: make(map[string]*route)}
}

// Add compiles pattern and registers payload against it. Registering the
// same pattern a second time with different methods merges into the
// existing route's method table — "GET + POST on the same path" is the
// canonical case the spec names. Registering the same (pattern, method)
// pair twice, or mixing a websocket payload onto a pattern that already
// carries one, returns ErrDuplicateRoute.
func (rt *Router) Add(pattern string, payload *RoutePayload) error {
	for _, existing := range rt.routes {
		if existing.pattern.raw != pattern {
			continue
		}
		if payload.IsWebSocket() || existing.payload.IsWebSocket() {
			return ErrDuplicateRoute
		}
		for method, handler := range payload.Methods {
			if _, dup := existing.payload.Methods[method]; dup {
				return ErrDuplicateRoute
			}
			existing.payload.Methods[method] = handler
		}
		if payload.Name != "" && existing.payload.Name == "" {
			existing.payload.Name = payload.Name
			rt.byName[payload.Name] = existing
		}
		return nil
	}

	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	r := &route{pattern: cp, payload: payload, order: rt.nextOrd}
	rt.nextOrd++
	rt.routes = append(rt.routes, r)
	if payload.Name != "" {
		rt.byName[payload.Name] = r
	}
	return nil
}

// Match resolves path against the registered patterns. Among patterns
// that match, the most specific one wins (compilePattern's specificity
// score: literal segments beat typed placeholders beat plain
// placeholders beat a trailing {name:path}); ties keep the
// first-registered route, matching the Open Question decision recorded
// in DESIGN.md.
//
// If one or more patterns match the path but none registers the
// request's method, Match returns a 405 HttpError whose Context error
// lists the union of allowed methods. If nothing matches at all, it returns
// RouteNotFound(path).
func (rt *Router) Match(method, path string) (*MatchedRoute, error) {
	var best *route
	var bestVars map[string]string
	var pathMatchedAnyMethod bool
	var allowed = map[string]struct{}{}

	for _, r := range rt.routes {
		vars, ok := r.pattern.match(path)
		if !ok {
			continue
		}
		pathMatchedAnyMethod = true
		if !routeHandlesMethod(r.payload, method) {
			for _, m := range r.payload.AllowedMethods() {
				allowed[m] = struct{}{}
			}
			if r.payload.IsWebSocket() {
				allowed["GET"] = struct{}{}
			}
			continue
		}
		if best == nil ||
			r.pattern.specificity > best.pattern.specificity {
			best, bestVars = r, vars
		}
	}

	if best != nil {
		return &MatchedRoute{Payload: best.payload, Vars: bestVars}, nil
	}
	if pathMatchedAnyMethod {
		methods := make([]string, 0, len(allowed))
		for m := range allowed {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		return nil, WrapHttpError(http.StatusMethodNotAllowed, "Method Not Allowed", errors.New(joinComma(methods)))
	}
	return nil, RouteNotFound(path)
}

func routeHandlesMethod(p *RoutePayload, method string) bool {
	if p.IsWebSocket() {
		return method == http.MethodGet
	}
	_, ok := p.Methods[method]
	return ok
}

// URLFor reverses a named route's pattern back into a concrete path by
// substituting params.
func (rt *Router) URLFor(name string, params map[string]string) (string, error) {
	r, ok := rt.byName[name]
	if !ok {
		return "", ErrUnknownRouteName
	}
	return r.pattern.fill(params)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
