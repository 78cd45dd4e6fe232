package roll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyrates/roll/bytequeue"
	"github.com/pyrates/roll/httpparse"
	"github.com/pyrates/roll/wsproto"
)

// connState names the position of a Connection in its protocol
// lifecycle (§4.6, C6): IDLE -> READING_HEADERS -> READING_BODY ->
// DISPATCHING -> WRITING, looping back to IDLE on keep-alive, or
// diverting to UPGRADED on a successful websocket handshake.
type connState int32

const (
	stateIdle connState = iota
	stateReadingHeaders
	stateReadingBody
	stateDispatching
	stateWriting
	stateUpgraded
	stateClosed
)

const readBufferSize = 64 * 1024

// Connection drives one accepted socket through the HTTP/1.1 protocol
// core: it owns the parser, the current Request/Response pair, and the
// backpressure gate between the socket's read loop and whatever
// goroutine is consuming the body (§4.6). Exactly one goroutine (the
// one running Serve) ever touches the parser or reads the socket;
// dispatch runs on a second goroutine and communicates back only
// through the mutex-guarded fields below, mirroring the producer/
// consumer split bytequeue.Queue formalizes for body chunks.
type Connection struct {
	id     string
	conn   net.Conn
	app    *App
	logger *zap.Logger

	parser *httpparse.Parser
	body   *bytequeue.Queue
	req    *Request
	resp   *Response

	mu           sync.Mutex
	state        connState
	paused       bool
	pendingReset bool
	closed       bool
	lastActivity time.Time
	keepAlive    bool
	pendingErr   error

	resumeCh chan struct{}
	handoff  chan struct{}
}

// NewConnection wraps an accepted socket for App.Serve or App.Factory.
func NewConnection(conn net.Conn, app *App) *Connection {
	c := &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		app:          app,
		logger:       app.logger,
		body:         bytequeue.New(),
		lastActivity: time.Now(),
		resumeCh:     make(chan struct{}, 1),
		handoff:      make(chan struct{}),
	}
	c.req = newRequest(c, c.body)
	c.resp = newResponse()
	c.parser = httpparse.New(c)
	return c
}

// Serve runs the connection's read loop until the peer disconnects, a
// framing error occurs, the connection is upgraded, or it is closed by
// the idle sweep or a server shutdown.
func (c *Connection) Serve(ctx context.Context) {
	c.app.registry.add(c)
	defer c.app.registry.remove(c)
	defer c.closeConn()

	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-c.handoff:
			return
		default:
		}

		if err := c.waitIfPaused(ctx); err != nil {
			return
		}
		if c.isClosed() {
			return
		}

		if c.takePendingReset() {
			c.parser.Reset()
			if ferr := c.parser.Feed(nil); ferr != nil {
				c.handleParseError(ferr)
				return
			}
			continue
		}

		n, err := c.conn.Read(buf)
		c.touch()
		if n > 0 {
			if ferr := c.parser.Feed(buf[:n]); ferr != nil {
				c.handleParseError(ferr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("connection read error", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (c *Connection) waitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused := c.paused
		c.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-c.resumeCh:
		case <-c.handoff:
			return context.Canceled
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) takePendingReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.pendingReset
	c.pendingReset = false
	return v
}

// PauseReading halts the socket read loop; it resumes on the next
// ResumeReading call. Used both for body backpressure (paused after
// every OnBody chunk until the consumer pulls it) and to hold the
// connection still between OnMessageComplete and the response being
// written.
func (c *Connection) PauseReading() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// ResumeReading releases a PauseReading gate.
func (c *Connection) ResumeReading() {
	c.mu.Lock()
	wasPaused := c.paused
	c.paused = false
	c.mu.Unlock()
	if wasPaused {
		select {
		case c.resumeCh <- struct{}{}:
		default:
		}
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// closeIdle is called by the connection registry's sweep goroutine.
func (c *Connection) closeIdle() {
	c.logger.Debug("closing idle connection", zap.String("conn", c.id))
	c.closeConn()
}

func (c *Connection) closeConn() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = stateClosed
	c.mu.Unlock()
	c.conn.Close()
}

// handleParseError closes the connection after a malformed byte stream
// breaks the parser; there is no reliable request state left to answer
// with a proper HTTP error response, so the connection is simply torn
// down, matching the framing-error contract C2 hands back to C6.
func (c *Connection) handleParseError(err error) {
	c.logger.Debug("parse error", zap.String("conn", c.id), zap.Error(err))
	c.closeConn()
}

// --- external launcher entry points (§6) ---
//
// Factory/DataReceived/ConnectionLost mirror the asyncio-protocol
// style interface the spec's external launcher consumes:
// app.factory() hands back a connection-protocol-instance, and the
// launcher feeds it bytes as they arrive and tells it when the
// transport is gone, instead of this package owning the read loop via
// Serve. A Connection is driven by exactly one of Serve or
// DataReceived/ConnectionLost, never both.

// DataReceived feeds bytes the external launcher already read off the
// wire into the connection's parser. It replays a pending keep-alive
// reset first, exactly as Serve's own loop does between messages, so a
// launcher-driven connection keeps pipelining correctly across
// requests.
func (c *Connection) DataReceived(data []byte) error {
	c.touch()
	if c.takePendingReset() {
		c.parser.Reset()
		if err := c.parser.Feed(nil); err != nil {
			c.handleParseError(err)
			return err
		}
	}
	if len(data) == 0 {
		return nil
	}
	if err := c.parser.Feed(data); err != nil {
		c.handleParseError(err)
		return err
	}
	return nil
}

// ConnectionLost tells the connection the external launcher's
// transport is gone, so it can release registry/body-queue resources
// the same way Serve's read loop does on EOF or a framing error.
func (c *Connection) ConnectionLost(cause error) {
	if cause != nil && cause != io.EOF {
		c.logger.Debug("connection lost", zap.String("conn", c.id), zap.Error(cause))
	}
	c.body.End()
	c.app.registry.remove(c)
	c.closeConn()
}

// --- httpparse.EventHandler ---

func (c *Connection) OnMessageBegin() {
	c.req.reset()
	c.body.Clear()
	c.resp.reset()
	c.pendingErr = nil
	c.setState(stateReadingHeaders)
}

func (c *Connection) OnURL(url []byte) {
	if err := c.req.setURL(url); err != nil {
		c.pendingErr = err
	}
}

func (c *Connection) OnHeader(name, value []byte) {
	c.req.Headers.Add(string(name), string(value))
}

func (c *Connection) OnHeadersComplete() {
	c.req.Method = string(c.parser.Method())
	c.req.Upgrade = strings.ToLower(c.req.Headers.Get("UPGRADE"))
	c.keepAlive = c.parser.ShouldKeepAlive()
	c.setState(stateDispatching)
	go c.dispatch()
}

func (c *Connection) OnBody(chunk []byte) {
	c.setState(stateReadingBody)
	_ = c.body.Put(append([]byte(nil), chunk...))
	c.PauseReading()
}

func (c *Connection) OnMessageComplete() {
	c.body.End()
	c.PauseReading()
}

func (c *Connection) OnUpgrade() {
	c.body.End()
	c.PauseReading()
}

// --- dispatch: routing, hooks, handler, response ---

func (c *Connection) dispatch() {
	ctx := c.app.ctx
	req, resp := c.req, c.resp

	if c.pendingErr != nil {
		c.finishWithError(ctx, req, resp, c.pendingErr)
		return
	}

	if err := c.app.pipeline.runHeaders(ctx, req); err != nil {
		c.finishWithError(ctx, req, resp, err)
		return
	}

	matched, matchErr := c.app.router.Match(req.Method, req.Path)
	wantsUpgrade := req.Upgrade == "websocket"

	if matchErr == nil && matched.Payload.IsWebSocket() {
		if !wantsUpgrade {
			c.finishWithError(ctx, req, resp, UpgradeRequired())
			return
		}
		req.Route = matched
		c.handleWebSocket(ctx, req, matched)
		return
	}
	if wantsUpgrade {
		c.finishWithError(ctx, req, resp, NotImplementedUpgrade())
		return
	}
	if matchErr != nil {
		// Unmatched paths still pass the global request hooks first.
		if handled, err := c.app.pipeline.runRequest(ctx, req, resp); err != nil || !handled {
			if err == nil {
				err = matchErr
			}
			c.finishWithError(ctx, req, resp, err)
			return
		}
		c.finishWithResponse(ctx, req, resp)
		return
	}
	req.Route = matched

	if !matched.Payload.LazyBody {
		if err := req.LoadBody(ctx); err != nil {
			c.finishWithError(ctx, req, resp, err)
			return
		}
	}

	handled, err := c.app.pipeline.runRequest(ctx, req, resp)
	if err == nil && !handled {
		handled, err = matched.Payload.Hooks.runRequest(ctx, req, resp)
	}
	if err != nil {
		c.finishWithError(ctx, req, resp, err)
		return
	}
	if !handled {
		handler := matched.Payload.Methods[req.Method]
		if herr := handler(ctx, req, resp, matched.Vars); herr != nil {
			c.finishWithError(ctx, req, resp, herr)
			return
		}
	}
	c.finishWithResponse(ctx, req, resp)
}

func (c *Connection) finishWithError(ctx context.Context, req *Request, resp *Response, cause error) {
	if replaced, handled := c.app.pipeline.runError(ctx, req, cause); handled {
		c.finishWithResponse(ctx, req, replaced)
		return
	}
	if req.Route != nil && req.Route.Payload.Hooks != nil {
		if replaced, handled := req.Route.Payload.Hooks.runError(ctx, req, cause); handled {
			c.finishWithResponse(ctx, req, replaced)
			return
		}
	}
	he := asHttpError(cause)
	resp.reset()
	_ = resp.SetStatus(he.Status)
	resp.SetBody(he.Message)
	c.logger.Debug("request failed",
		zap.String("conn", c.id),
		zap.String("path", req.Path),
		zap.Int("status", he.Status),
		zap.Error(cause))
	c.finishWithResponse(ctx, req, resp)
}

func (c *Connection) finishWithResponse(ctx context.Context, req *Request, resp *Response) {
	if err := c.app.pipeline.runResponse(ctx, req, resp); err != nil {
		c.finishWithError(ctx, req, resp, err)
		return
	}
	if req.Route != nil && req.Route.Payload.Hooks != nil {
		if err := req.Route.Payload.Hooks.runResponse(ctx, req, resp); err != nil {
			c.finishWithError(ctx, req, resp, err)
			return
		}
	}

	c.setState(stateWriting)
	if err := c.writeResponse(req, resp); err != nil {
		c.logger.Debug("write failed", zap.String("conn", c.id), zap.Error(err))
		c.closeConn()
		return
	}
	c.finishMessage(resp)
}

func (c *Connection) finishMessage(resp *Response) {
	keepAlive := c.keepAlive && strings.ToLower(resp.Headers.Get("CONNECTION")) != "close"
	if !keepAlive {
		c.closeConn()
		return
	}
	c.setState(stateIdle)
	c.mu.Lock()
	c.pendingReset = true
	c.mu.Unlock()
	c.ResumeReading()
}

// asHttpError normalizes an arbitrary error into the HttpError used to
// render a response: a handler or hook is allowed to return a plain
// error, which becomes a 500 carrying its message, same as an unguarded
// exception would in the original (§7).
func asHttpError(err error) *HttpError {
	if he, ok := err.(*HttpError); ok {
		return he
	}
	return WrapHttpError(http.StatusInternalServerError, "", err)
}

// --- response serialization (§4.6) ---

func (c *Connection) writeResponse(req *Request, resp *Response) error {
	resp.applyBodylessRule(req.Method)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", resp.status, http.StatusText(resp.status))

	resp.cookies.Each(func(ck *Cookie) {
		buf.WriteString("Set-Cookie: ")
		buf.WriteString(ck.String())
		buf.WriteString("\r\n")
	})

	chunked := !resp.bodyless && resp.IsChunked()
	var payload []byte
	if resp.bodyless {
		resp.Headers.Del("Content-Length")
		resp.Headers.Del("Transfer-Encoding")
	} else if chunked {
		resp.Headers.SetDefault("Transfer-Encoding", "chunked")
		resp.Headers.Del("Content-Length")
	} else {
		payload = resp.bodyBytes
		resp.Headers.SetDefault("Content-Length", strconv.Itoa(len(payload)))
	}

	if !c.keepAlive || strings.EqualFold(resp.Headers.Get("CONNECTION"), "close") {
		resp.Headers.Set("Connection", "close")
	}

	resp.Headers.Each(func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	})
	buf.WriteString("\r\n")
	if payload != nil {
		buf.Write(payload)
	}

	if _, err := c.conn.Write(buf.Bytes()); err != nil {
		return err
	}
	if chunked {
		return c.writeChunkedBody(resp.bodyStream)
	}
	return nil
}

func (c *Connection) writeChunkedBody(stream BodyStream) error {
	for {
		chunk, err := stream()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if len(chunk) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(c.conn, "%x\r\n", len(chunk)); err != nil {
			return err
		}
		if _, err := c.conn.Write(chunk); err != nil {
			return err
		}
		if _, err := c.conn.Write([]byte("\r\n")); err != nil {
			return err
		}
	}
	_, err := c.conn.Write([]byte("0\r\n\r\n"))
	return err
}

// --- websocket handoff (§4.7, C7) ---

func (c *Connection) handleWebSocket(ctx context.Context, req *Request, matched *MatchedRoute) {
	key := req.Headers.Get("SEC-WEBSOCKET-KEY")
	if key == "" {
		c.finishWithError(ctx, req, c.resp, NewHttpError(http.StatusBadRequest, "Missing Sec-WebSocket-Key"))
		return
	}
	if req.Headers.Get("SEC-WEBSOCKET-VERSION") != "13" {
		c.finishWithError(ctx, req, c.resp, NewHttpError(http.StatusBadRequest, "Unsupported Sec-WebSocket-Version"))
		return
	}
	offered := splitCommaList(req.Headers.Get("SEC-WEBSOCKET-PROTOCOL"))

	sess, err := wsproto.Accept(c.conn, key, offered, matched.Payload.Subprotocols)
	if err != nil {
		c.finishWithError(ctx, req, c.resp, WrapHttpError(http.StatusBadRequest, "WebSocket handshake failed", err))
		return
	}

	// The raw connection now belongs to sess: stop the HTTP read loop
	// and never touch c.parser or c.conn again from Serve.
	close(c.handoff)
	c.setState(stateUpgraded)
	c.logger.Debug("websocket upgraded", zap.String("conn", c.id), zap.String("path", req.Path))

	err = c.app.pipeline.runWebSocketConnect(ctx, req, sess)
	if err == nil && matched.Payload.Hooks != nil {
		err = matched.Payload.Hooks.runWebSocketConnect(ctx, req, sess)
	}
	var handlerErr error
	if err == nil {
		handlerErr = matched.Payload.WebSocket(ctx, req, sess, matched.Vars)
	} else {
		handlerErr = err
	}

	c.app.pipeline.runWebSocketDisconnect(ctx, req, handlerErr)
	if matched.Payload.Hooks != nil {
		matched.Payload.Hooks.runWebSocketDisconnect(ctx, req, handlerErr)
	}
	code, reason := closeCodeFor(handlerErr)
	if code == 1011 {
		c.logger.Error("websocket handler died prematurely",
			zap.String("conn", c.id), zap.Error(handlerErr))
	}
	_ = sess.Close(ctx, code, reason)
	c.closeConn()
}

// closeCodeFor maps a websocket handler's outcome to the closing
// handshake status code and reason spec.md §4.7 mandates: 1000 on a
// clean return, 1002 when the peer dropped the connection without a
// proper close frame, 1001 when the handler's context was cancelled,
// and 1011 — logged, since Go has no "re-raise to the supervising
// runtime" across a goroutine boundary — for anything else.
func closeCodeFor(err error) (code int, reason string) {
	switch {
	case err == nil:
		return 1000, ""
	case errors.Is(err, wsproto.ErrConnectionClosed):
		return 1002, "Connection closed untimely."
	case errors.Is(err, context.Canceled):
		return 1001, "Handler cancelled."
	default:
		return 1011, "Handler died prematurely."
	}
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
