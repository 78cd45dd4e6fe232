// Package rolltest is the in-process test harness for exercising a
// *roll.App without binding a real TCP socket, the same role
// roll/testing.py's req fixture plays in the original project. It
// drives an App's Connection over a net.Pipe so tests can write raw
// HTTP/1.1 bytes and assert on the parsed response.
package rolltest

import (
	"bufio"
	"context"
	"net"
	"net/http"

	"github.com/pyrates/roll"
)

// Client wraps one live Connection bound to an in-memory pipe.
type Client struct {
	app    *roll.App
	client net.Conn
	reader *bufio.Reader
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts a Connection for app over an in-memory pipe. app's startup
// hook is NOT run here — call app.Serve on a
// real listener for that; New is for exercising routing/hooks/handlers
// on a single connection in isolation.
func New(app *roll.App) *Client {
	server, client := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{app: app, client: client, reader: bufio.NewReader(client), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		conn := roll.NewConnection(server, app)
		conn.Serve(ctx)
	}()
	return c
}

// Do writes a raw HTTP/1.1 request and parses the response. The caller
// supplies the full request, CRLF-terminated, including any body.
func (c *Client) Do(rawRequest string) (*http.Response, error) {
	if _, err := c.client.Write([]byte(rawRequest)); err != nil {
		return nil, err
	}
	return http.ReadResponse(c.reader, nil)
}

// RawConn exposes the client-side pipe endpoint directly, for tests
// that need to drive a protocol this harness doesn't wrap — a
// websocket handshake and frame exchange, for instance.
func (c *Client) RawConn() net.Conn { return c.client }

// Reader exposes the buffered reader wrapping RawConn, so callers that
// already consumed response bytes through it (e.g. the 101 handshake
// response) can keep reading frames from the same buffer without
// losing already-buffered bytes.
func (c *Client) Reader() *bufio.Reader { return c.reader }

// Close tears down the pipe and waits for the connection goroutine to
// exit.
func (c *Client) Close() {
	c.cancel()
	c.client.Close()
	<-c.done
}
