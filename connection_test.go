package roll_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pyrates/roll"
	"github.com/pyrates/roll/rolltest"
)

func newTestApp(t *testing.T) *roll.App {
	t.Helper()
	app := roll.New(roll.WithIdleTimeout(time.Hour))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func TestConnectionServesSimpleGET(t *testing.T) {
	app := newTestApp(t)
	err := app.Route("/hello", []string{"GET"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		resp.SetBody("hi there")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("GET /hello HTTP/1.1\r\nHost: example\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hi there" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestConnectionReusesKeepAliveAcrossRequests(t *testing.T) {
	app := newTestApp(t)
	hits := 0
	err := app.Route("/count", []string{"GET"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		hits++
		resp.SetBody("ok")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	for i := 0; i < 3; i++ {
		resp, err := client.Do("GET /count HTTP/1.1\r\nHost: example\r\n\r\n")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	if hits != 3 {
		t.Fatalf("expected handler invoked 3 times over one connection, got %d", hits)
	}
}

func TestConnectionStreamsChunkedResponse(t *testing.T) {
	app := newTestApp(t)
	err := app.Route("/stream", []string{"GET"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		parts := [][]byte{[]byte("one-"), []byte("two-"), []byte("three")}
		i := 0
		resp.SetBody(roll.BodyStream(func() ([]byte, error) {
			if i >= len(parts) {
				return nil, io.EOF
			}
			p := parts[i]
			i++
			return p, nil
		}))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("GET /stream HTTP/1.1\r\nHost: example\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.TransferEncoding == nil || resp.TransferEncoding[0] != "chunked" {
		t.Fatalf("expected chunked transfer-encoding, got %v / %v", resp.TransferEncoding, resp.Header)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "one-two-three" {
		t.Fatalf("unexpected assembled body: %q", body)
	}
}

func TestConnectionAutoLoadsBodyBeforeHandler(t *testing.T) {
	app := newTestApp(t)
	var seen string
	err := app.Route("/echo-body", []string{"POST"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		// No manual Read/LoadBody call: the body must already be
		// loaded by the time a non-lazy_body handler runs.
		seen = string(req.Body())
		resp.SetBody(seen)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("POST /echo-body HTTP/1.1\r\nHost: example\r\nContent-Length: 5\r\n\r\nhello")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if seen != "hello" {
		t.Fatalf("expected handler to see pre-loaded body %q, got %q", "hello", seen)
	}
}

func TestConnectionLazyBodyRouteLeavesBodyUnloaded(t *testing.T) {
	app := newTestApp(t)
	var wasLoaded bool
	err := app.Route("/lazy", []string{"POST"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		wasLoaded = len(req.Body()) > 0
		chunk, rerr := req.Read(ctx)
		if rerr != nil {
			return rerr
		}
		resp.SetBody(string(chunk))
		return nil
	}, roll.LazyBody())
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("POST /lazy HTTP/1.1\r\nHost: example\r\nContent-Length: 5\r\n\r\nhello")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if wasLoaded {
		t.Fatal("expected lazy_body route to leave the body unloaded until the handler reads it")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestConnectionReturns404ForUnknownRoute(t *testing.T) {
	app := newTestApp(t)
	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("GET /missing HTTP/1.1\r\nHost: example\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestConnectionReturns405ForWrongMethod(t *testing.T) {
	app := newTestApp(t)
	err := app.Route("/only-get", []string{"GET"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("POST /only-get HTTP/1.1\r\nHost: example\r\nContent-Length: 0\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 405 {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestConnectionRequestHookShortCircuitsHandler(t *testing.T) {
	app := newTestApp(t)
	handlerRan := false
	err := app.Route("/guarded", []string{"GET"}, "", func(ctx context.Context, req *roll.Request, resp *roll.Response, vars map[string]string) error {
		handlerRan = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	app.OnRequest(func(ctx context.Context, req *roll.Request, resp *roll.Response) (bool, error) {
		resp.Headers.Set("X-Guard", "blocked")
		_ = resp.SetStatus(403)
		resp.SetBody("forbidden")
		return true, nil
	})

	client := rolltest.New(app)
	defer client.Close()

	resp, err := client.Do("GET /guarded HTTP/1.1\r\nHost: example\r\n\r\n")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 403 {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if handlerRan {
		t.Fatal("expected request hook to short-circuit before the route handler ran")
	}
}

func TestConnectionWebSocketHandshakeAndEcho(t *testing.T) {
	app := newTestApp(t)
	err := app.WebSocketRoute("/echo", "", func(ctx context.Context, req *roll.Request, ws roll.WebSocketConn, vars map[string]string) error {
		msg, _, err := ws.Receive(ctx)
		if err != nil {
			return err
		}
		return ws.Send(ctx, msg, false)
	})
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	req := "GET /echo HTTP/1.1\r\n" +
		"Host: example\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"

	if _, err := client.RawConn().Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	reader := client.Reader()
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if want := "HTTP/1.1 101"; len(statusLine) < len(want) || statusLine[:len(want)] != want {
		t.Fatalf("expected 101 response, got %q", statusLine)
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}

	if err := rolltest.WriteMaskedFrame(client.RawConn(), 0x1, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	opcode, payload, err := rolltest.ReadServerFrame(reader)
	if err != nil {
		t.Fatal(err)
	}
	if opcode != 0x1 || string(payload) != "ping" {
		t.Fatalf("expected echoed text frame %q, got opcode=%d payload=%q", "ping", opcode, payload)
	}
}

func TestConnectionWebSocketNegotiatesDeclaredSubprotocol(t *testing.T) {
	app := newTestApp(t)
	err := app.WebSocketRoute("/echo", "", func(ctx context.Context, req *roll.Request, ws roll.WebSocketConn, vars map[string]string) error {
		_, _, _ = ws.Receive(ctx)
		return nil
	}, roll.Subprotocols("v2.roll", "v1.roll"))
	if err != nil {
		t.Fatal(err)
	}

	client := rolltest.New(app)
	defer client.Close()

	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	req := "GET /echo HTTP/1.1\r\n" +
		"Host: example\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Protocol: v1.roll, v2.roll\r\n\r\n"

	if _, err := client.RawConn().Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	reader := client.Reader()
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if want := "HTTP/1.1 101"; len(statusLine) < len(want) || statusLine[:len(want)] != want {
		t.Fatalf("expected 101 response, got %q", statusLine)
	}
	var headers []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
		headers = append(headers, line)
	}
	joined := strings.Join(headers, "")
	// both v1.roll and v2.roll are declared by the route, but the
	// client offered v1.roll first, so it wins over the route's own
	// declaration order.
	if !strings.Contains(joined, "Sec-WebSocket-Protocol: v1.roll") {
		t.Fatalf("expected v1.roll negotiated (first client-offered protocol in the declared list), got: %q", joined)
	}
}
