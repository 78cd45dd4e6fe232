package wsproto

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

func TestAcceptKeyMatchesRFC6455Vector(t *testing.T) {
	// The canonical example from RFC 6455 §1.3.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("AcceptKey = %q, want %q", got, want)
	}
}

func TestAcceptNegotiatesFirstMatchingDeclaredProtocol(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Accept(server, "dGhlIHNhbXBsZSBub25jZQ==", []string{"chat", "superchat"}, []string{"superchat", "chat"})
		if err != nil {
			t.Errorf("Accept: %v", err)
		}
	}()

	joined := readHandshakeHeaders(t, client)
	if !strings.Contains(joined, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Fatalf("missing expected accept header, got: %q", joined)
	}
	if !strings.Contains(joined, "Sec-WebSocket-Protocol: chat") {
		t.Fatalf("expected first client-offered protocol present in declared list, got: %q", joined)
	}
	<-done
}

func TestAcceptNegotiatesNoneWhenRouteDeclaresNoSubprotocols(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Accept(server, "dGhlIHNhbXBsZSBub25jZQ==", []string{"chat", "superchat"}, nil)
		if err != nil {
			t.Errorf("Accept: %v", err)
		}
	}()

	joined := readHandshakeHeaders(t, client)
	if strings.Contains(joined, "Sec-WebSocket-Protocol") {
		t.Fatalf("expected no protocol negotiated when route declares none, got: %q", joined)
	}
	<-done
}

func TestAcceptNegotiatesNoneWhenNoOfferedProtocolIsDeclared(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Accept(server, "dGhlIHNhbXBsZSBub25jZQ==", []string{"chat"}, []string{"superchat"})
		if err != nil {
			t.Errorf("Accept: %v", err)
		}
	}()

	joined := readHandshakeHeaders(t, client)
	if strings.Contains(joined, "Sec-WebSocket-Protocol") {
		t.Fatalf("expected no protocol negotiated on mismatch, got: %q", joined)
	}
	<-done
}

func TestAcceptOmitsProtocolHeaderWhenNoneOffered(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = Accept(server, "dGhlIHNhbXBsZSBub25jZQ==", nil, nil)
	}()

	joined := readHandshakeHeaders(t, client)
	if strings.Contains(joined, "Sec-WebSocket-Protocol") {
		t.Fatalf("expected no protocol header, got: %q", joined)
	}
	<-done
}

func readHandshakeHeaders(t *testing.T, client net.Conn) string {
	t.Helper()
	reader := bufio.NewReader(client)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("expected 101 status line, got %q", statusLine)
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
	return strings.Join(headers, "")
}
