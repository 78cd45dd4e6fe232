// Package wsproto implements the RFC 6455 websocket handshake, frame
// codec, and per-connection session loop (component C7). It is kept
// deliberately free of any HTTP server dependency: Accept takes the
// already-parsed Sec-WebSocket-Key and candidate subprotocols and
// returns a Session wrapping the raw net.Conn, the same handoff point
// any HTTP/1.1 implementation reaches once it decides to upgrade.
package wsproto

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net"
)

// acceptGUID is the RFC 6455 magic string XORed, so to speak, into
// every handshake's Sec-WebSocket-Accept computation.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key request header.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Accept performs the server side of the opening handshake on conn and
// returns a Session ready to exchange frames. offered is the ordered
// list of subprotocols the client sent (Sec-WebSocket-Protocol, split
// on comma, in client-preference order); declared is the route's own
// list of subprotocols it is willing to speak. The negotiated protocol
// is the first entry of offered that also appears in declared;
// if declared is empty, or nothing offered matches it, none is
// negotiated and the response carries no Sec-WebSocket-Protocol header.
func Accept(conn net.Conn, key string, offered, declared []string) (*Session, error) {
	acceptValue := AcceptKey(key)
	negotiated := negotiateSubprotocol(offered, declared)

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		fmt.Sprintf("Sec-WebSocket-Accept: %s\r\n", acceptValue)
	if negotiated != "" {
		resp += fmt.Sprintf("Sec-WebSocket-Protocol: %s\r\n", negotiated)
	}
	resp += "\r\n"

	if _, err := conn.Write([]byte(resp)); err != nil {
		return nil, err
	}

	return newSession(conn, bufio.NewReader(conn), negotiated, true), nil
}

// negotiateSubprotocol picks the first client-offered protocol that
// also appears in the route's declared list, in client-preference
// order, or "" if declared is empty or nothing matches.
func negotiateSubprotocol(offered, declared []string) string {
	for _, want := range offered {
		for _, have := range declared {
			if want == have {
				return want
			}
		}
	}
	return ""
}
