package wsproto

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// CloseError wraps a close frame's code and reason, returned by Receive
// when the peer initiates the closing handshake.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("wsproto: peer closed (%d) %s", e.Code, e.Reason)
}

// Session is one upgraded connection's websocket half: frame codec plus
// the minimal control-frame handling (ping/pong, close) RFC 6455
// requires of every endpoint. It satisfies roll.WebSocketConn.
type Session struct {
	conn       net.Conn
	reader     *bufio.Reader
	protocol   string
	isServer   bool

	writeMu    sync.Mutex
	closeOnce  sync.Once
	closed     bool
}

func newSession(conn net.Conn, reader *bufio.Reader, protocol string, isServer bool) *Session {
	return &Session{conn: conn, reader: reader, protocol: protocol, isServer: isServer}
}

// Protocol returns the negotiated subprotocol, or "" if none was negotiated.
func (s *Session) Protocol() string { return s.protocol }

// Send writes one complete (unfragmented) text or binary message.
func (s *Session) Send(ctx context.Context, message []byte, binary bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	}
	opcode := byte(opText)
	if binary {
		opcode = opBinary
	}
	return writeFrame(s.conn, opcode, message)
}

// Receive blocks for the next data frame, transparently answering pings
// and absorbing pongs. A close frame from the peer surfaces as a
// *CloseError; an abrupt disconnect surfaces as ErrConnectionClosed.
func (s *Session) Receive(ctx context.Context) ([]byte, bool, error) {
	for {
		if dl, ok := ctx.Deadline(); ok {
			_ = s.conn.SetReadDeadline(dl)
		} else {
			_ = s.conn.SetReadDeadline(time.Time{})
		}
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}

		f, err := readFrame(s.reader)
		if err != nil {
			return nil, false, err
		}
		switch f.opcode {
		case opPing:
			s.writeMu.Lock()
			_ = writeFrame(s.conn, opPong, f.payload)
			s.writeMu.Unlock()
		case opPong:
			// No liveness tracking to update yet; absorbed and ignored.
		case opClose:
			code, reason := parseCloseFrame(f.payload)
			s.writeMu.Lock()
			_ = writeFrame(s.conn, opClose, f.payload)
			s.writeMu.Unlock()
			return nil, false, &CloseError{Code: code, Reason: reason}
		case opText:
			return f.payload, false, nil
		case opBinary:
			return f.payload, true, nil
		default:
			// Fragmented continuation frames are out of scope: every
			// message this module writes and expects is a single frame.
		}
	}
}

// Close sends a close frame with the given status code and reason, then
// tears down the underlying socket. It is safe to call more than once.
func (s *Session) Close(ctx context.Context, code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		payload := make([]byte, 2+len(reason))
		binary.BigEndian.PutUint16(payload, uint16(code))
		copy(payload[2:], reason)

		s.writeMu.Lock()
		err = writeFrame(s.conn, opClose, payload)
		s.writeMu.Unlock()

		s.closed = true
		_ = s.conn.Close()
	})
	return err
}

func parseCloseFrame(payload []byte) (code int, reason string) {
	if len(payload) < 2 {
		return 1005, "" // RFC 6455 §7.1.5: "No Status Rcvd"
	}
	return int(binary.BigEndian.Uint16(payload[:2])), string(payload[2:])
}
