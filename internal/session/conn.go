package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrMalformed wraps client messages that are not a JSON object.
var ErrMalformed = errors.New("session: malformed message")

// Conn is the duplex message channel of one live session.
type Conn interface {
	// Read blocks for the next client message. It returns io.EOF once the
	// client has gone away and an error wrapping [ErrMalformed] for
	// payloads that cannot be decoded.
	Read(ctx context.Context) (Inbound, error)

	// Write sends one event.
	Write(ctx context.Context, event any) error

	// Close ends the session with a normal closure.
	Close(reason string) error
}

// WSConn adapts a server-side websocket to [Conn].
type WSConn struct {
	conn *websocket.Conn
}

var _ Conn = (*WSConn)(nil)

// NewWSConn wraps an accepted websocket connection.
func NewWSConn(c *websocket.Conn) *WSConn {
	return &WSConn{conn: c}
}

// Read implements [Conn].
func (w *WSConn) Read(ctx context.Context) (Inbound, error) {
	var msg Inbound
	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
			return msg, io.EOF
		}
		return msg, fmt.Errorf("session: read: %w", err)
	}
	if typ != websocket.MessageText {
		return msg, fmt.Errorf("%w: binary frame", ErrMalformed)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// Write implements [Conn].
func (w *WSConn) Write(ctx context.Context, event any) error {
	if err := wsjson.Write(ctx, w.conn, event); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// Close implements [Conn].
func (w *WSConn) Close(reason string) error {
	return w.conn.Close(websocket.StatusNormalClosure, reason)
}
