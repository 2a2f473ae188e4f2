package realtime

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const defaultPingTimeout = 10 * time.Second

// Transport is the connection a session writes snapshots to. Implementations
// need not be safe for concurrent writes; the session serializes them.
type Transport interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Ping() error
	Close() error
}

// WebsocketTransport adapts a fiber websocket connection.
type WebsocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	readTimeout  time.Duration
}

// NewWebsocketTransport wraps conn. readTimeout bounds how long the peer
// may stay silent, including pongs; zero disables it.
func NewWebsocketTransport(conn *websocket.Conn, writeTimeout, readTimeout time.Duration) *WebsocketTransport {
	t := &WebsocketTransport{conn: conn, writeTimeout: writeTimeout, readTimeout: readTimeout}
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
	}
	return t
}

func (t *WebsocketTransport) WriteJSON(v any) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteJSON(v)
}

func (t *WebsocketTransport) ReadJSON(v any) error {
	if err := t.conn.ReadJSON(v); err != nil {
		return err
	}
	if t.readTimeout > 0 {
		return t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}
	return nil
}

func (t *WebsocketTransport) Ping() error {
	timeout := t.writeTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func (t *WebsocketTransport) Close() error {
	return t.conn.Close()
}
