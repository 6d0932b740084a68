package dap

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketTransport implements Transport over a websocket connection.
// Each DAP message travels as one text frame without Content-Length headers.
type WebSocketTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWebSocketTransport wraps an established websocket connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Send sends a message as a single text frame.
func (t *WebSocketTransport) Send(msg *Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.WriteMessage(websocket.TextMessage, msg.Content); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive reads the next text frame. Binary frames are rejected and a
// normal close is reported as io.EOF.
func (t *WebSocketTransport) Receive() (*Message, error) {
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if kind != websocket.TextMessage {
		return nil, fmt.Errorf("unexpected websocket frame type %d", kind)
	}
	if len(data) > MaxContentLength {
		return nil, fmt.Errorf("content-length %d exceeds maximum allowed %d", len(data), MaxContentLength)
	}
	return &Message{ContentLength: len(data), Content: data}, nil
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.mu.Unlock()
	return t.conn.Close()
}

// WebSocketHandler returns an http.Handler that upgrades each request and
// passes the resulting transport to serve. serve owns the transport and runs
// on the request goroutine.
func WebSocketHandler(serve func(Transport)) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			return
		}
		serve(NewWebSocketTransport(conn))
	})
}
