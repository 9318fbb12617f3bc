package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport serializes writes to one socket. Control frames bypass the lock
// because gorilla allows WriteControl concurrently with other writers.
type wsTransport struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

func newTransport(ws *websocket.Conn, writeTimeout time.Duration) *wsTransport {
	return &wsTransport{ws: ws, writeTimeout: writeTimeout}
}

func (t *wsTransport) Send(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLocked(v)
}

func (t *wsTransport) writeLocked(v any) error {
	if err := t.ws.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.ws.WriteJSON(v)
}

func (t *wsTransport) Ping() error {
	return t.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout))
}

func (t *wsTransport) Close() error {
	_ = t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second))
	return t.ws.Close()
}
