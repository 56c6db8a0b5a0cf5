package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// ReadWait bounds client silence; clients ping well within it.
	ReadWait = 5 * time.Minute
)

// Conn serializes writes to a gorilla connection, which supports at most
// one concurrent writer. Reads stay single-goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Wrap wraps an upgraded connection.
func Wrap(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// ReadRequest reads and decodes one client frame, renewing the read deadline.
func (c *Conn) ReadRequest() (Request, error) {
	var req Request
	_ = c.ws.SetReadDeadline(time.Now().Add(ReadWait))
	err := c.ws.ReadJSON(&req)
	return req, err
}

// Close sends a normal close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.ws.Close()
}
