package room

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		// Cross-origin browsers are allowed; authentication happens at the
		// HTTP layer before the upgrade.
		return true
	},
}

// WSConn adapts a gorilla websocket connection to the actor's Conn contract.
type WSConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewWSConn wraps an accepted websocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

// Send writes one text frame with a deadline. Fire-and-forget from the
// actor's point of view: a failure is an immediate disconnect signal.
func (c *WSConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Open reports whether the connection is still usable.
func (c *WSConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close shuts the connection down. Safe to call more than once.
func (c *WSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ServeWS upgrades the request and binds the resulting connection to the
// actor: the session is registered immediately and a read loop feeds inbound
// frames to the actor until the transport fails.
func ServeWS(actor *Actor, w http.ResponseWriter, r *http.Request) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	conn := NewWSConn(ws)
	session := actor.Connect(conn)
	go readLoop(actor, session, ws)
	return nil
}

func readLoop(actor *Actor, session *Session, ws *websocket.Conn) {
	defer actor.Disconnect(session)
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		actor.HandleFrame(session, data)
	}
}
