package liveserver

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingPeriod   = pongTimeout * 9 / 10
)

// client is one connected live-client, paired with a buffered
// outgoing queue so every write to the socket happens from a single
// goroutine (websocket.Conn forbids concurrent writers).
type client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{server: s, conn: conn, send: make(chan []byte, 64)}
}

// readPump decodes inbound frames and dispatches them, until the
// connection errors or closes.
func (c *client) readPump() {
	defer c.server.unregister(c)
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  liveserver: read error: %v", err)
			}
			return
		}
		c.server.dispatch(c, data)
	}
}

// writePump is the single writer for this connection's socket: every
// outbound frame, whether a direct reply or a broadcast, flows through send.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue drops the frame rather than blocking a slow client forever.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("⚠️  liveserver: client send buffer full, dropping frame")
	}
}
