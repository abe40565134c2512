package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

// Client is one websocket connection attached to a hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// Attach registers conn with the hub. Any greeting messages are queued ahead
// of broadcasts, e.g. the current status for a fresh dashboard.
func Attach(h *Hub, conn *websocket.Conn, greeting ...Message) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, clientBuffer),
	}
	for _, m := range greeting {
		c.send <- m
	}
	h.register <- c
	return c
}

// Run pumps messages until the connection closes. It blocks, as fiber
// websocket handlers must.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump discards client input; reading is needed to see pongs and closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetReadLimit(maxMessageSize)
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		var err error
		select {
		case msg, open := <-c.send:
			switch {
			case !open:
				c.write(websocket.CloseMessage, nil)
				return
			case msg.Type == BinaryMessage:
				err = c.write(websocket.BinaryMessage, msg.Data)
			default:
				err = c.write(websocket.TextMessage, msg.Data)
			}
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
