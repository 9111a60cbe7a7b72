package hub

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum inbound frame size allowed
	maxMessageSize = 64 * 1024
)

// Client represents a single websocket connection and its topic
// subscriptions.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// inbound receives client-published events (intents) for the server
	// to act on.
	inbound func(*protocol.Message)

	mu     sync.RWMutex
	topics map[string]bool
}

// NewClient creates a client and registers it with the hub. inbound may be
// nil when client-published events need no handling.
func NewClient(hub *Hub, conn *websocket.Conn, inbound func(*protocol.Message)) *Client {
	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		inbound: inbound,
		topics:  make(map[string]bool),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		close(client.send)
	}
	return client
}

// Run starts the client's read and write pumps and blocks until the
// connection closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) subscribedTo(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// handleFrame interprets one inbound protocol frame.
func (c *Client) handleFrame(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Warn("malformed client frame", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeSubscribe:
		var sub protocol.SubscribeData
		if err := msg.ParseData(&sub); err != nil {
			return
		}
		c.mu.Lock()
		for _, topic := range sub.Topics {
			c.topics[topic] = true
		}
		c.mu.Unlock()

	case protocol.TypeUnsubscribe:
		var sub protocol.SubscribeData
		if err := msg.ParseData(&sub); err != nil {
			return
		}
		c.mu.Lock()
		for _, topic := range sub.Topics {
			delete(c.topics, topic)
		}
		c.mu.Unlock()

	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err != nil {
			return
		}
		if pong, err := protocol.NewPong(ping); err == nil {
			if data, err := pong.Bytes(); err == nil {
				select {
				case c.send <- data:
				default:
				}
			}
		}

	case protocol.TypeEvent:
		if c.inbound != nil {
			c.inbound(msg)
		}
	}
}

// readPump reads frames from the connection, tracking subscriptions and
// forwarding client-published events. It also keeps the connection alive
// and detects disconnection.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleFrame(data)
	}
}

// writePump writes queued frames to the connection. Only this goroutine
// writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel, send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
