package eventbus

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawft/clawft-go/pkg/protocol"
)

// Transport abstracts the single bidirectional channel the bus client
// multiplexes topics over. Implementations own their own framing; the
// client owns subscription state and handler dispatch.
type Transport interface {
	// Connect establishes (or re-establishes) the channel.
	Connect(ctx context.Context) error

	// Send writes one frame. Returns an error if the channel is down.
	Send(msg *protocol.Message) error

	// Receive blocks until the next frame arrives. Returns an error when
	// the channel drops; the client reconnects and calls Receive again.
	Receive() (*protocol.Message, error)

	// Close tears the channel down permanently.
	Close() error
}

// Websocket keepalive tuning, matching the gateway's expectations.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSTransport is a gorilla/websocket Transport dialing the clawft gateway's
// /ws endpoint. Safe for one concurrent reader and one concurrent writer,
// which is how the bus client drives it.
type WSTransport struct {
	baseURL string
	token   string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	pingStop chan struct{}
}

// NewWSTransport creates a websocket transport for the given gateway base
// URL (http:// or https://; the /ws path and scheme swap are handled here).
func NewWSTransport(baseURL, token string) *WSTransport {
	return &WSTransport{baseURL: baseURL, token: token}
}

// Connect dials the gateway websocket endpoint.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn != nil {
		return nil // Already connected
	}

	u, err := url.Parse(t.baseURL)
	if err != nil {
		return fmt.Errorf("invalid gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	header := make(map[string][]string)
	if t.token != "" {
		header["Authorization"] = []string{"Bearer " + t.token}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", u.String(), err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	t.conn = conn
	t.pingStop = make(chan struct{})
	go t.pingLoop(conn, t.pingStop)

	return nil
}

// pingLoop keeps the connection alive. Only this goroutine and Send write
// to the connection, both under the transport mutex.
func (t *WSTransport) pingLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			if t.conn != conn {
				t.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.mu.Unlock()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// Send writes one frame to the websocket.
func (t *WSTransport) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.dropLocked()
		return fmt.Errorf("websocket write failed: %w", err)
	}
	return nil
}

// Receive blocks until the next frame arrives.
func (t *WSTransport) Receive() (*protocol.Message, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.mu.Lock()
		if t.conn == conn {
			t.dropLocked()
		}
		t.mu.Unlock()
		return nil, fmt.Errorf("websocket read failed: %w", err)
	}

	return protocol.ParseMessage(data)
}

// dropLocked discards the current connection so the next Connect redials.
// Caller must hold t.mu.
func (t *WSTransport) dropLocked() {
	if t.pingStop != nil {
		close(t.pingStop)
		t.pingStop = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

// Close tears the transport down permanently.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.dropLocked()
	return nil
}

// Ensure WSTransport implements Transport.
var _ Transport = (*WSTransport)(nil)
