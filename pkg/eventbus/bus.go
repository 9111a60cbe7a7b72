// Package eventbus maintains the single shared channel for push-style
// backend events, multiplexed by topic string.
//
// The client never fails from Subscribe, Unsubscribe, or On: while the
// underlying channel is down, subscription intent is queued locally and
// replayed once the transport reconnects. Events for a given topic are
// delivered to handlers in arrival order; the client introduces no
// reordering or batching.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clawft/clawft-go/pkg/protocol"
)

// Sentinel errors for the eventbus package.
var (
	// ErrNotConnected indicates the transport has no live channel.
	ErrNotConnected = errors.New("eventbus: not connected")

	// ErrClosed indicates the client or transport was closed permanently.
	ErrClosed = errors.New("eventbus: closed")
)

// Handler receives one event frame for a topic it was registered on.
type Handler func(msg *protocol.Message)

// Config holds tunable parameters for the bus client.
type Config struct {
	// ReconnectInterval is the delay between reconnect attempts.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds reconnection; 0 means retry forever.
	MaxReconnectAttempts int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval: 2 * time.Second,
	}
}

// Client multiplexes topic subscriptions and handler registrations over
// one Transport.
type Client struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	mu          sync.RWMutex
	subscribed  map[string]struct{}
	handlers    map[string]map[int]Handler
	anyHandlers map[int]Handler
	nextID      int
	closed      bool

	// Stats
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	reconnectCount   atomic.Int64

	healthMu   sync.RWMutex
	lastHealth *protocol.HealthData
}

// New creates a bus client over the given transport.
// Call Run (in a goroutine) to start receiving.
func New(cfg Config, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultConfig().ReconnectInterval
	}
	return &Client{
		cfg:         cfg,
		transport:   transport,
		logger:      logger,
		subscribed:  make(map[string]struct{}),
		handlers:    make(map[string]map[int]Handler),
		anyHandlers: make(map[int]Handler),
	}
}

// Subscribe registers interest in the given topics. Subscribing to an
// already-subscribed topic is a no-op. Never returns an error: if the
// channel is down the intent is queued and replayed on reconnect.
func (c *Client) Subscribe(topics ...string) {
	added := make([]string, 0, len(topics))

	c.mu.Lock()
	for _, topic := range topics {
		if _, ok := c.subscribed[topic]; ok {
			continue
		}
		c.subscribed[topic] = struct{}{}
		added = append(added, topic)
	}
	c.mu.Unlock()

	if len(added) == 0 {
		return
	}

	msg, err := protocol.NewSubscribe(added)
	if err != nil {
		c.logger.Warn("failed to build subscribe frame", "error", err)
		return
	}
	if err := c.transport.Send(msg); err != nil {
		// Queued: replaySubscriptions resends the full set on reconnect.
		c.logger.Debug("subscribe deferred until reconnect", "topics", added, "error", err)
		return
	}
	c.messagesSent.Add(1)
}

// Unsubscribe removes interest in the given topics. Unsubscribing from a
// non-subscribed topic is a no-op, never an error.
func (c *Client) Unsubscribe(topics ...string) {
	removed := make([]string, 0, len(topics))

	c.mu.Lock()
	for _, topic := range topics {
		if _, ok := c.subscribed[topic]; !ok {
			continue
		}
		delete(c.subscribed, topic)
		removed = append(removed, topic)
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		return
	}

	msg, err := protocol.NewUnsubscribe(removed)
	if err != nil {
		c.logger.Warn("failed to build unsubscribe frame", "error", err)
		return
	}
	if err := c.transport.Send(msg); err != nil {
		c.logger.Debug("unsubscribe deferred", "topics", removed, "error", err)
		return
	}
	c.messagesSent.Add(1)
}

// Subscribed reports whether the client currently holds a subscription to
// the topic.
func (c *Client) Subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscribed[topic]
	return ok
}

// On registers a per-topic handler and returns a function that removes
// exactly that registration, not all handlers for the topic.
func (c *Client) On(topic string, handler Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[topic] == nil {
		c.handlers[topic] = make(map[int]Handler)
	}
	c.handlers[topic][id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if m, ok := c.handlers[topic]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(c.handlers, topic)
			}
		}
	}
}

// OnAny registers a handler invoked for every inbound event frame,
// regardless of topic. Returns a function removing that registration.
func (c *Client) OnAny(handler Handler) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.anyHandlers[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.anyHandlers, id)
	}
}

// Publish sends an event frame on the channel. Used for outbound intent
// events such as push-to-talk notifications.
func (c *Client) Publish(topic string, payload interface{}) error {
	msg, err := protocol.NewEvent(topic, payload)
	if err != nil {
		return err
	}
	if err := c.transport.Send(msg); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}

// Run drives the connect/receive/dispatch loop until ctx is cancelled or
// the client is closed. Call it in a goroutine.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connectWithRetry(ctx); err != nil {
			return err
		}

		c.replaySubscriptions()

		for {
			msg, err := c.transport.Receive()
			if err != nil {
				if c.isClosed() || ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("event channel dropped, reconnecting", "error", err)
				c.reconnectCount.Add(1)
				break
			}
			c.messagesReceived.Add(1)
			c.dispatch(msg)
		}
	}
}

// connectWithRetry connects with automatic retry on failure.
func (c *Client) connectWithRetry(ctx context.Context) error {
	attempts := 0

	for {
		if c.isClosed() {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.transport.Connect(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return err
		}

		c.logger.Warn("event channel connect failed, retrying",
			"error", err,
			"attempt", attempts,
			"retry_in", c.cfg.ReconnectInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// replaySubscriptions resends the full subscription set after a reconnect.
func (c *Client) replaySubscriptions() {
	c.mu.RLock()
	topics := make([]string, 0, len(c.subscribed))
	for topic := range c.subscribed {
		topics = append(topics, topic)
	}
	c.mu.RUnlock()

	if len(topics) == 0 {
		return
	}

	msg, err := protocol.NewSubscribe(topics)
	if err != nil {
		c.logger.Warn("failed to build replay frame", "error", err)
		return
	}
	if err := c.transport.Send(msg); err != nil {
		c.logger.Warn("subscription replay failed", "error", err)
		return
	}
	c.messagesSent.Add(1)
	c.logger.Debug("replayed subscriptions", "topics", topics)
}

// dispatch delivers one inbound frame. Called from the single Run loop
// goroutine, so per-topic handler order matches arrival order.
func (c *Client) dispatch(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypePing:
		var ping protocol.PingData
		if err := msg.ParseData(&ping); err == nil {
			if pong, err := protocol.NewPong(ping); err == nil {
				if err := c.transport.Send(pong); err == nil {
					c.messagesSent.Add(1)
				}
			}
		}
		return
	case protocol.TypePong:
		return
	case protocol.TypeEvent:
		// Fall through to handler dispatch.
	default:
		c.logger.Debug("ignoring frame", "type", msg.Type)
		return
	}

	if msg.Topic == protocol.TopicHealth {
		var health protocol.HealthData
		if err := msg.ParseData(&health); err == nil {
			c.healthMu.Lock()
			c.lastHealth = &health
			c.healthMu.Unlock()
		}
	}

	c.mu.RLock()
	registered := c.handlers[msg.Topic]
	ids := make([]int, 0, len(registered)+len(c.anyHandlers))
	byID := make(map[int]Handler, len(registered)+len(c.anyHandlers))
	for id, h := range registered {
		ids = append(ids, id)
		byID[id] = h
	}
	for id, h := range c.anyHandlers {
		ids = append(ids, id)
		byID[id] = h
	}
	c.mu.RUnlock()

	// Stable order keeps fan-out deterministic across registrations.
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, byID[id])
	}

	for _, h := range handlers {
		h(msg)
	}
}

// LastHealth returns the most recent health report, or nil if none seen.
func (c *Client) LastHealth() *protocol.HealthData {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.lastHealth
}

// Close shuts the client down permanently.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.transport.Close()
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
	}
}

// ClientStats contains bus client statistics.
type ClientStats struct {
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	ReconnectCount   int64 `json:"reconnect_count"`
}
