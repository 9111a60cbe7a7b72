package hub

import (
	"testing"
	"time"

	"github.com/clawft/clawft-go/pkg/protocol"
)

// addClient registers a bare client with a drained hub for routing tests.
func addClient(t *testing.T, h *Hub, topics ...string) *Client {
	t.Helper()
	c := &Client{
		hub:    h,
		send:   make(chan []byte, 4),
		topics: make(map[string]bool),
	}
	for _, topic := range topics {
		c.topics[topic] = true
	}
	h.register <- c
	return c
}

func recv(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case data := <-c.send:
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestTopicRouting(t *testing.T) {
	h := New("test")
	go h.Run()

	voiceClient := addClient(t, h, protocol.TopicVoiceStatus)
	chatClient := addClient(t, h, protocol.TopicChatMessage)

	if err := h.PublishEvent(protocol.TopicVoiceStatus, protocol.VoiceStatus{
		State: protocol.StringPtr("listening"),
	}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	msg := recv(t, voiceClient)
	if msg.Topic != protocol.TopicVoiceStatus {
		t.Errorf("unexpected topic %q", msg.Topic)
	}

	select {
	case data := <-chatClient.send:
		t.Errorf("chat client received off-topic frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriptionFrameHandling(t *testing.T) {
	h := New("test")
	go h.Run()
	c := addClient(t, h)

	sub, err := protocol.NewSubscribe([]string{protocol.TopicHealth})
	if err != nil {
		t.Fatalf("build subscribe: %v", err)
	}
	data, _ := sub.Bytes()
	c.handleFrame(data)

	if !c.subscribedTo(protocol.TopicHealth) {
		t.Error("subscribe frame not applied")
	}

	unsub, err := protocol.NewUnsubscribe([]string{protocol.TopicHealth})
	if err != nil {
		t.Fatalf("build unsubscribe: %v", err)
	}
	data, _ = unsub.Bytes()
	c.handleFrame(data)

	if c.subscribedTo(protocol.TopicHealth) {
		t.Error("unsubscribe frame not applied")
	}
}

func TestPingFrameAnswered(t *testing.T) {
	h := New("test")
	go h.Run()
	c := addClient(t, h)

	ping, err := protocol.NewPing()
	if err != nil {
		t.Fatalf("build ping: %v", err)
	}
	data, _ := ping.Bytes()
	c.handleFrame(data)

	msg := recv(t, c)
	if msg.Type != protocol.TypePong {
		t.Errorf("expected pong, got %s", msg.Type)
	}
}

func TestInboundEventForwarded(t *testing.T) {
	h := New("test")
	go h.Run()

	got := make(chan *protocol.Message, 1)
	c := &Client{
		hub:     h,
		send:    make(chan []byte, 4),
		topics:  make(map[string]bool),
		inbound: func(msg *protocol.Message) { got <- msg },
	}
	h.register <- c

	ev, err := protocol.NewEvent(protocol.TopicVoicePTTStart, nil)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	data, _ := ev.Bytes()
	c.handleFrame(data)

	select {
	case msg := <-got:
		if msg.Topic != protocol.TopicVoicePTTStart {
			t.Errorf("unexpected topic %q", msg.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("inbound event not forwarded")
	}
}

func TestStopEndsRunAndDisconnectsClients(t *testing.T) {
	h := New("test")
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()

	c := addClient(t, h)

	h.Stop()
	h.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not exit after stop")
	}

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed send channel after stop")
		}
	case <-time.After(time.Second):
		t.Fatal("client send channel was not closed")
	}

	if h.ClientCount() != 0 {
		t.Errorf("expected no clients after stop, got %d", h.ClientCount())
	}
}

func TestSlowClientDropped(t *testing.T) {
	h := New("test")
	go h.Run()

	c := &Client{
		hub:    h,
		send:   make(chan []byte), // unbuffered, nobody reading
		topics: map[string]bool{protocol.TopicHealth: true},
	}
	h.register <- c

	for i := 0; i < 3; i++ {
		_ = h.PublishEvent(protocol.TopicHealth, protocol.HealthData{Status: "ok"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("slow client was not dropped")
}
