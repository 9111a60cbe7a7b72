package eventbus

import (
	"context"
	"sync"

	"github.com/clawft/clawft-go/pkg/protocol"
)

// Pipe is an in-memory Transport for tests and in-process backends.
// Inject feeds frames to Receive; everything Sent through the transport is
// captured for assertions.
type Pipe struct {
	mu        sync.Mutex
	connected bool
	closed    bool
	incoming  chan *protocol.Message

	// ConnectFunc overrides Connect, e.g. to simulate dial failures.
	ConnectFunc func(ctx context.Context) error

	// Captured frames for assertions.
	sent []*protocol.Message
}

// NewPipe creates a disconnected in-memory transport.
func NewPipe() *Pipe {
	return &Pipe{incoming: make(chan *protocol.Message, 64)}
}

// Connect implements Transport.
func (p *Pipe) Connect(ctx context.Context) error {
	if p.ConnectFunc != nil {
		if err := p.ConnectFunc(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.connected {
		p.connected = true
		p.incoming = make(chan *protocol.Message, 64)
	}
	return nil
}

// Send implements Transport.
func (p *Pipe) Send(msg *protocol.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if !p.connected {
		return ErrNotConnected
	}
	p.sent = append(p.sent, msg)
	return nil
}

// Receive implements Transport.
func (p *Pipe) Receive() (*protocol.Message, error) {
	p.mu.Lock()
	ch := p.incoming
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}

	msg, ok := <-ch
	if !ok {
		return nil, ErrNotConnected
	}
	return msg, nil
}

// Close implements Transport.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.connected {
		p.connected = false
		close(p.incoming)
	}
	return nil
}

// Inject delivers a frame to the receiving side. The send happens under the
// pipe mutex so a concurrent Drop or Close cannot close the channel mid-send;
// if the buffer is full the frame is discarded rather than blocking.
func (p *Pipe) Inject(msg *protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return
	}
	select {
	case p.incoming <- msg:
	default:
	}
}

// Drop simulates the channel dropping: Receive fails until the next Connect.
func (p *Pipe) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.connected = false
		close(p.incoming)
	}
}

// Sent returns a copy of every frame written to the transport so far.
func (p *Pipe) Sent() []*protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*protocol.Message{}, p.sent...)
}

// Connected reports whether the pipe currently has a live channel.
func (p *Pipe) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Ensure Pipe implements Transport.
var _ Transport = (*Pipe)(nil)
