// Package backend provides a unified interface to the clawft backend,
// whichever execution environment it runs in. The same domain operations
// (agents, sessions, chat, tools, memory, config, voice) work against a
// networked gateway, an in-process embedded module, or a mock. The variant
// is selected once at startup and fixed for the process lifetime.
//
// Example usage:
//
//	adapter, err := backend.New(backend.DefaultConfig().WithMode(backend.ModeGateway))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := adapter.Init(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Dispose()
//
//	off := adapter.OnEvent(func(msg *protocol.Message) {
//	    // push-driven backend event
//	})
//	defer off()
//
//	reply, err := adapter.SendMessage(ctx, sessionID, "hello")
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/clawft/clawft-go/pkg/eventbus"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// EventSource is the topic-addressed push surface of an adapter. It is
// implemented by the event bus client; see pkg/eventbus for the contract
// (idempotent subscribe, per-topic ordering, no error returns).
type EventSource interface {
	Subscribe(topics ...string)
	Unsubscribe(topics ...string)
	On(topic string, handler eventbus.Handler) func()
}

// Adapter is the façade over one backend execution environment.
//
// All operations are asynchronous in the Go sense: they block the calling
// goroutine, honor ctx, and return typed errors rather than raw transport
// failures. Operations whose capability flag is false fail fast with
// ErrUnsupported and never silently no-op. After Dispose, every operation
// fails with ErrDisposed.
//
// SendMessage performs exactly one round trip that appends to the session
// transcript; repeated identical calls are not deduplicated here, that is
// the caller's responsibility.
type Adapter interface {
	// Init establishes the backend connection or loads the in-process
	// module. Safe to call once; calling it again on a live adapter is a
	// no-op. On failure no partial capability state is exposed:
	// Capabilities() stays all-false with Ready=false.
	Init(ctx context.Context) error

	// Dispose releases the channel or module.
	Dispose() error

	// Capabilities returns the capability record. All-false before Init
	// completes and after Dispose; fixed once Ready is true.
	Capabilities() Capabilities

	// Events returns the adapter's push-event surface, or nil before
	// Init completes. Only meaningful when the Realtime capability is
	// true; without it no events flow.
	Events() EventSource

	// OnEvent registers a callback invoked for every inbound backend
	// event and returns a function removing exactly that registration.
	// Multiple concurrent registrations are all invoked per event.
	OnEvent(fn func(msg *protocol.Message)) func()

	// Domain operations.

	ListAgents(ctx context.Context) ([]AgentInfo, error)
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error)
	SendMessage(ctx context.Context, sessionID, text string) (ChatMessage, error)
	ListTools(ctx context.Context) ([]ToolInfo, error)
	SearchMemory(ctx context.Context, query string, limit int) ([]MemoryEntry, error)
	ListMemory(ctx context.Context, limit int) ([]MemoryEntry, error)
	WriteMemory(ctx context.Context, content, tags string) (MemoryEntry, error)
	Config(ctx context.Context) (map[string]string, error)
	UpdateConfig(ctx context.Context, patch ConfigPatch) error
	VoiceSettings(ctx context.Context) (VoiceSettings, error)
	UpdateVoiceSettings(ctx context.Context, patch ConfigPatch) error

	// VoiceDiagnostics runs the microphone/speaker self-test. Individual
	// check failures are reported inside the result, not as an error.
	VoiceDiagnostics(ctx context.Context) (DiagnosticsResult, error)

	// Capability-gated operations (see Capabilities for the 1:1 mapping).

	// PushToTalk signals a local push-to-talk press (true) or release
	// (false) to the backend. Fire-and-forget. Requires Realtime.
	PushToTalk(ctx context.Context, pressed bool) error

	ListChannels(ctx context.Context) ([]ChannelInfo, error)
	ListCronJobs(ctx context.Context) ([]CronJobInfo, error)
	ListUsers(ctx context.Context) ([]UserInfo, error)
	Delegate(ctx context.Context, agentID, task string) error
	InstallSkill(ctx context.Context, name string) error
	Status(ctx context.Context) (StatusReport, error)
}

// lifecycle holds the init/dispose state machine shared by every adapter
// variant. Capabilities are written once, on successful Init.
type lifecycle struct {
	mu       sync.RWMutex
	caps     Capabilities
	disposed bool
}

// capabilities returns the current capability record.
func (l *lifecycle) capabilities() Capabilities {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.disposed {
		return Capabilities{}
	}
	return l.caps
}

// setReady publishes the capability record with Ready forced true.
func (l *lifecycle) setReady(caps Capabilities) {
	caps.Ready = true
	l.mu.Lock()
	l.caps = caps
	l.mu.Unlock()
}

// ready reports whether Init completed.
func (l *lifecycle) ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.caps.Ready && !l.disposed
}

// dispose marks the adapter disposed. Returns false if already disposed.
func (l *lifecycle) dispose() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return false
	}
	l.disposed = true
	l.caps = Capabilities{}
	return true
}

// check returns the error every operation must fail with when the adapter
// is not in a usable state.
func (l *lifecycle) check() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.disposed {
		return ErrDisposed
	}
	if !l.caps.Ready {
		return ErrNotInitialized
	}
	return nil
}

// gate enforces a capability flag for op, on top of the lifecycle check.
func (l *lifecycle) gate(op string, flag func(Capabilities) bool) error {
	if err := l.check(); err != nil {
		return err
	}
	l.mu.RLock()
	ok := flag(l.caps)
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrUnsupported)
	}
	return nil
}
