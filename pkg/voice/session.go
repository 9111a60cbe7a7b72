// Package voice tracks the module's voice interaction state on the client
// side. A Session mirrors the backend's voice:status events into a local
// state cell and pushes locally initiated intents (push to talk press and
// release) back through the adapter. The backend is authoritative: inbound
// status patches always win, even when they disagree with the local state.
package voice

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/clawft/clawft-go/pkg/backend"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// Status is the locally mirrored voice state.
type Status struct {
	State          State
	Transcript     string
	Response       string
	TalkModeActive bool
}

// Session is the client-side voice state cell.
type Session struct {
	mu      sync.RWMutex
	adapter backend.Adapter
	logger  *slog.Logger

	status Status

	observers  map[int]func(Status)
	observerID int
}

// NewSession creates a Session starting in the idle state.
func NewSession(adapter backend.Adapter, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		adapter:   adapter,
		logger:    logger,
		status:    Status{State: StateIdle},
		observers: make(map[int]func(Status)),
	}
}

// Status returns a snapshot of the current voice status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// State returns the current voice state.
func (s *Session) State() State {
	return s.Status().State
}

// OnChange registers an observer invoked with a snapshot after every status
// change, and returns a function removing exactly that observer.
func (s *Session) OnChange(fn func(Status)) func() {
	s.mu.Lock()
	id := s.observerID
	s.observerID++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// notifyLocked snapshots the observer set under the held lock and returns a
// closure delivering the status to them. Callers invoke it after unlocking.
func (s *Session) notifyLocked() func() {
	status := s.status
	fns := make([]func(Status), 0, len(s.observers))
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	// map iteration order is random; deliver in registration order
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	return func() {
		for _, fn := range fns {
			fn(status)
		}
	}
}

// apply runs one local transition. Undefined transitions are a no-op.
func (s *Session) apply(in intent) bool {
	s.mu.Lock()
	next, ok := transition(s.status.State, in)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.status.State = next
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
	return true
}

// setState forces the state without consulting the transition function.
func (s *Session) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// StartRecording begins a push to talk turn. Valid only from idle; from any
// other state it is a no-op. The local state moves to listening before the
// adapter is called, and reverts if the adapter rejects the press.
func (s *Session) StartRecording(ctx context.Context) error {
	if !s.apply(intentPress) {
		return nil
	}
	if err := s.adapter.PushToTalk(ctx, true); err != nil {
		s.logger.Warn("push to talk press rejected", "error", err)
		s.setState(StateIdle)
		return err
	}
	return nil
}

// StopRecording ends a push to talk turn. Valid only from listening; from
// any other state it is a no-op. The local state moves to processing and
// the backend takes over from there via status events.
func (s *Session) StopRecording(ctx context.Context) error {
	if !s.apply(intentRelease) {
		return nil
	}
	if err := s.adapter.PushToTalk(ctx, false); err != nil {
		s.logger.Warn("push to talk release rejected", "error", err)
		s.setState(StateIdle)
		return err
	}
	return nil
}

// PlaybackDone signals that response audio finished playing. Valid only
// from speaking; from any other state it is a no-op.
func (s *Session) PlaybackDone() {
	s.apply(intentPlaybackDone)
}

// ApplyStatus applies a sparse status patch from the backend. Only fields
// present in the patch change; everything else keeps its current value.
// State is applied as-is even when the local transition function would
// not allow it, because the backend is authoritative.
func (s *Session) ApplyStatus(patch protocol.VoiceStatus) {
	s.mu.Lock()
	changed := false
	if patch.State != nil {
		state := State(*patch.State)
		if state.Valid() {
			if s.status.State != state {
				s.status.State = state
				changed = true
			}
		} else {
			s.logger.Warn("ignoring unknown voice state", "state", *patch.State)
		}
	}
	if patch.Transcript != nil && s.status.Transcript != *patch.Transcript {
		s.status.Transcript = *patch.Transcript
		changed = true
	}
	if patch.Response != nil && s.status.Response != *patch.Response {
		s.status.Response = *patch.Response
		changed = true
	}
	if patch.TalkModeActive != nil && s.status.TalkModeActive != *patch.TalkModeActive {
		s.status.TalkModeActive = *patch.TalkModeActive
		changed = true
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

/// Bind subscribes the session to voice:status events from src and returns
// a function detaching it again.
func (s *Session) Bind(src backend.EventSource) func() {
	src.Subscribe(protocol.TopicVoiceStatus)
	off := src.On(protocol.TopicVoiceStatus, func(msg *protocol.Message) {
		var patch protocol.VoiceStatus
		if err := msg.ParseData(&patch); err != nil {
			s.logger.Warn("malformed voice status event", "error", err)
			return
		}
		s.ApplyStatus(patch)
	})
	return off
}
