package backend

import (
	"context"
	"sync"
	"time"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/eventbus"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// SentMessage records one SendMessage call for assertions.
type SentMessage struct {
	SessionID string
	Text      string
}

// Mock is a mock implementation of Adapter for testing.
type Mock struct {
	lifecycle

	mu sync.RWMutex

	// Capability set applied on Init. Defaults to everything enabled.
	caps Capabilities

	pipe      *eventbus.Pipe
	bus       *eventbus.Client
	busCancel context.CancelFunc

	// Canned data returned by list operations.
	Agents   []AgentInfo
	Sessions []SessionInfo
	Tools    []ToolInfo
	Memories []MemoryEntry
	Channels []ChannelInfo
	CronJobs []CronJobInfo
	Users    []UserInfo
	Settings VoiceSettings
	Report   StatusReport

	// Configurable behavior
	InitFunc                func(ctx context.Context) error
	SendMessageFunc         func(ctx context.Context, sessionID, text string) (ChatMessage, error)
	UpdateConfigFunc        func(ctx context.Context, patch ConfigPatch) error
	UpdateVoiceSettingsFunc func(ctx context.Context, patch ConfigPatch) error
	PushToTalkFunc          func(ctx context.Context, pressed bool) error
	DelegateFunc            func(ctx context.Context, agentID, task string) error
	VoiceDiagnosticsFunc    func(ctx context.Context) (DiagnosticsResult, error)

	// Captured calls for assertions
	MessagesSent    []SentMessage
	ConfigPatches   []ConfigPatch
	VoicePatches    []ConfigPatch
	PTTPresses      []bool
	Delegations     []string
	SkillsInstalled []string
	SearchQueries   []string
	MemoryWritten   []MemoryEntry
	DisposeCalled   bool
}

// NewMock creates a new Mock adapter with every capability enabled.
func NewMock() *Mock {
	return &Mock{
		caps: Capabilities{
			Channels:     true,
			Cron:         true,
			Delegation:   true,
			MultiUser:    true,
			SkillInstall: true,
			Realtime:     true,
			Monitoring:   true,
		},
		Settings: DefaultVoiceSettings(),
		Report:   StatusReport{Status: "ok"},
	}
}

// SetCapabilities overrides the capability set the mock reports once
// initialized. Call before Init; the set is fixed afterwards.
func (m *Mock) SetCapabilities(caps Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caps = caps
}

// Init implements Adapter.
func (m *Mock) Init(ctx context.Context) error {
	if m.InitFunc != nil {
		return m.InitFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pipe == nil {
		m.pipe = eventbus.NewPipe()
		m.bus = eventbus.New(eventbus.Config{ReconnectInterval: 10 * time.Millisecond}, m.pipe, log.L())
		busCtx, cancel := context.WithCancel(context.Background())
		m.busCancel = cancel
		go m.bus.Run(busCtx)
	}
	m.lifecycle.setReady(m.caps)
	return nil
}

// Dispose implements Adapter.
func (m *Mock) Dispose() error {
	if !m.lifecycle.dispose() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisposeCalled = true
	if m.busCancel != nil {
		m.busCancel()
	}
	if m.bus != nil {
		m.bus.Close()
	}
	return nil
}

// Capabilities implements Adapter.
func (m *Mock) Capabilities() Capabilities {
	return m.lifecycle.capabilities()
}

// Events implements Adapter.
func (m *Mock) Events() EventSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bus == nil {
		return nil
	}
	return m.bus
}

// OnEvent implements Adapter.
func (m *Mock) OnEvent(fn func(msg *protocol.Message)) func() {
	m.mu.RLock()
	bus := m.bus
	m.mu.RUnlock()
	if bus == nil {
		return func() {}
	}
	return bus.OnAny(fn)
}

// ListAgents implements Adapter.
func (m *Mock) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AgentInfo{}, m.Agents...), nil
}

// ListSessions implements Adapter.
func (m *Mock) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SessionInfo{}, m.Sessions...), nil
}

// SessionMessages implements Adapter.
func (m *Mock) SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ChatMessage
	for _, sent := range m.MessagesSent {
		if sent.SessionID == sessionID {
			out = append(out, ChatMessage{SessionID: sessionID, Role: "user", Content: sent.Text})
		}
	}
	return out, nil
}

// SendMessage implements Adapter.
func (m *Mock) SendMessage(ctx context.Context, sessionID, text string) (ChatMessage, error) {
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, sessionID, text)
	}
	if err := m.lifecycle.check(); err != nil {
		return ChatMessage{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent = append(m.MessagesSent, SentMessage{SessionID: sessionID, Text: text})
	return ChatMessage{SessionID: sessionID, Role: "agent", Content: "ok"}, nil
}

// ListTools implements Adapter.
func (m *Mock) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolInfo{}, m.Tools...), nil
}

// SearchMemory implements Adapter.
func (m *Mock) SearchMemory(ctx context.Context, query string, limit int) ([]MemoryEntry, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchQueries = append(m.SearchQueries, query)
	if limit > 0 && limit < len(m.Memories) {
		return append([]MemoryEntry{}, m.Memories[:limit]...), nil
	}
	return append([]MemoryEntry{}, m.Memories...), nil
}

// ListMemory implements Adapter.
func (m *Mock) ListMemory(ctx context.Context, limit int) ([]MemoryEntry, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit > 0 && limit < len(m.Memories) {
		return append([]MemoryEntry{}, m.Memories[:limit]...), nil
	}
	return append([]MemoryEntry{}, m.Memories...), nil
}

// WriteMemory implements Adapter.
func (m *Mock) WriteMemory(ctx context.Context, content, tags string) (MemoryEntry, error) {
	if err := m.lifecycle.check(); err != nil {
		return MemoryEntry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := MemoryEntry{ID: "mock-memory", Content: content, Tags: tags}
	m.Memories = append(m.Memories, entry)
	m.MemoryWritten = append(m.MemoryWritten, entry)
	return entry, nil
}

// Config implements Adapter.
func (m *Mock) Config(ctx context.Context) (map[string]string, error) {
	if err := m.lifecycle.check(); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

// UpdateConfig implements Adapter.
func (m *Mock) UpdateConfig(ctx context.Context, patch ConfigPatch) error {
	if m.UpdateConfigFunc != nil {
		return m.UpdateConfigFunc(ctx, patch)
	}
	if err := m.lifecycle.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigPatches = append(m.ConfigPatches, patch)
	return nil
}

// VoiceSettings implements Adapter.
func (m *Mock) VoiceSettings(ctx context.Context) (VoiceSettings, error) {
	if err := m.lifecycle.check(); err != nil {
		return VoiceSettings{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Settings, nil
}

// UpdateVoiceSettings implements Adapter.
func (m *Mock) UpdateVoiceSettings(ctx context.Context, patch ConfigPatch) error {
	if m.UpdateVoiceSettingsFunc != nil {
		return m.UpdateVoiceSettingsFunc(ctx, patch)
	}
	if err := m.lifecycle.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lang, ok := patch["language"]; ok {
		code, isStr := lang.(string)
		if !isStr || !ValidLanguage(code) {
			return ErrInvalidLanguage
		}
		m.Settings.Language = code
	}
	m.VoicePatches = append(m.VoicePatches, patch)
	return nil
}

// VoiceDiagnostics implements Adapter.
func (m *Mock) VoiceDiagnostics(ctx context.Context) (DiagnosticsResult, error) {
	if m.VoiceDiagnosticsFunc != nil {
		return m.VoiceDiagnosticsFunc(ctx)
	}
	if err := m.lifecycle.check(); err != nil {
		return DiagnosticsResult{}, err
	}
	return DiagnosticsResult{Checks: []DiagnosticCheck{
		{Name: "microphone", OK: true},
		{Name: "speaker", OK: true},
	}}, nil
}

// PushToTalk implements Adapter.
func (m *Mock) PushToTalk(ctx context.Context, pressed bool) error {
	if m.PushToTalkFunc != nil {
		return m.PushToTalkFunc(ctx, pressed)
	}
	if err := m.lifecycle.gate("PushToTalk", func(c Capabilities) bool { return c.Realtime }); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PTTPresses = append(m.PTTPresses, pressed)
	return nil
}

// ListChannels implements Adapter.
func (m *Mock) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
	if err := m.lifecycle.gate("ListChannels", func(c Capabilities) bool { return c.Channels }); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ChannelInfo{}, m.Channels...), nil
}

// ListCronJobs implements Adapter.
func (m *Mock) ListCronJobs(ctx context.Context) ([]CronJobInfo, error) {
	if err := m.lifecycle.gate("ListCronJobs", func(c Capabilities) bool { return c.Cron }); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CronJobInfo{}, m.CronJobs...), nil
}

// ListUsers implements Adapter.
func (m *Mock) ListUsers(ctx context.Context) ([]UserInfo, error) {
	if err := m.lifecycle.gate("ListUsers", func(c Capabilities) bool { return c.MultiUser }); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]UserInfo{}, m.Users...), nil
}

// Delegate implements Adapter.
func (m *Mock) Delegate(ctx context.Context, agentID, task string) error {
	if m.DelegateFunc != nil {
		return m.DelegateFunc(ctx, agentID, task)
	}
	if err := m.lifecycle.gate("Delegate", func(c Capabilities) bool { return c.Delegation }); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delegations = append(m.Delegations, agentID+": "+task)
	return nil
}

// InstallSkill implements Adapter.
func (m *Mock) InstallSkill(ctx context.Context, name string) error {
	if err := m.lifecycle.gate("InstallSkill", func(c Capabilities) bool { return c.SkillInstall }); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SkillsInstalled = append(m.SkillsInstalled, name)
	return nil
}

// Status implements Adapter.
func (m *Mock) Status(ctx context.Context) (StatusReport, error) {
	if err := m.lifecycle.gate("Status", func(c Capabilities) bool { return c.Monitoring }); err != nil {
		return StatusReport{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Report, nil
}

// Test helpers

// SimulateEvent injects one event as if the backend had pushed it.
func (m *Mock) SimulateEvent(topic string, payload interface{}) error {
	m.mu.RLock()
	pipe := m.pipe
	m.mu.RUnlock()
	if pipe == nil {
		return ErrNotInitialized
	}
	msg, err := protocol.NewEvent(topic, payload)
	if err != nil {
		return err
	}
	pipe.Inject(msg)
	return nil
}

// SimulateVoiceStatus injects a voice:status patch event.
func (m *Mock) SimulateVoiceStatus(status protocol.VoiceStatus) error {
	return m.SimulateEvent(protocol.TopicVoiceStatus, status)
}

// SimulateDisconnect drops the underlying event channel; the client
// reconnects and replays its subscriptions.
func (m *Mock) SimulateDisconnect() {
	m.mu.RLock()
	pipe := m.pipe
	m.mu.RUnlock()
	if pipe != nil {
		pipe.Drop()
	}
}

// Reset clears all captured data.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent = nil
	m.ConfigPatches = nil
	m.VoicePatches = nil
	m.PTTPresses = nil
	m.Delegations = nil
	m.SkillsInstalled = nil
	m.SearchQueries = nil
	m.MemoryWritten = nil
}

// Ensure Mock implements Adapter.
var _ Adapter = (*Mock)(nil)
