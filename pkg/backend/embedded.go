package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clawft/clawft-go/internal/store"
	"github.com/clawft/clawft-go/pkg/eventbus"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// embeddedAdapter runs the clawft module in-process: no server, domain
// state lives in a local SQLite store, and push events are dispatched over
// an in-memory channel so callers see the same event surface as in
// gateway mode.
type embeddedAdapter struct {
	lifecycle

	cfg    Config
	logger *slog.Logger

	initMu    sync.Mutex
	db        *store.Store
	pipe      *eventbus.Pipe
	bus       *eventbus.Client
	busCancel context.CancelFunc
	startedAt time.Time
}

// embeddedAgent is the single built-in agent of the in-process module.
var embeddedAgent = AgentInfo{
	ID:          "main",
	Name:        "clawft",
	Description: "embedded clawft module",
}

// embeddedTools lists what the in-process module can do on its own.
var embeddedTools = []ToolInfo{
	{Name: "memory_search", Description: "Search the local memory store"},
	{Name: "memory_write", Description: "Store a memory entry"},
	{Name: "session_history", Description: "Read back a session transcript"},
}

func newEmbedded(cfg Config) *embeddedAdapter {
	return &embeddedAdapter{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Init opens the local store and starts the in-process event dispatch.
func (e *embeddedAdapter) Init(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	if err := e.lifecycle.check(); err == nil {
		return nil // Already initialized
	} else if err == ErrDisposed {
		return err
	}

	db, err := store.New(e.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("backend: init failed: %w", err)
	}

	pipe := eventbus.NewPipe()
	bus := eventbus.New(eventbus.Config{ReconnectInterval: 10 * time.Millisecond}, pipe, e.logger)
	busCtx, cancel := context.WithCancel(context.Background())
	go bus.Run(busCtx)

	e.db = db
	e.pipe = pipe
	e.bus = bus
	e.busCancel = cancel
	e.startedAt = time.Now()

	e.lifecycle.setReady(Capabilities{
		Realtime:   true,
		Monitoring: true,
	})
	e.logger.Info("embedded backend ready", "data_dir", e.cfg.DataDir)
	return nil
}

// Dispose closes the store and stops event dispatch.
func (e *embeddedAdapter) Dispose() error {
	if !e.lifecycle.dispose() {
		return nil
	}
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.busCancel != nil {
		e.busCancel()
	}
	if e.bus != nil {
		e.bus.Close()
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

func (e *embeddedAdapter) Capabilities() Capabilities {
	return e.lifecycle.capabilities()
}

func (e *embeddedAdapter) Events() EventSource {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.bus == nil {
		return nil
	}
	return e.bus
}

func (e *embeddedAdapter) OnEvent(fn func(msg *protocol.Message)) func() {
	e.initMu.Lock()
	bus := e.bus
	e.initMu.Unlock()
	if bus == nil {
		return func() {}
	}
	return bus.OnAny(fn)
}

// emit pushes one event into the in-process channel.
func (e *embeddedAdapter) emit(topic string, payload interface{}) {
	msg, err := protocol.NewEvent(topic, payload)
	if err != nil {
		e.logger.Warn("failed to build event", "topic", topic, "error", err)
		return
	}
	e.pipe.Inject(msg)
}

// ─── Domain operations ───────────────────────────────────────────────────────

func (e *embeddedAdapter) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	return []AgentInfo{embeddedAgent}, nil
}

func (e *embeddedAdapter) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	rows, err := e.db.ListSessions(0)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, SessionInfo(r))
	}
	return out, nil
}

func (e *embeddedAdapter) SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	rows, err := e.db.Messages(sessionID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, ChatMessage(r))
	}
	return out, nil
}

// SendMessage appends the user message, produces the module's reply, and
// emits chat events plus a voice:status response patch.
func (e *embeddedAdapter) SendMessage(ctx context.Context, sessionID, text string) (ChatMessage, error) {
	if err := e.lifecycle.check(); err != nil {
		return ChatMessage{}, err
	}

	if _, err := e.db.GetSession(sessionID); err != nil {
		// Auto-create: the embedded module accepts new session IDs.
		if _, err := e.db.CreateSessionWithID(sessionID, embeddedAgent.ID, ""); err != nil {
			return ChatMessage{}, err
		}
	}

	userRow, err := e.db.AppendMessage(sessionID, "user", text)
	if err != nil {
		return ChatMessage{}, err
	}
	e.emit(protocol.TopicChatMessage, protocol.ChatMessageEvent{
		SessionID: sessionID,
		MessageID: userRow.ID,
		Role:      "user",
		Content:   text,
	})

	reply := e.respond(sessionID, text)
	agentRow, err := e.db.AppendMessage(sessionID, "agent", reply)
	if err != nil {
		return ChatMessage{}, err
	}
	e.emit(protocol.TopicChatMessage, protocol.ChatMessageEvent{
		SessionID: sessionID,
		MessageID: agentRow.ID,
		Role:      "agent",
		Content:   reply,
	})
	e.emit(protocol.TopicVoiceStatus, protocol.VoiceStatus{
		Response: protocol.StringPtr(reply),
	})

	return ChatMessage(agentRow), nil
}

func (e *embeddedAdapter) respond(sessionID, text string) string {
	if e.cfg.Responder != nil {
		return e.cfg.Responder(sessionID, text)
	}
	return fmt.Sprintf("noted: %s", text)
}

func (e *embeddedAdapter) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	return append([]ToolInfo{}, embeddedTools...), nil
}

func (e *embeddedAdapter) SearchMemory(ctx context.Context, query string, limit int) ([]MemoryEntry, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	rows, err := e.db.SearchMemory(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryEntry, 0, len(rows))
	for _, r := range rows {
		sim := similarityFromRank(r.Rank)
		out = append(out, MemoryEntry{
			ID:         r.ID,
			Content:    r.Content,
			Tags:       r.Tags,
			CreatedAt:  r.CreatedAt,
			Similarity: &sim,
		})
	}
	return out, nil
}

// similarityFromRank maps a bm25 rank (more negative = better) onto (0, 1].
func similarityFromRank(rank float64) float64 {
	if rank > 0 {
		rank = -rank
	}
	return 1.0 / (1.0 - rank)
}

func (e *embeddedAdapter) ListMemory(ctx context.Context, limit int) ([]MemoryEntry, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	rows, err := e.db.ListMemory(limit)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryEntry, 0, len(rows))
	for _, r := range rows {
		// No Similarity on listings.
		out = append(out, MemoryEntry{ID: r.ID, Content: r.Content, Tags: r.Tags, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (e *embeddedAdapter) WriteMemory(ctx context.Context, content, tags string) (MemoryEntry, error) {
	if err := e.lifecycle.check(); err != nil {
		return MemoryEntry{}, err
	}
	row, err := e.db.WriteMemory(content, tags)
	if err != nil {
		return MemoryEntry{}, err
	}
	return MemoryEntry{ID: row.ID, Content: row.Content, Tags: row.Tags, CreatedAt: row.CreatedAt}, nil
}

func (e *embeddedAdapter) Config(ctx context.Context) (map[string]string, error) {
	if err := e.lifecycle.check(); err != nil {
		return nil, err
	}
	return e.db.ConfigValues()
}

func (e *embeddedAdapter) UpdateConfig(ctx context.Context, patch ConfigPatch) error {
	if err := e.lifecycle.check(); err != nil {
		return err
	}
	for key, value := range patch {
		if err := e.db.SetConfigValue(key, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}

// voiceSettingsPrefix namespaces voice settings inside the config table.
const voiceSettingsPrefix = "voice."

func (e *embeddedAdapter) VoiceSettings(ctx context.Context) (VoiceSettings, error) {
	if err := e.lifecycle.check(); err != nil {
		return VoiceSettings{}, err
	}
	values, err := e.db.ConfigValues()
	if err != nil {
		return VoiceSettings{}, err
	}

	s := DefaultVoiceSettings()
	applyBool := func(key string, dst *bool) {
		if v, ok := values[voiceSettingsPrefix+key]; ok {
			*dst = v == "true"
		}
	}
	applyBool("enabled", &s.Enabled)
	applyBool("wakeWordEnabled", &s.WakeWordEnabled)
	applyBool("echoCancel", &s.EchoCancel)
	applyBool("noiseSuppression", &s.NoiseSuppression)
	applyBool("pushToTalk", &s.PushToTalk)
	if v, ok := values[voiceSettingsPrefix+"language"]; ok {
		s.Language = v
	}
	return s, nil
}

func (e *embeddedAdapter) UpdateVoiceSettings(ctx context.Context, patch ConfigPatch) error {
	if err := e.lifecycle.check(); err != nil {
		return err
	}
	if lang, ok := patch["language"]; ok {
		code, isStr := lang.(string)
		if !isStr || !ValidLanguage(code) {
			return fmt.Errorf("%v: %w", lang, ErrInvalidLanguage)
		}
	}
	for key, value := range patch {
		if err := e.db.SetConfigValue(voiceSettingsPrefix+key, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}

func (e *embeddedAdapter) VoiceDiagnostics(ctx context.Context) (DiagnosticsResult, error) {
	if err := e.lifecycle.check(); err != nil {
		return DiagnosticsResult{}, err
	}

	var result DiagnosticsResult

	if _, err := e.db.ConfigValues(); err != nil {
		result.Checks = append(result.Checks, DiagnosticCheck{Name: "store", Detail: err.Error()})
	} else {
		result.Checks = append(result.Checks, DiagnosticCheck{Name: "store", OK: true})
	}

	if e.pipe.Connected() {
		result.Checks = append(result.Checks, DiagnosticCheck{Name: "event-channel", OK: true})
	} else {
		result.Checks = append(result.Checks, DiagnosticCheck{Name: "event-channel", Detail: "dispatch loop not running"})
	}

	return result, nil
}

// ─── Capability-gated operations ─────────────────────────────────────────────

// PushToTalk drives a local voice turn: press confirms listening, release
// moves the module to processing and back to idle.
func (e *embeddedAdapter) PushToTalk(ctx context.Context, pressed bool) error {
	if err := e.lifecycle.gate("PushToTalk", func(c Capabilities) bool { return c.Realtime }); err != nil {
		return err
	}
	if pressed {
		e.emit(protocol.TopicVoiceStatus, protocol.VoiceStatus{State: protocol.StringPtr("listening")})
		return nil
	}
	e.emit(protocol.TopicVoiceStatus, protocol.VoiceStatus{State: protocol.StringPtr("idle")})
	return nil
}

func (e *embeddedAdapter) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
	return nil, e.lifecycle.gate("ListChannels", func(c Capabilities) bool { return c.Channels })
}

func (e *embeddedAdapter) ListCronJobs(ctx context.Context) ([]CronJobInfo, error) {
	return nil, e.lifecycle.gate("ListCronJobs", func(c Capabilities) bool { return c.Cron })
}

func (e *embeddedAdapter) ListUsers(ctx context.Context) ([]UserInfo, error) {
	return nil, e.lifecycle.gate("ListUsers", func(c Capabilities) bool { return c.MultiUser })
}

func (e *embeddedAdapter) Delegate(ctx context.Context, agentID, task string) error {
	return e.lifecycle.gate("Delegate", func(c Capabilities) bool { return c.Delegation })
}

func (e *embeddedAdapter) InstallSkill(ctx context.Context, name string) error {
	return e.lifecycle.gate("InstallSkill", func(c Capabilities) bool { return c.SkillInstall })
}

func (e *embeddedAdapter) Status(ctx context.Context) (StatusReport, error) {
	if err := e.lifecycle.gate("Status", func(c Capabilities) bool { return c.Monitoring }); err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		Status:    "ok",
		UptimeSec: int64(time.Since(e.startedAt).Seconds()),
	}, nil
}

// Ensure embeddedAdapter implements Adapter.
var _ Adapter = (*embeddedAdapter)(nil)
