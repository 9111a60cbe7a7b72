package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/clawft/clawft-go/internal/httpc"
	"github.com/clawft/clawft-go/pkg/eventbus"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// gatewayAdapter talks to a networked clawft gateway: domain operations go
// over the HTTP API, push events arrive over the websocket event channel.
type gatewayAdapter struct {
	lifecycle

	cfg    Config
	logger *slog.Logger
	http   *http.Client

	initMu    sync.Mutex
	bus       *eventbus.Client
	busCancel context.CancelFunc
}

func newGateway(cfg Config) *gatewayAdapter {
	return &gatewayAdapter{
		cfg:    cfg,
		logger: cfg.Logger,
		http:   httpc.Client,
	}
}

// Init fetches the gateway's capability record and brings up the event
// channel. On failure no capability state is exposed.
func (g *gatewayAdapter) Init(ctx context.Context) error {
	g.initMu.Lock()
	defer g.initMu.Unlock()

	if err := g.lifecycle.check(); err == nil {
		return nil // Already initialized
	} else if err == ErrDisposed {
		return err
	}

	var caps Capabilities
	if err := g.doJSON(ctx, http.MethodGet, "/api/capabilities", nil, &caps); err != nil {
		return fmt.Errorf("backend: init failed: %w", err)
	}

	transport := eventbus.NewWSTransport(g.cfg.GatewayURL, g.cfg.Token)
	bus := eventbus.New(eventbus.Config{ReconnectInterval: g.cfg.ReconnectInterval}, transport, g.logger)

	busCtx, cancel := context.WithCancel(context.Background())
	go bus.Run(busCtx)

	g.bus = bus
	g.busCancel = cancel
	g.bus.Subscribe(protocol.TopicVoiceStatus, protocol.TopicChatMessage, protocol.TopicHealth)

	g.lifecycle.setReady(caps)
	g.logger.Info("gateway backend ready", "url", g.cfg.GatewayURL, "capabilities", caps)
	return nil
}

// Dispose tears down the event channel. All further calls fail with
// ErrDisposed.
func (g *gatewayAdapter) Dispose() error {
	if !g.lifecycle.dispose() {
		return nil
	}
	g.initMu.Lock()
	defer g.initMu.Unlock()
	if g.busCancel != nil {
		g.busCancel()
	}
	if g.bus != nil {
		return g.bus.Close()
	}
	return nil
}

func (g *gatewayAdapter) Capabilities() Capabilities {
	return g.lifecycle.capabilities()
}

func (g *gatewayAdapter) Events() EventSource {
	g.initMu.Lock()
	defer g.initMu.Unlock()
	if g.bus == nil {
		return nil
	}
	return g.bus
}

func (g *gatewayAdapter) OnEvent(fn func(msg *protocol.Message)) func() {
	g.initMu.Lock()
	bus := g.bus
	g.initMu.Unlock()
	if bus == nil {
		// No events flow before Init.
		return func() {}
	}
	return bus.OnAny(fn)
}

// doJSON performs one HTTP round trip against the gateway API.
func (g *gatewayAdapter) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.GatewayURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return &ConnectionError{Reason: method + " " + path, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiBody struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&apiBody); err == nil && apiBody.Error != "" {
			msg = apiBody.Error
		}
		return NewAPIError(resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ─── Domain operations ───────────────────────────────────────────────────────

func (g *gatewayAdapter) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out []AgentInfo
	return out, g.doJSON(ctx, http.MethodGet, "/api/agents", nil, &out)
}

func (g *gatewayAdapter) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out []SessionInfo
	return out, g.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &out)
}

func (g *gatewayAdapter) SessionMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out []ChatMessage
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/messages"
	return out, g.doJSON(ctx, http.MethodGet, path, nil, &out)
}

func (g *gatewayAdapter) SendMessage(ctx context.Context, sessionID, text string) (ChatMessage, error) {
	if err := g.lifecycle.check(); err != nil {
		return ChatMessage{}, err
	}
	var out ChatMessage
	path := "/api/sessions/" + url.PathEscape(sessionID) + "/messages"
	body := map[string]string{"content": text}
	return out, g.doJSON(ctx, http.MethodPost, path, body, &out)
}

func (g *gatewayAdapter) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out []ToolInfo
	return out, g.doJSON(ctx, http.MethodGet, "/api/tools", nil, &out)
}

func (g *gatewayAdapter) SearchMemory(ctx context.Context, query string, limit int) ([]MemoryEntry, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out []MemoryEntry
	path := "/api/memory/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	return out, g.doJSON(ctx, http.MethodGet, path, nil, &out)
}

func (g *gatewayAdapter) ListMemory(ctx context.Context, limit int) ([]MemoryEntry, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out []MemoryEntry
	return out, g.doJSON(ctx, http.MethodGet, "/api/memory?limit="+strconv.Itoa(limit), nil, &out)
}

func (g *gatewayAdapter) WriteMemory(ctx context.Context, content, tags string) (MemoryEntry, error) {
	if err := g.lifecycle.check(); err != nil {
		return MemoryEntry{}, err
	}
	var out MemoryEntry
	body := map[string]string{"content": content, "tags": tags}
	return out, g.doJSON(ctx, http.MethodPost, "/api/memory", body, &out)
}

func (g *gatewayAdapter) Config(ctx context.Context) (map[string]string, error) {
	if err := g.lifecycle.check(); err != nil {
		return nil, err
	}
	var out map[string]string
	return out, g.doJSON(ctx, http.MethodGet, "/api/config", nil, &out)
}

func (g *gatewayAdapter) UpdateConfig(ctx context.Context, patch ConfigPatch) error {
	if err := g.lifecycle.check(); err != nil {
		return err
	}
	return g.doJSON(ctx, http.MethodPatch, "/api/config", patch, nil)
}

func (g *gatewayAdapter) VoiceSettings(ctx context.Context) (VoiceSettings, error) {
	if err := g.lifecycle.check(); err != nil {
		return VoiceSettings{}, err
	}
	var out VoiceSettings
	return out, g.doJSON(ctx, http.MethodGet, "/api/voice/settings", nil, &out)
}

func (g *gatewayAdapter) UpdateVoiceSettings(ctx context.Context, patch ConfigPatch) error {
	if err := g.lifecycle.check(); err != nil {
		return err
	}
	return g.doJSON(ctx, http.MethodPatch, "/api/voice/settings", patch, nil)
}

func (g *gatewayAdapter) VoiceDiagnostics(ctx context.Context) (DiagnosticsResult, error) {
	if err := g.lifecycle.check(); err != nil {
		return DiagnosticsResult{}, err
	}
	var out DiagnosticsResult
	return out, g.doJSON(ctx, http.MethodPost, "/api/voice/diagnostics", nil, &out)
}

// ─── Capability-gated operations ─────────────────────────────────────────────

func (g *gatewayAdapter) PushToTalk(ctx context.Context, pressed bool) error {
	if err := g.lifecycle.gate("PushToTalk", func(c Capabilities) bool { return c.Realtime }); err != nil {
		return err
	}
	topic := protocol.TopicVoicePTTStop
	if pressed {
		topic = protocol.TopicVoicePTTStart
	}
	if err := g.bus.Publish(topic, nil); err != nil {
		return &ConnectionError{Reason: "push-to-talk intent", Cause: err}
	}
	return nil
}

func (g *gatewayAdapter) ListChannels(ctx context.Context) ([]ChannelInfo, error) {
	if err := g.lifecycle.gate("ListChannels", func(c Capabilities) bool { return c.Channels }); err != nil {
		return nil, err
	}
	var out []ChannelInfo
	return out, g.doJSON(ctx, http.MethodGet, "/api/channels", nil, &out)
}

func (g *gatewayAdapter) ListCronJobs(ctx context.Context) ([]CronJobInfo, error) {
	if err := g.lifecycle.gate("ListCronJobs", func(c Capabilities) bool { return c.Cron }); err != nil {
		return nil, err
	}
	var out []CronJobInfo
	return out, g.doJSON(ctx, http.MethodGet, "/api/cron", nil, &out)
}

func (g *gatewayAdapter) ListUsers(ctx context.Context) ([]UserInfo, error) {
	if err := g.lifecycle.gate("ListUsers", func(c Capabilities) bool { return c.MultiUser }); err != nil {
		return nil, err
	}
	var out []UserInfo
	return out, g.doJSON(ctx, http.MethodGet, "/api/users", nil, &out)
}

func (g *gatewayAdapter) Delegate(ctx context.Context, agentID, task string) error {
	if err := g.lifecycle.gate("Delegate", func(c Capabilities) bool { return c.Delegation }); err != nil {
		return err
	}
	body := map[string]string{"agent_id": agentID, "task": task}
	return g.doJSON(ctx, http.MethodPost, "/api/delegate", body, nil)
}

func (g *gatewayAdapter) InstallSkill(ctx context.Context, name string) error {
	if err := g.lifecycle.gate("InstallSkill", func(c Capabilities) bool { return c.SkillInstall }); err != nil {
		return err
	}
	return g.doJSON(ctx, http.MethodPost, "/api/skills/"+url.PathEscape(name)+"/install", nil, nil)
}

func (g *gatewayAdapter) Status(ctx context.Context) (StatusReport, error) {
	if err := g.lifecycle.gate("Status", func(c Capabilities) bool { return c.Monitoring }); err != nil {
		return StatusReport{}, err
	}
	var out StatusReport
	return out, g.doJSON(ctx, http.MethodGet, "/api/status", nil, &out)
}

// Ensure gatewayAdapter implements Adapter.
var _ Adapter = (*gatewayAdapter)(nil)
