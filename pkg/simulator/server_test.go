package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/backend"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	adapter, err := backend.New(backend.Config{
		Mode:    backend.ModeEmbedded,
		DataDir: t.TempDir(),
		Logger:  log.L(),
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := adapter.Init(context.Background()); err != nil {
		t.Fatalf("init adapter: %v", err)
	}
	t.Cleanup(func() { _ = adapter.Dispose() })
	return New(cfg, adapter)
}

func doJSON(t *testing.T, s *Server, method, path string, body, out interface{}) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestCapabilitiesEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})

	var caps backend.Capabilities
	if code := doJSON(t, s, http.MethodGet, "/api/capabilities", nil, &caps); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if caps != FullCapabilities() {
		t.Errorf("unexpected capabilities: %+v", caps)
	}
}

func TestChatEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	var reply backend.ChatMessage
	body := map[string]string{"content": "hello"}
	if code := doJSON(t, s, http.MethodPost, "/api/sessions/s1/messages", body, &reply); code != http.StatusOK {
		t.Fatalf("send status %d", code)
	}
	if reply.Role != "agent" {
		t.Errorf("unexpected reply: %+v", reply)
	}

	var msgs []backend.ChatMessage
	if code := doJSON(t, s, http.MethodGet, "/api/sessions/s1/messages", nil, &msgs); code != http.StatusOK {
		t.Fatalf("messages status %d", code)
	}
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %d", len(msgs))
	}

	var sessions []backend.SessionInfo
	if code := doJSON(t, s, http.MethodGet, "/api/sessions", nil, &sessions); code != http.StatusOK {
		t.Fatalf("sessions status %d", code)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}
}

func TestMemoryEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	var entry backend.MemoryEntry
	body := map[string]string{"content": "the wifi password is hunter2", "tags": "infra"}
	if code := doJSON(t, s, http.MethodPost, "/api/memory", body, &entry); code != http.StatusOK {
		t.Fatalf("write status %d", code)
	}

	var hits []backend.MemoryEntry
	if code := doJSON(t, s, http.MethodGet, "/api/memory/search?q=wifi&limit=5", nil, &hits); code != http.StatusOK {
		t.Fatalf("search status %d", code)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestVoiceSettingsEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	patch := map[string]interface{}{"language": "it"}
	if code := doJSON(t, s, http.MethodPatch, "/api/voice/settings", patch, nil); code != http.StatusNoContent {
		t.Fatalf("patch status %d", code)
	}

	var settings backend.VoiceSettings
	if code := doJSON(t, s, http.MethodGet, "/api/voice/settings", nil, &settings); code != http.StatusOK {
		t.Fatalf("get status %d", code)
	}
	if settings.Language != "it" {
		t.Errorf("expected it, got %q", settings.Language)
	}

	bad := map[string]interface{}{"language": "xx"}
	if code := doJSON(t, s, http.MethodPatch, "/api/voice/settings", bad, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid language, got %d", code)
	}
}

func TestDisabledCapabilityEndpoints(t *testing.T) {
	s := newTestServer(t, Config{
		Capabilities: backend.Capabilities{Realtime: true, Monitoring: true},
	})

	if code := doJSON(t, s, http.MethodGet, "/api/channels", nil, nil); code != http.StatusNotImplemented {
		t.Errorf("channels: expected 501, got %d", code)
	}
	if code := doJSON(t, s, http.MethodGet, "/api/cron", nil, nil); code != http.StatusNotImplemented {
		t.Errorf("cron: expected 501, got %d", code)
	}
	if code := doJSON(t, s, http.MethodPost, "/api/delegate", map[string]string{"agent_id": "a", "task": "t"}, nil); code != http.StatusNotImplemented {
		t.Errorf("delegate: expected 501, got %d", code)
	}
}

func TestEnabledCapabilityEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	var channels []backend.ChannelInfo
	if code := doJSON(t, s, http.MethodGet, "/api/channels", nil, &channels); code != http.StatusOK {
		t.Fatalf("channels status %d", code)
	}
	if len(channels) == 0 {
		t.Error("expected canned channels")
	}

	var users []backend.UserInfo
	if code := doJSON(t, s, http.MethodGet, "/api/users", nil, &users); code != http.StatusOK {
		t.Fatalf("users status %d", code)
	}
	if len(users) == 0 {
		t.Error("expected canned users")
	}
}

func TestTokenAuth(t *testing.T) {
	s := newTestServer(t, Config{Token: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/capabilities", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/capabilities", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = s.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", resp.StatusCode)
	}
}
