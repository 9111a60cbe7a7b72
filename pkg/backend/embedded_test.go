package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/protocol"
)

func newTestEmbedded(t *testing.T) *embeddedAdapter {
	t.Helper()
	e := newEmbedded(Config{
		Mode:    ModeEmbedded,
		DataDir: t.TempDir(),
		Logger:  log.L(),
	})
	if err := e.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Dispose() })
	return e
}

func TestEmbeddedLifecycle(t *testing.T) {
	t.Run("capabilities", func(t *testing.T) {
		e := newTestEmbedded(t)
		caps := e.Capabilities()
		if !caps.Ready || !caps.Realtime || !caps.Monitoring {
			t.Errorf("unexpected capabilities: %+v", caps)
		}
		if caps.Channels || caps.Cron || caps.Delegation || caps.MultiUser || caps.SkillInstall {
			t.Errorf("embedded mode should not report networked capabilities: %+v", caps)
		}
	})

	t.Run("double init is a no-op", func(t *testing.T) {
		e := newTestEmbedded(t)
		if err := e.Init(context.Background()); err != nil {
			t.Errorf("second init failed: %v", err)
		}
	})

	t.Run("gated ops unsupported", func(t *testing.T) {
		e := newTestEmbedded(t)
		if _, err := e.ListChannels(context.Background()); !IsUnsupported(err) {
			t.Errorf("expected unsupported error, got %v", err)
		}
		if err := e.Delegate(context.Background(), "a", "t"); !IsUnsupported(err) {
			t.Errorf("expected unsupported error, got %v", err)
		}
	})

	t.Run("status reports uptime", func(t *testing.T) {
		e := newTestEmbedded(t)
		report, err := e.Status(context.Background())
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if report.Status != "ok" {
			t.Errorf("expected ok, got %q", report.Status)
		}
	})
}

func TestEmbeddedChat(t *testing.T) {
	t.Run("send message round trip", func(t *testing.T) {
		e := newTestEmbedded(t)
		ctx := context.Background()

		reply, err := e.SendMessage(ctx, "s1", "hello there")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if reply.Role != "agent" || reply.Content == "" {
			t.Errorf("unexpected reply: %+v", reply)
		}

		msgs, err := e.SessionMessages(ctx, "s1")
		if err != nil {
			t.Fatalf("messages failed: %v", err)
		}
		if len(msgs) != 2 {
			t.Fatalf("expected user and agent messages, got %d", len(msgs))
		}
		if msgs[0].Role != "user" || msgs[0].Content != "hello there" {
			t.Errorf("unexpected first message: %+v", msgs[0])
		}

		sessions, err := e.ListSessions(ctx)
		if err != nil {
			t.Fatalf("sessions failed: %v", err)
		}
		if len(sessions) != 1 || sessions[0].ID != "s1" {
			t.Errorf("unexpected sessions: %+v", sessions)
		}
	})

	t.Run("responder hook", func(t *testing.T) {
		e := newEmbedded(Config{
			Mode:    ModeEmbedded,
			DataDir: t.TempDir(),
			Logger:  log.L(),
			Responder: func(sessionID, text string) string {
				return "echo: " + text
			},
		})
		if err := e.Init(context.Background()); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		defer e.Dispose()

		reply, err := e.SendMessage(context.Background(), "s1", "ping")
		if err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if reply.Content != "echo: ping" {
			t.Errorf("responder not applied: %q", reply.Content)
		}
	})

	t.Run("chat events emitted", func(t *testing.T) {
		e := newTestEmbedded(t)

		got := make(chan *protocol.Message, 4)
		e.Events().Subscribe(protocol.TopicChatMessage)
		off := e.Events().On(protocol.TopicChatMessage, func(msg *protocol.Message) {
			got <- msg
		})
		defer off()

		if _, err := e.SendMessage(context.Background(), "s1", "hi"); err != nil {
			t.Fatalf("send failed: %v", err)
		}

		var roles []string
		for i := 0; i < 2; i++ {
			select {
			case msg := <-got:
				var ev protocol.ChatMessageEvent
				if err := msg.ParseData(&ev); err != nil {
					t.Fatalf("parse failed: %v", err)
				}
				roles = append(roles, ev.Role)
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for chat events")
			}
		}
		if roles[0] != "user" || roles[1] != "agent" {
			t.Errorf("unexpected event order: %v", roles)
		}
	})
}

func TestEmbeddedMemory(t *testing.T) {
	e := newTestEmbedded(t)
	ctx := context.Background()

	if _, err := e.WriteMemory(ctx, "the robot likes tea", "prefs"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := e.WriteMemory(ctx, "coffee is out of stock", "pantry"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	all, err := e.ListMemory(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	hits, err := e.SearchMemory(ctx, "tea", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Similarity == nil || *hits[0].Similarity <= 0 || *hits[0].Similarity > 1 {
		t.Errorf("similarity out of range: %v", hits[0].Similarity)
	}
}

func TestEmbeddedVoiceSettings(t *testing.T) {
	t.Run("defaults then patch", func(t *testing.T) {
		e := newTestEmbedded(t)
		ctx := context.Background()

		s, err := e.VoiceSettings(ctx)
		if err != nil {
			t.Fatalf("settings failed: %v", err)
		}
		if s != DefaultVoiceSettings() {
			t.Errorf("expected defaults, got %+v", s)
		}

		patch := ConfigPatch{"language": "ja", "wakeWordEnabled": true}
		if err := e.UpdateVoiceSettings(ctx, patch); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		s, err = e.VoiceSettings(ctx)
		if err != nil {
			t.Fatalf("settings failed: %v", err)
		}
		if s.Language != "ja" || !s.WakeWordEnabled {
			t.Errorf("patch not applied: %+v", s)
		}
	})

	t.Run("invalid language leaves settings untouched", func(t *testing.T) {
		e := newTestEmbedded(t)
		ctx := context.Background()

		err := e.UpdateVoiceSettings(ctx, ConfigPatch{"language": "xx"})
		if !errors.Is(err, ErrInvalidLanguage) {
			t.Fatalf("expected ErrInvalidLanguage, got %v", err)
		}
		s, _ := e.VoiceSettings(ctx)
		if s.Language != DefaultVoiceSettings().Language {
			t.Errorf("language mutated: %q", s.Language)
		}
	})
}

func TestEmbeddedPushToTalk(t *testing.T) {
	e := newTestEmbedded(t)

	got := make(chan string, 2)
	e.Events().Subscribe(protocol.TopicVoiceStatus)
	off := e.Events().On(protocol.TopicVoiceStatus, func(msg *protocol.Message) {
		var status protocol.VoiceStatus
		if err := msg.ParseData(&status); err == nil && status.State != nil {
			got <- *status.State
		}
	})
	defer off()

	if err := e.PushToTalk(context.Background(), true); err != nil {
		t.Fatalf("press failed: %v", err)
	}
	if err := e.PushToTalk(context.Background(), false); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	var states []string
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			states = append(states, s)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for status events")
		}
	}
	if states[0] != "listening" || states[1] != "idle" {
		t.Errorf("unexpected state sequence: %v", states)
	}
}

func TestEmbeddedDiagnostics(t *testing.T) {
	e := newTestEmbedded(t)
	result, err := e.VoiceDiagnostics(context.Background())
	if err != nil {
		t.Fatalf("diagnostics failed: %v", err)
	}
	if len(result.Checks) == 0 {
		t.Fatal("expected at least one check")
	}
	if !result.Passed() {
		t.Errorf("expected all checks to pass: %+v", result.Checks)
	}
}

func TestEmbeddedConfig(t *testing.T) {
	e := newTestEmbedded(t)
	ctx := context.Background()

	if err := e.UpdateConfig(ctx, ConfigPatch{"theme": "dark", "volume": 7}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	values, err := e.Config(ctx)
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if values["theme"] != "dark" || values["volume"] != "7" {
		t.Errorf("unexpected config: %v", values)
	}
}
