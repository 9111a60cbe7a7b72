// Package simulator provides a stand-in gateway daemon for developing and
// testing clients without a real backend. It serves the gateway REST
// surface from an in-process adapter, fans events out over a websocket
// hub, and scripts voice turns in response to push to talk intents.
package simulator

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/clawft/clawft-go/internal/log"
	"github.com/clawft/clawft-go/pkg/backend"
	"github.com/clawft/clawft-go/pkg/hub"
	"github.com/clawft/clawft-go/pkg/protocol"
)

// Config holds the simulator settings.
type Config struct {
	// Addr is the listen address, e.g. ":7600".
	Addr string

	// Token, when set, is required as a bearer token on every request.
	Token string

	// Capabilities is the set advertised to clients. Zero value means
	// FullCapabilities.
	Capabilities backend.Capabilities

	// TurnDelay paces the scripted voice turn.
	TurnDelay time.Duration

	// HealthInterval paces periodic health events. Zero disables them.
	HealthInterval time.Duration
}

// FullCapabilities is what the simulator advertises by default: every
// capability enabled, so clients can exercise their whole surface.
func FullCapabilities() backend.Capabilities {
	return backend.Capabilities{
		Channels:     true,
		Cron:         true,
		Delegation:   true,
		MultiUser:    true,
		SkillInstall: true,
		Realtime:     true,
		Monitoring:   true,
		Ready:        true,
	}
}

// Server is the simulated gateway daemon.
type Server struct {
	app     *fiber.App
	cfg     Config
	caps    backend.Capabilities
	adapter backend.Adapter
	events  *hub.Hub

	startedAt time.Time
	offEvents func()
	stopOnce  sync.Once
	stopped   chan struct{}

	turnMu  sync.Mutex
	turnSeq int
}

// New creates a simulator serving the given adapter. The adapter must
// already be initialized.
func New(cfg Config, adapter backend.Adapter) *Server {
	if cfg.TurnDelay <= 0 {
		cfg.TurnDelay = 300 * time.Millisecond
	}
	caps := cfg.Capabilities
	if caps == (backend.Capabilities{}) {
		caps = FullCapabilities()
	}
	caps.Ready = true

	s := &Server{
		cfg:     cfg,
		caps:    caps,
		adapter: adapter,
		events:  hub.New("events"),
		stopped: make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "clawft simulator",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.Token != "" {
		app.Use(s.requireToken)
	}

	api := app.Group("/api")
	api.Get("/capabilities", s.handleCapabilities)
	api.Get("/agents", s.handleListAgents)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id/messages", s.handleSessionMessages)
	api.Post("/sessions/:id/messages", s.handleSendMessage)
	api.Get("/tools", s.handleListTools)
	api.Get("/memory", s.handleListMemory)
	api.Get("/memory/search", s.handleSearchMemory)
	api.Post("/memory", s.handleWriteMemory)
	api.Get("/config", s.handleGetConfig)
	api.Patch("/config", s.handlePatchConfig)
	api.Get("/voice/settings", s.handleGetVoiceSettings)
	api.Patch("/voice/settings", s.handlePatchVoiceSettings)
	api.Post("/voice/diagnostics", s.handleVoiceDiagnostics)
	api.Get("/channels", s.handleListChannels)
	api.Get("/cron", s.handleListCron)
	api.Get("/users", s.handleListUsers)
	api.Post("/delegate", s.handleDelegate)
	api.Post("/skills/:name/install", s.handleInstallSkill)
	api.Get("/status", s.handleStatus)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// Start runs the hub, bridges adapter events onto it, and listens on the
// configured address. It blocks until the server shuts down.
func (s *Server) Start() error {
	go s.events.Run()
	s.startedAt = time.Now()

	// Everything the adapter emits goes out to subscribed clients.
	s.offEvents = s.adapter.OnEvent(func(msg *protocol.Message) {
		s.events.Publish(msg)
	})

	if s.cfg.HealthInterval > 0 {
		go s.healthLoop()
	}

	log.Info("simulator listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.offEvents != nil {
			s.offEvents()
		}
		s.events.Stop()
	})
	return s.app.Shutdown()
}

func (s *Server) requireToken(c *fiber.Ctx) error {
	if c.Get("Authorization") != "Bearer "+s.cfg.Token {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	return c.Next()
}

// handleWS serves one websocket client until it disconnects.
func (s *Server) handleWS(conn *websocket.Conn) {
	client := hub.NewClient(s.events, conn, s.handleIntent)
	client.Run()
}

func (s *Server) healthLoop() {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopped:
			return
		case <-ticker.C:
			_ = s.events.PublishEvent(protocol.TopicHealth, protocol.HealthData{
				Status:    "ok",
				UptimeSec: int64(time.Since(s.startedAt).Seconds()),
				Clients:   s.events.ClientCount(),
			})
		}
	}
}
