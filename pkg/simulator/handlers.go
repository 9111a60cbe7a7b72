package simulator

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clawft/clawft-go/pkg/backend"
)

// Canned fixtures for the networked-only surfaces a local adapter cannot
// back. They give clients something realistic to render.
var (
	simChannels = []backend.ChannelInfo{
		{ID: "general", Platform: "discord", Name: "general", Connected: true},
		{ID: "alerts", Platform: "slack", Name: "alerts", Connected: true},
		{ID: "dm", Platform: "telegram", Name: "direct messages", Connected: false},
	}
	simCronJobs = []backend.CronJobInfo{
		{ID: "daily-digest", Schedule: "0 9 * * *", Task: "send the morning digest", Enabled: true},
		{ID: "backup", Schedule: "30 2 * * *", Task: "snapshot the memory store", Enabled: true},
	}
	simUsers = []backend.UserInfo{
		{ID: "u1", Name: "admin", Role: "owner"},
		{ID: "u2", Name: "guest", Role: "viewer"},
	}
)

// fail maps adapter errors onto HTTP responses the gateway client decodes.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		status = fiber.StatusNotFound
	case backend.IsUnsupported(err):
		status = fiber.StatusNotImplemented
	case errors.Is(err, backend.ErrInvalidLanguage):
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// unsupported rejects operations whose capability flag is off.
func (s *Server) unsupported(c *fiber.Ctx, op string) error {
	return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": op + " is not supported"})
}

func (s *Server) handleCapabilities(c *fiber.Ctx) error {
	return c.JSON(s.caps)
}

func (s *Server) handleListAgents(c *fiber.Ctx) error {
	agents, err := s.adapter.ListAgents(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(agents)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.adapter.ListSessions(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sessions)
}

func (s *Server) handleSessionMessages(c *fiber.Ctx) error {
	msgs, err := s.adapter.SessionMessages(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msgs)
}

// sendMessageRequest is the body for posting a chat message.
type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	reply, err := s.adapter.SendMessage(c.Context(), c.Params("id"), req.Content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(reply)
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	tools, err := s.adapter.ListTools(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(tools)
}

func (s *Server) handleListMemory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := s.adapter.ListMemory(c.Context(), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(entries)
}

func (s *Server) handleSearchMemory(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	entries, err := s.adapter.SearchMemory(c.Context(), c.Query("q"), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(entries)
}

// writeMemoryRequest is the body for storing a memory entry.
type writeMemoryRequest struct {
	Content string `json:"content"`
	Tags    string `json:"tags"`
}

func (s *Server) handleWriteMemory(c *fiber.Ctx) error {
	var req writeMemoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	entry, err := s.adapter.WriteMemory(c.Context(), req.Content, req.Tags)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(entry)
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	values, err := s.adapter.Config(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(values)
}

func (s *Server) handlePatchConfig(c *fiber.Ctx) error {
	var patch backend.ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.adapter.UpdateConfig(c.Context(), patch); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetVoiceSettings(c *fiber.Ctx) error {
	settings, err := s.adapter.VoiceSettings(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(settings)
}

func (s *Server) handlePatchVoiceSettings(c *fiber.Ctx) error {
	var patch backend.ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.adapter.UpdateVoiceSettings(c.Context(), patch); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleVoiceDiagnostics(c *fiber.Ctx) error {
	result, err := s.adapter.VoiceDiagnostics(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleListChannels(c *fiber.Ctx) error {
	if !s.caps.Channels {
		return s.unsupported(c, "channels")
	}
	return c.JSON(simChannels)
}

func (s *Server) handleListCron(c *fiber.Ctx) error {
	if !s.caps.Cron {
		return s.unsupported(c, "cron")
	}
	return c.JSON(simCronJobs)
}

func (s *Server) handleListUsers(c *fiber.Ctx) error {
	if !s.caps.MultiUser {
		return s.unsupported(c, "users")
	}
	return c.JSON(simUsers)
}

// delegateRequest is the body for delegating a task to an agent.
type delegateRequest struct {
	AgentID string `json:"agent_id"`
	Task    string `json:"task"`
}

func (s *Server) handleDelegate(c *fiber.Ctx) error {
	if !s.caps.Delegation {
		return s.unsupported(c, "delegation")
	}
	var req delegateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	return c.JSON(fiber.Map{"agent_id": req.AgentID, "accepted": true})
}

func (s *Server) handleInstallSkill(c *fiber.Ctx) error {
	if !s.caps.SkillInstall {
		return s.unsupported(c, "skill install")
	}
	return c.JSON(fiber.Map{"skill": c.Params("name"), "installed": true})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if !s.caps.Monitoring {
		return s.unsupported(c, "monitoring")
	}
	return c.JSON(backend.StatusReport{
		Status:    "ok",
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
		Clients:   s.events.ClientCount(),
	})
}
