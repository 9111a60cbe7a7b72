package backend

// Domain value objects returned by adapters. Each is an immutable snapshot
// used strictly as a data transfer object between the adapter and the
// caller; none holds back-references into adapter state. Timestamps are
// ISO 8601 strings as produced by the gateway and the embedded store.

// AgentInfo describes one configured agent.
type AgentInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Model       string `json:"model,omitempty"`
	Description string `json:"description,omitempty"`
}

// SessionInfo describes one chat session.
type SessionInfo struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ChatMessage is one message in a session transcript.
type ChatMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"` // "user" or "agent"
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ToolInfo describes an available tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MemoryEntry is one stored or retrieved memory item.
// Similarity is present only for search results, never for listings.
type MemoryEntry struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Tags       string   `json:"tags,omitempty"`
	CreatedAt  string   `json:"created_at"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// ChannelInfo describes a connected messaging channel.
type ChannelInfo struct {
	ID        string `json:"id"`
	Platform  string `json:"platform"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// CronJobInfo describes one scheduled job.
type CronJobInfo struct {
	ID       string `json:"id"`
	Schedule string `json:"schedule"`
	Task     string `json:"task"`
	Enabled  bool   `json:"enabled"`
}

// UserInfo describes one user in a multi-user deployment.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// StatusReport is the monitoring snapshot of a backend.
type StatusReport struct {
	Status    string `json:"status"`
	UptimeSec int64  `json:"uptime_sec"`
	Clients   int    `json:"clients,omitempty"`
	Version   string `json:"version,omitempty"`
}

// VoiceSettings holds the voice-mode configuration.
type VoiceSettings struct {
	Enabled          bool   `json:"enabled"`
	WakeWordEnabled  bool   `json:"wakeWordEnabled"`
	EchoCancel       bool   `json:"echoCancel"`
	NoiseSuppression bool   `json:"noiseSuppression"`
	PushToTalk       bool   `json:"pushToTalk"`
	Language         string `json:"language"`
}

// DefaultVoiceSettings returns the settings a fresh backend starts with.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Enabled:          true,
		EchoCancel:       true,
		NoiseSuppression: true,
		PushToTalk:       true,
		Language:         "en",
	}
}

// SupportedLanguages is the closed set of language codes a backend accepts
// for voice settings. Unknown codes are rejected before being sent.
var SupportedLanguages = []string{"en", "de", "es", "fr", "it", "ja", "pt", "zh"}

// ValidLanguage reports whether code is in the supported set.
func ValidLanguage(code string) bool {
	for _, l := range SupportedLanguages {
		if l == code {
			return true
		}
	}
	return false
}

// ConfigPatch is a partial-object patch sent to a configuration-update
// operation. Only the keys present are applied; merging happens on the
// backend side.
type ConfigPatch map[string]any

// DiagnosticCheck is one step of a voice self-test.
type DiagnosticCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// DiagnosticsResult is the typed outcome of a microphone/speaker
// self-test. Failures are expected and surfaced to the user, so they are
// reported here rather than as an error.
type DiagnosticsResult struct {
	Checks []DiagnosticCheck `json:"checks"`
}

// Passed returns true if every check succeeded.
func (r DiagnosticsResult) Passed() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return len(r.Checks) > 0
}
