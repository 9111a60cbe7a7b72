package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/clawft/clawft-go/pkg/backend"
)

// SettingsSync keeps a local copy of the voice settings in step with the
// backend. Updates apply to the local copy immediately and persist in the
// background; a failed persist rolls the local copy back to its previous
// value and reports the error through the OnError hook.
type SettingsSync struct {
	mu      sync.RWMutex
	adapter backend.Adapter
	logger  *slog.Logger

	settings backend.VoiceSettings

	onError func(err error)

	// persisted is invoked after every background persist attempt with its
	// outcome. Tests use it to wait for the write to land.
	persisted func(err error)

	wg sync.WaitGroup
}

// NewSettingsSync creates a synchronizer seeded with the default settings.
// Call Load to pull the backend's actual values.
func NewSettingsSync(adapter backend.Adapter, logger *slog.Logger) *SettingsSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsSync{
		adapter:  adapter,
		logger:   logger,
		settings: backend.DefaultVoiceSettings(),
	}
}

// OnError sets the hook invoked when a background persist fails, after the
// local copy has been rolled back.
func (s *SettingsSync) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Current returns a snapshot of the local settings.
func (s *SettingsSync) Current() backend.VoiceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Load replaces the local copy with the backend's stored settings.
func (s *SettingsSync) Load(ctx context.Context) error {
	settings, err := s.adapter.VoiceSettings(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// Update applies a settings patch. The language field, when present, is
// validated before anything changes; an unknown code fails the whole patch
// and leaves the local copy untouched. Valid patches mutate the local copy
// at once and persist asynchronously.
func (s *SettingsSync) Update(ctx context.Context, patch backend.ConfigPatch) error {
	if lang, ok := patch["language"]; ok {
		code, isStr := lang.(string)
		if !isStr || !backend.ValidLanguage(code) {
			return fmt.Errorf("%v: %w", lang, backend.ErrInvalidLanguage)
		}
	}

	s.mu.Lock()
	prev := s.settings
	applyPatch(&s.settings, patch)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.adapter.UpdateVoiceSettings(ctx, patch)
		if err != nil {
			s.logger.Warn("voice settings persist failed, rolling back", "error", err)
			s.mu.Lock()
			s.settings = prev
			hook := s.onError
			s.mu.Unlock()
			if hook != nil {
				hook(err)
			}
		}
		s.mu.RLock()
		done := s.persisted
		s.mu.RUnlock()
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Flush blocks until all in-flight persists have finished.
func (s *SettingsSync) Flush() {
	s.wg.Wait()
}

// applyPatch copies recognized patch fields onto the settings.
func applyPatch(settings *backend.VoiceSettings, patch backend.ConfigPatch) {
	setBool := func(key string, dst *bool) {
		if v, ok := patch[key].(bool); ok {
			*dst = v
		}
	}
	setBool("enabled", &settings.Enabled)
	setBool("wakeWordEnabled", &settings.WakeWordEnabled)
	setBool("echoCancel", &settings.EchoCancel)
	setBool("noiseSuppression", &settings.NoiseSuppression)
	setBool("pushToTalk", &settings.PushToTalk)
	if v, ok := patch["language"].(string); ok {
		settings.Language = v
	}
}
