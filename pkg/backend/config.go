package backend

import (
	"errors"
	"log/slog"
	"time"
)

// Mode identifies the backend execution environment.
type Mode string

const (
	// ModeGateway talks to a networked clawft gateway over HTTP and a
	// websocket event channel.
	ModeGateway Mode = "gateway"

	// ModeEmbedded loads the in-process module backed by a local
	// SQLite store; no server required.
	ModeEmbedded Mode = "embedded"

	// ModeMock is the simulated backend for local development and tests.
	ModeMock Mode = "mock"
)

// Config holds adapter construction parameters. The mode is chosen once;
// there is no runtime mode switch.
type Config struct {
	// Mode selects the adapter variant.
	Mode Mode

	// Gateway settings (ModeGateway only).
	GatewayURL string
	Token      string

	// ReconnectInterval is the event-channel retry delay.
	ReconnectInterval time.Duration

	// Embedded settings (ModeEmbedded only).
	DataDir string

	// Responder produces the embedded module's reply for a user message.
	// Left nil, a canned acknowledgement is used. ModeEmbedded only.
	Responder func(sessionID, text string) string

	// Logger for adapter internals. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults (mock mode, so a
// fresh checkout works without any environment).
func DefaultConfig() Config {
	return Config{
		Mode:              ModeMock,
		ReconnectInterval: 2 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeGateway:
		if c.GatewayURL == "" {
			return errors.New("backend: gateway URL required for gateway mode")
		}
	case ModeEmbedded:
		if c.DataDir == "" {
			return errors.New("backend: data dir required for embedded mode")
		}
	case ModeMock:
		// No required settings.
	default:
		return ErrUnknownMode
	}
	return nil
}

// WithMode returns a copy with the mode set.
func (c Config) WithMode(m Mode) Config {
	c.Mode = m
	return c
}

// WithGateway returns a copy with gateway settings.
func (c Config) WithGateway(url, token string) Config {
	c.GatewayURL = url
	c.Token = token
	return c
}

// WithDataDir returns a copy with the embedded data directory set.
func (c Config) WithDataDir(dir string) Config {
	c.DataDir = dir
	return c
}

// WithLogger returns a copy with the logger set.
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.Logger = logger
	return c
}

// New creates the adapter variant selected by cfg.Mode. The returned
// adapter is not initialized; call Init before using it.
func New(cfg Config) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultConfig().ReconnectInterval
	}

	switch cfg.Mode {
	case ModeGateway:
		return newGateway(cfg), nil
	case ModeEmbedded:
		return newEmbedded(cfg), nil
	case ModeMock:
		return NewMock(), nil
	default:
		return nil, ErrUnknownMode
	}
}
