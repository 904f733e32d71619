package gateway

import (
	"log/slog"
	"time"
)

// Config controls the WebSocket gateway.
type Config struct {
	// Addr is the listen address, e.g. "0.0.0.0:9090".
	Addr string

	// Paths are the accepted WebSocket mount paths. A connection on any
	// other path is closed with a policy violation.
	Paths []string

	// Token, when set, must be presented in the handshake payload.
	Token string

	// MaxConnections bounds concurrent logical clients.
	MaxConnections int

	// KickOld evicts the oldest connection instead of rejecting a new
	// one when the registry is full.
	KickOld bool

	// HandshakeTimeout bounds the wait for the first frame.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// RequestTimeout is the default deadline for correlated requests.
	RequestTimeout time.Duration

	// ScreenshotTimeout is the deadline for screenshot capture, which
	// needs longer than other desktop queries.
	ScreenshotTimeout time.Duration

	// Logger for gateway events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the gateway defaults: a single desktop client
// on the standard mount paths, old-client eviction on.
func DefaultConfig() *Config {
	return &Config{
		Addr:              "0.0.0.0:9090",
		Paths:             []string{"/astrbot/live2d", "/ws"},
		MaxConnections:    1,
		KickOld:           true,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		RequestTimeout:    15 * time.Second,
		ScreenshotTimeout: 30 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Addr == "" {
		out.Addr = def.Addr
	}
	if len(out.Paths) == 0 {
		out.Paths = def.Paths
	}
	if out.MaxConnections <= 0 {
		out.MaxConnections = def.MaxConnections
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = def.RequestTimeout
	}
	if out.ScreenshotTimeout <= 0 {
		out.ScreenshotTimeout = def.ScreenshotTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
