// Package config loads the gateway configuration from YAML with
// environment variable expansion, applying the adapter defaults for any
// field left unset.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete adapter configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Resource ResourceConfig `yaml:"resource"`
	Temp     TempConfig     `yaml:"temp"`
	Sequence SequenceConfig `yaml:"sequence"`
	S3       S3Config       `yaml:"s3"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig holds the WebSocket listener settings.
type GatewayConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Paths          []string `yaml:"paths"`
	AuthToken      string   `yaml:"auth_token"`
	MaxConnections int      `yaml:"max_connections"`
	KickOld        *bool    `yaml:"kick_old"`
}

// ResourceConfig holds the resource store and its HTTP sibling server.
type ResourceConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
	Dir            string `yaml:"dir"`
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	MaxInlineBytes int64  `yaml:"max_inline_bytes"`
	MaxTotalBytes  int64  `yaml:"max_total_bytes"`
	MaxFiles       int    `yaml:"max_files"`

	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`

	CleanupInterval    time.Duration `yaml:"-"`
	CleanupIntervalRaw string        `yaml:"cleanup_interval"`
}

// TempConfig holds the short-lived scratch store settings.
type TempConfig struct {
	Dir           string `yaml:"dir"`
	MaxTotalBytes int64  `yaml:"max_total_bytes"`
	MaxFiles      int    `yaml:"max_files"`

	TTL    time.Duration `yaml:"-"`
	TTLRaw string        `yaml:"ttl"`
}

// SequenceConfig holds sequence compiler and streaming settings.
type SequenceConfig struct {
	EnableTTS         bool   `yaml:"enable_tts"`
	TTSMode           string `yaml:"tts_mode"`
	Voice             string `yaml:"voice"`
	EnableAutoEmotion *bool  `yaml:"enable_auto_emotion"`
	EnableStreaming   *bool  `yaml:"enable_streaming"`
	MinFlushRunes     int    `yaml:"min_flush_runes"`
}

// S3Config selects the S3 blob backend instead of local disk.
type S3Config struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`

	URLExpiry    time.Duration `yaml:"-"`
	URLExpiryRaw string        `yaml:"url_expiry"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration matching the stock deployment: one
// desktop client on ports 9090/9091 with resources stored on disk.
func Default() *Config {
	yes := true
	return &Config{
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           9090,
			Paths:          []string{"/astrbot/live2d", "/ws"},
			MaxConnections: 1,
			KickOld:        &yes,
		},
		Resource: ResourceConfig{
			Enabled:         &yes,
			Host:            "0.0.0.0",
			Port:            9091,
			Path:            "/resources",
			Dir:             "live2d_resources",
			MaxInlineBytes:  262144,
			MaxTotalBytes:   1 << 30,
			MaxFiles:        2000,
			TTL:             7 * 24 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Temp: TempConfig{
			Dir:           "live2d_temp",
			MaxTotalBytes: 256 << 20,
			MaxFiles:      5000,
			TTL:           6 * time.Hour,
		},
		Sequence: SequenceConfig{
			EnableTTS:         false,
			TTSMode:           "local",
			Voice:             "zh-CN-XiaoxiaoNeural",
			EnableAutoEmotion: &yes,
			EnableStreaming:   &yes,
			MinFlushRunes:     10,
		},
		S3: S3Config{
			URLExpiry: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file, expands ${VAR} references from the
// environment, and fills unset fields with defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the environment value, or an
// empty string when unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func (c *Config) parseDurations() error {
	parse := func(raw string, dst *time.Duration, field string) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", field, raw, err)
		}
		*dst = d
		return nil
	}
	if err := parse(c.Resource.TTLRaw, &c.Resource.TTL, "resource.ttl"); err != nil {
		return err
	}
	if err := parse(c.Resource.CleanupIntervalRaw, &c.Resource.CleanupInterval, "resource.cleanup_interval"); err != nil {
		return err
	}
	if err := parse(c.Temp.TTLRaw, &c.Temp.TTL, "temp.ttl"); err != nil {
		return err
	}
	return parse(c.S3.URLExpiryRaw, &c.S3.URLExpiry, "s3.url_expiry")
}

// applyDefaults restores defaults for fields a config file left unset.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Gateway.Host == "" {
		c.Gateway.Host = def.Gateway.Host
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = def.Gateway.Port
	}
	if len(c.Gateway.Paths) == 0 {
		c.Gateway.Paths = def.Gateway.Paths
	}
	if c.Gateway.MaxConnections == 0 {
		c.Gateway.MaxConnections = def.Gateway.MaxConnections
	}
	if c.Gateway.KickOld == nil {
		c.Gateway.KickOld = def.Gateway.KickOld
	}
	if c.Resource.Enabled == nil {
		c.Resource.Enabled = def.Resource.Enabled
	}
	if c.Resource.Host == "" {
		c.Resource.Host = def.Resource.Host
	}
	if c.Resource.Port == 0 {
		c.Resource.Port = def.Resource.Port
	}
	if c.Resource.Path == "" {
		c.Resource.Path = def.Resource.Path
	}
	if c.Resource.Dir == "" {
		c.Resource.Dir = def.Resource.Dir
	}
	if c.Resource.MaxInlineBytes == 0 {
		c.Resource.MaxInlineBytes = def.Resource.MaxInlineBytes
	}
	if c.Resource.MaxTotalBytes == 0 {
		c.Resource.MaxTotalBytes = def.Resource.MaxTotalBytes
	}
	if c.Resource.MaxFiles == 0 {
		c.Resource.MaxFiles = def.Resource.MaxFiles
	}
	if c.Resource.TTL == 0 {
		c.Resource.TTL = def.Resource.TTL
	}
	if c.Resource.CleanupInterval == 0 {
		c.Resource.CleanupInterval = def.Resource.CleanupInterval
	}
	if c.Temp.Dir == "" {
		c.Temp.Dir = def.Temp.Dir
	}
	if c.Temp.MaxTotalBytes == 0 {
		c.Temp.MaxTotalBytes = def.Temp.MaxTotalBytes
	}
	if c.Temp.MaxFiles == 0 {
		c.Temp.MaxFiles = def.Temp.MaxFiles
	}
	if c.Temp.TTL == 0 {
		c.Temp.TTL = def.Temp.TTL
	}
	if c.Sequence.TTSMode == "" {
		c.Sequence.TTSMode = def.Sequence.TTSMode
	}
	if c.Sequence.Voice == "" {
		c.Sequence.Voice = def.Sequence.Voice
	}
	if c.Sequence.EnableAutoEmotion == nil {
		c.Sequence.EnableAutoEmotion = def.Sequence.EnableAutoEmotion
	}
	if c.Sequence.EnableStreaming == nil {
		c.Sequence.EnableStreaming = def.Sequence.EnableStreaming
	}
	if c.Sequence.MinFlushRunes == 0 {
		c.Sequence.MinFlushRunes = def.Sequence.MinFlushRunes
	}
	if c.S3.URLExpiry == 0 {
		c.S3.URLExpiry = def.S3.URLExpiry
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
}

// Validate checks field consistency.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if c.Resource.Port <= 0 || c.Resource.Port > 65535 {
		return fmt.Errorf("resource.port %d out of range", c.Resource.Port)
	}
	if c.Gateway.MaxConnections < 1 {
		return fmt.Errorf("gateway.max_connections %d must be at least 1", c.Gateway.MaxConnections)
	}
	switch c.Sequence.TTSMode {
	case "local", "remote":
	default:
		return fmt.Errorf("sequence.tts_mode %q must be local or remote", c.Sequence.TTSMode)
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3 is enabled")
	}
	return nil
}

// GatewayAddr returns the WebSocket listen address.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// ResourceAddr returns the resource server listen address.
func (c *Config) ResourceAddr() string {
	return fmt.Sprintf("%s:%d", c.Resource.Host, c.Resource.Port)
}

// ResourceToken returns the resource download token, falling back to
// the gateway auth token when not set separately.
func (c *Config) ResourceToken() string {
	if c.Resource.Token != "" {
		return c.Resource.Token
	}
	return c.Gateway.AuthToken
}

// ResourceBaseURL returns the external base URL for resource downloads,
// generated from the listen address when not configured. A wildcard
// host is rewritten to loopback since clients cannot dial 0.0.0.0.
func (c *Config) ResourceBaseURL() string {
	if c.Resource.BaseURL != "" {
		return c.Resource.BaseURL
	}
	host := c.Resource.Host
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d%s", host, c.Resource.Port, c.Resource.Path)
}
