package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	Presence PresenceConfig `mapstructure:"presence" yaml:"presence"`
	LiveKit  LiveKitConfig  `mapstructure:"livekit" yaml:"livekit"`
}

// JWTConfig configures validation of platform-issued tokens.
type JWTConfig struct {
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	Issuer   string        `mapstructure:"issuer" yaml:"issuer"`
	Audience string        `mapstructure:"audience" yaml:"audience"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// PresenceConfig selects the presence registry backend.
type PresenceConfig struct {
	// Backend is "memory" (single process) or "redis" (shared across
	// processes).
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	RedisAddr   string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	GraceWindow time.Duration `mapstructure:"grace_window" yaml:"grace_window"`
}

// LiveKitConfig configures the optional media backend for live sessions.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
	WSURL     string `mapstructure:"ws_url" yaml:"ws_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "coursechat.db",
		LogLevel:          "info",
		JWT: JWTConfig{
			Issuer:   "coursechat",
			Audience: "coursechat",
			TTL:      24 * time.Hour,
		},
		Presence: PresenceConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			GraceWindow: 5 * time.Minute,
		},
		LiveKit: LiveKitConfig{
			Enabled: false,
			WSURL:   "ws://localhost:7880",
		},
	}
}
