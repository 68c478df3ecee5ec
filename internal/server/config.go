// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a configuration value cannot be parsed.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultJWTSecret is the development signing secret. Deployments must
// override it through JWT_SECRET.
const DefaultJWTSecret = "super_secret_key_change_me"

// Configuration keys understood by LoadConfig.
const (
	KeyPort            = "port"
	KeyAllowedOrigins  = "allowed_origins"
	KeyMaxMessageSize  = "max_message_size"
	KeyRateLimitBurst  = "rate_limit.burst"
	KeyRateLimitRefill = "rate_limit.refill_interval"
	KeyJWTSecret       = "auth.jwt_secret"
	KeyTokenTTL        = "auth.token_ttl"
	KeyTokenIssuer     = "auth.issuer"
	KeyHistorySize     = "history.size"
	KeySendBuffer      = "send_buffer"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyShutdownTimeout = "shutdown_timeout"
)

var envBindings = map[string]string{
	KeyPort:            "SERVER_PORT",
	KeyAllowedOrigins:  "ALLOWED_ORIGINS",
	KeyMaxMessageSize:  "MAX_MESSAGE_SIZE",
	KeyRateLimitBurst:  "RATE_LIMIT_BURST",
	KeyRateLimitRefill: "RATE_LIMIT_REFILL_INTERVAL",
	KeyJWTSecret:       "JWT_SECRET",
	KeyTokenTTL:        "TOKEN_TTL",
	KeyTokenIssuer:     "TOKEN_ISSUER",
	KeyHistorySize:     "HISTORY_SIZE",
	KeySendBuffer:      "SEND_BUFFER",
	KeyLogLevel:        "LOG_LEVEL",
	KeyLogFormat:       "LOG_FORMAT",
	KeyShutdownTimeout: "SHUTDOWN_TIMEOUT",
}

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	JWTSecret       string
	TokenTTL        time.Duration
	TokenIssuer     string
	HistorySize     int
	SendBuffer      int
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:           ":3000",
		AllowedOrigins: []string{"http://localhost:5173"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		JWTSecret:       DefaultJWTSecret,
		TokenTTL:        24 * time.Hour,
		TokenIssuer:     "gochat-relay",
		HistorySize:     100,
		SendBuffer:      256,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
	}
}

// sanitize replaces unusable values with defaults.
func (c *Config) sanitize() {
	def := NewConfig()

	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.JWTSecret == "" {
		c.JWTSecret = def.JWTSecret
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = def.SendBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
}

// SetDefaults registers the default configuration and the environment
// variable names on v.
func SetDefaults(v *viper.Viper) {
	def := NewConfig()

	v.SetDefault(KeyPort, def.Port)
	v.SetDefault(KeyAllowedOrigins, def.AllowedOrigins)
	v.SetDefault(KeyMaxMessageSize, def.MaxMessageSize)
	v.SetDefault(KeyRateLimitBurst, def.RateLimit.Burst)
	v.SetDefault(KeyRateLimitRefill, def.RateLimit.RefillInterval.String())
	v.SetDefault(KeyJWTSecret, def.JWTSecret)
	v.SetDefault(KeyTokenTTL, def.TokenTTL.String())
	v.SetDefault(KeyTokenIssuer, def.TokenIssuer)
	v.SetDefault(KeyHistorySize, def.HistorySize)
	v.SetDefault(KeySendBuffer, def.SendBuffer)
	v.SetDefault(KeyLogLevel, def.LogLevel)
	v.SetDefault(KeyLogFormat, def.LogFormat)
	v.SetDefault(KeyShutdownTimeout, def.ShutdownTimeout.String())

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// LoadConfig builds a Config from v, which may carry flags, environment
// bindings and a config file. A nil v reads the environment only.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	cfg := &Config{
		Port:           v.GetString(KeyPort),
		AllowedOrigins: stringList(v, KeyAllowedOrigins),
		MaxMessageSize: v.GetInt64(KeyMaxMessageSize),
		RateLimit: RateLimitConfig{
			Burst: v.GetInt(KeyRateLimitBurst),
		},
		JWTSecret:   v.GetString(KeyJWTSecret),
		TokenIssuer: v.GetString(KeyTokenIssuer),
		HistorySize: v.GetInt(KeyHistorySize),
		SendBuffer:  v.GetInt(KeySendBuffer),
		LogLevel:    strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:   strings.ToLower(v.GetString(KeyLogFormat)),
	}

	var err error
	if cfg.RateLimit.RefillInterval, err = durationValue(v, KeyRateLimitRefill); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = durationValue(v, KeyTokenTTL); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationValue(v, KeyShutdownTimeout); err != nil {
		return nil, err
	}

	if cfg.LogFormat != "" && cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("%w: log format %q (want text or json)", ErrInvalidConfig, cfg.LogFormat)
	}

	cfg.sanitize()
	return cfg, nil
}

// stringList accepts both comma-separated strings (environment, flags) and
// lists (config files).
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return parseOrigins(raw)
	}
	return v.GetStringSlice(key)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// durationValue parses Go duration strings. A bare integer is read as
// seconds, which keeps RATE_LIMIT_REFILL_INTERVAL=2 working.
func durationValue(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, raw, err)
	}
	return d, nil
}
