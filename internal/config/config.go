package config

import (
	"fmt"
	"time"
)

// BridgeConfig is the root configuration for a bridged instance.
type BridgeConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Venue     VenueConfig     `yaml:"venue"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Requests  RequestsConfig  `yaml:"requests"`
	Sync      SyncConfig      `yaml:"sync"`
	Health    HealthConfig    `yaml:"health"`
	Log       LogConfig       `yaml:"log"`
}

// InstanceConfig identifies this bridge.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// VenueConfig holds venue session settings. The endpoint is usually
// given as host and port; url overrides both when the venue needs a
// non-default scheme or path (e.g. wss:// behind a proxy).
type VenueConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	URL            string        `yaml:"url"`        // optional override of host/port
	SessionID      string        `yaml:"session_id"` // usually ${VENUE_SESSION_ID}
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
}

// WSURL returns the venue WebSocket URL: the explicit url when set,
// otherwise ws://host:port/session.
func (v VenueConfig) WSURL() string {
	if v.URL != "" {
		return v.URL
	}
	return fmt.Sprintf("ws://%s:%d/session", v.Host, v.Port)
}

// KeepaliveConfig holds liveness probe settings.
type KeepaliveConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	CooldownMax      time.Duration `yaml:"cooldown_max"`
}

// ReconnectConfig holds reconnection scheduler settings.
type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"` // 0 = retry forever
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// RequestsConfig holds outbound request settings.
type RequestsConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int           `yaml:"rate_burst"`
}

// SyncConfig holds account/position snapshot settings.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// HealthConfig holds the health HTTP endpoint settings.
type HealthConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
