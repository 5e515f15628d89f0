package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout        = 10 * time.Second
	DefaultWriteTimeout          = 5 * time.Second
	DefaultBufferSize            = 1024
	DefaultKeepaliveInterval     = 20 * time.Second
	DefaultKeepaliveProbeTimeout = 5 * time.Second
	DefaultFailureThreshold      = 5
	DefaultCooldown              = 30 * time.Second
	DefaultCooldownMax           = 5 * time.Minute
	DefaultReconnectBaseDelay    = 1 * time.Second
	DefaultReconnectMaxDelay     = 60 * time.Second
	DefaultReconnectMultiplier   = 2.0
	DefaultRequestTimeout        = 15 * time.Second
	DefaultRateLimit             = 50.0
	DefaultRateBurst             = 10
	DefaultSyncInterval          = 30 * time.Second
	DefaultSyncTimeout           = 10 * time.Second
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "text"
)

func (c *BridgeConfig) applyDefaults() {
	// Venue defaults
	if c.Venue.ConnectTimeout == 0 {
		c.Venue.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Venue.WriteTimeout == 0 {
		c.Venue.WriteTimeout = DefaultWriteTimeout
	}
	if c.Venue.BufferSize == 0 {
		c.Venue.BufferSize = DefaultBufferSize
	}

	// Keepalive defaults
	if c.Keepalive.Interval == 0 {
		c.Keepalive.Interval = DefaultKeepaliveInterval
	}
	if c.Keepalive.ProbeTimeout == 0 {
		c.Keepalive.ProbeTimeout = DefaultKeepaliveProbeTimeout
	}

	// Breaker defaults
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = DefaultCooldown
	}
	if c.Breaker.CooldownMax == 0 {
		c.Breaker.CooldownMax = DefaultCooldownMax
	}

	// Reconnect defaults; MaxAttempts zero means unbounded, leave it.
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = DefaultReconnectMultiplier
	}

	// Requests defaults
	if c.Requests.Timeout == 0 {
		c.Requests.Timeout = DefaultRequestTimeout
	}
	if c.Requests.RateLimit == 0 {
		c.Requests.RateLimit = DefaultRateLimit
	}
	if c.Requests.RateBurst == 0 {
		c.Requests.RateBurst = DefaultRateBurst
	}

	// Sync defaults
	if c.Sync.Interval == 0 {
		c.Sync.Interval = DefaultSyncInterval
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = DefaultSyncTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
