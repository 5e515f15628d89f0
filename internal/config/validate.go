package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *BridgeConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Venue.URL != "" {
		if !strings.HasPrefix(c.Venue.URL, "ws://") && !strings.HasPrefix(c.Venue.URL, "wss://") {
			return fmt.Errorf("venue.url must be a ws:// or wss:// URL, got %q", c.Venue.URL)
		}
	} else {
		if c.Venue.Host == "" {
			return errors.New("venue.host is required when venue.url is not set")
		}
		if c.Venue.Port < 1 || c.Venue.Port > 65535 {
			return fmt.Errorf("venue.port must be between 1 and 65535, got %d", c.Venue.Port)
		}
	}
	if c.Venue.SessionID == "" {
		return errors.New("venue.session_id is required")
	}
	if c.Venue.BufferSize < 1 {
		return errors.New("venue.buffer_size must be >= 1")
	}

	if c.Keepalive.ProbeTimeout >= c.Keepalive.Interval {
		return fmt.Errorf("keepalive.probe_timeout (%s) must be shorter than keepalive.interval (%s)",
			c.Keepalive.ProbeTimeout, c.Keepalive.Interval)
	}

	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}
	if c.Breaker.CooldownMax < c.Breaker.Cooldown {
		return fmt.Errorf("breaker.cooldown_max (%s) cannot be shorter than breaker.cooldown (%s)",
			c.Breaker.CooldownMax, c.Breaker.Cooldown)
	}

	if c.Reconnect.MaxAttempts < 0 {
		return errors.New("reconnect.max_attempts must be >= 0")
	}
	if c.Reconnect.Multiplier < 1 {
		return errors.New("reconnect.multiplier must be >= 1")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect.max_delay (%s) cannot be shorter than reconnect.base_delay (%s)",
			c.Reconnect.MaxDelay, c.Reconnect.BaseDelay)
	}

	if c.Requests.RateLimit < 0 {
		return errors.New("requests.rate_limit must be >= 0")
	}

	if c.Sync.Timeout >= c.Sync.Interval {
		return fmt.Errorf("sync.timeout (%s) must be shorter than sync.interval (%s)",
			c.Sync.Timeout, c.Sync.Interval)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
