// Package config loads and validates the bridged YAML configuration.
// Files may reference environment variables with ${VAR} syntax; values
// are expanded before parsing.
package config
