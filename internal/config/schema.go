// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading, environment
// expansion, and validation.
package config

import "time"

// Config is the root configuration structure for Conduit.
type Config struct {
	Version  string         `json:"version"`
	Project  ProjectConfig  `json:"project"`
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Agent    AgentConfig    `json:"agent"`
	Events   EventsConfig   `json:"events"`
	Logging  LoggingConfig  `json:"logging"`
}

// ProjectConfig contains deployment metadata.
type ProjectConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig configures the embedded store.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// AgentConfig configures agent subprocess management.
type AgentConfig struct {
	// CLIPath is the agent binary launched per session. Supports ${VAR}
	// environment expansion.
	CLIPath string `json:"cli_path"`
	// AccessToken is exported to each agent subprocess when set. Supports
	// ${VAR} environment expansion so the token itself can stay out of the
	// config file.
	AccessToken string `json:"access_token"`
	// WSPortRangeStart/End bound the per-session bridge port pool,
	// inclusive on both ends.
	WSPortRangeStart int `json:"ws_port_range_start"`
	WSPortRangeEnd   int `json:"ws_port_range_end"`
	// MaxSessions caps concurrently live sessions. An unset or zero value
	// is replaced by the default of 20 when the config is loaded.
	MaxSessions int `json:"max_sessions"`
	// PermissionTimeout is reserved: the validator checks that it parses
	// as a duration, and nothing else reads it.
	PermissionTimeout string `json:"permission_timeout"`
}

// EventsConfig configures the event system.
type EventsConfig struct {
	History EventHistoryConfig `json:"history"`
}

// EventHistoryConfig configures event history retention.
type EventHistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
