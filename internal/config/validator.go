// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateRequired(cfg, errs)
	v.validateServer(cfg, errs)
	v.validateAgent(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateRequired(cfg *Config, errs *ValidationError) {
	if cfg.Version == "" {
		errs.Add("version", "is required")
	}
	if cfg.Project.Name == "" {
		errs.Add("project.name", "is required")
	}
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs.Add("server.port", fmt.Sprintf("must be between 1 and 65535, got %d", cfg.Server.Port))
	}
}

func (v *Validator) validateAgent(cfg *Config, errs *ValidationError) {
	a := cfg.Agent

	if a.CLIPath == "" {
		errs.Add("agent.cli_path", "is required")
	}
	if a.WSPortRangeStart < 1 || a.WSPortRangeStart > 65535 {
		errs.Add("agent.ws_port_range_start", fmt.Sprintf("must be between 1 and 65535, got %d", a.WSPortRangeStart))
	}
	if a.WSPortRangeEnd < 1 || a.WSPortRangeEnd > 65535 {
		errs.Add("agent.ws_port_range_end", fmt.Sprintf("must be between 1 and 65535, got %d", a.WSPortRangeEnd))
	}
	if a.WSPortRangeEnd < a.WSPortRangeStart {
		errs.Add("agent.ws_port_range_end", "must not be below agent.ws_port_range_start")
	}
	if a.MaxSessions < 0 {
		errs.Add("agent.max_sessions", "must not be negative")
	}

	// The bridge pool and the HTTP server must not collide.
	if cfg.Server.Port >= a.WSPortRangeStart && cfg.Server.Port <= a.WSPortRangeEnd {
		errs.Add("server.port", "must not fall inside the bridge port range")
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	check := func(field, value string) {
		if value == "" {
			return
		}
		if _, err := time.ParseDuration(value); err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration %q", value))
		}
	}

	check("events.history.max_age", cfg.Events.History.MaxAge)
	check("agent.permission_timeout", cfg.Agent.PermissionTimeout)
}
