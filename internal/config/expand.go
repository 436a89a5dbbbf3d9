// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in the config fields that
// commonly carry machine-local or secret values, so e.g. the agent access
// token can live in the environment instead of the config file. An unset
// variable expands to the empty string.
func ExpandEnv(cfg *Config) {
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)
	cfg.Agent.CLIPath = os.ExpandEnv(cfg.Agent.CLIPath)
	cfg.Agent.AccessToken = os.ExpandEnv(cfg.Agent.AccessToken)
}
