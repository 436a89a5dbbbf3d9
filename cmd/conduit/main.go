// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/groupsio/conduit/internal/app"
	"github.com/groupsio/conduit/internal/config"
)

var (
	version = "0.9"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Parse flags
	var (
		configPath  string
		host        string
		port        int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.Parse()

	if showVersion {
		fmt.Printf("conduit %s\n", version)
		os.Exit(0)
	}

	// Find config file if not specified
	if configPath == "" {
		loader := config.NewLoader()
		found, err := loader.FindConfig()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		configPath = found
	}

	log.Printf("Using config: %s", configPath)

	// Create and run app
	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Host:       host,
		Port:       port,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	ctx := context.Background()
	if err := application.Run(ctx); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

// runInit handles the "conduit init" command
func runInit() error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(os.Args[2:])

	if *showHelp {
		fmt.Println(`Usage: conduit init

Create a new conduit.hjson configuration file in the current directory.
The generated file is commented so every option is discoverable.

After running init:
  1. Review and edit conduit.hjson as needed
  2. Run: ./conduit
  3. Register a project: POST /api/v1/projects`)
		return nil
	}

	configFile := "conduit.hjson"

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	if err := os.WriteFile(configFile, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", configFile, err)
	}

	fmt.Printf("Created %s\n", configFile)
	return nil
}

const sampleConfig = `{
  version: "1.0"

  project: {
    name: "conduit"
    description: "Agent fleet orchestrator"
  }

  server: {
    // HTTP API listener
    host: "127.0.0.1"
    port: 4321
  }

  database: {
    // SQLite database file; created on first start
    path: "conduit.db"
  }

  agent: {
    // Agent CLI binary spawned per session. ${VAR} references are
    // expanded from the environment.
    cli_path: "agent"

    // Exported to each agent subprocess when set
    access_token: "${CONDUIT_ACCESS_TOKEN}"

    // Per-session bridge ports, inclusive on both ends
    ws_port_range_start: 9600
    ws_port_range_end: 9699

    // Concurrently live sessions
    max_sessions: 20
  }

  events: {
    history: {
      max_events: 10000
      max_age: "1h"
    }
  }
}
`
