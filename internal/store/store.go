// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store implements the SQLite-backed persistent state: the
// projects, sessions, messages, permission_rules, permission_log, and
// webhooks tables, with foreign-key enforcement enabled throughout.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the store's connection.
type Config struct {
	// Path is the SQLite database file path.
	Path string
}

// Store wraps the database connection and exposes the core's six tables.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at cfg.Path,
// enabling foreign-key enforcement and WAL mode, and runs migrations.
func Open(cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}

	dsn := cfg.Path + "?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 serializes writers; avoid lock contention

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// withTx runs fn inside a transaction, rolling back on panic or error and
// committing otherwise.
func (s *Store) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	folder_path TEXT NOT NULL,
	default_model TEXT,
	default_permission_mode TEXT,
	system_prompt TEXT,
	append_system_prompt TEXT
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL REFERENCES projects(id),
	display_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	model TEXT NOT NULL DEFAULT '',
	pid INTEGER,
	ws_port INTEGER,
	total_cost_usd REAL NOT NULL DEFAULT 0,
	total_input_tokens INTEGER NOT NULL DEFAULT 0,
	total_output_tokens INTEGER NOT NULL DEFAULT 0,
	num_turns INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	last_active_at DATETIME,
	closed_at DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	direction TEXT NOT NULL,
	frame_type TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS permission_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id TEXT REFERENCES projects(id),
	tool_name TEXT NOT NULL,
	rule_content TEXT NOT NULL DEFAULT '',
	behavior TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permission_rules_project ON permission_rules(project_id);

CREATE TABLE IF NOT EXISTS permission_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	request_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	tool_input_json TEXT NOT NULL,
	decision TEXT NOT NULL,
	decision_source TEXT NOT NULL,
	rule_id INTEGER REFERENCES permission_rules(id),
	decided_by TEXT NOT NULL DEFAULT '',
	decided_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_permission_log_session ON permission_log(session_id);

CREATE TABLE IF NOT EXISTS webhooks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payload_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`
