// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session orchestrates agent subprocesses: it owns the session
// lifecycle state machine, the bridge port pool, metric updates, orphan
// cleanup, and shutdown.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	ps "github.com/mitchellh/go-ps"

	"github.com/groupsio/conduit/internal/bridge"
	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/launcher"
	"github.com/groupsio/conduit/internal/permission"
	"github.com/groupsio/conduit/internal/protocol"
	"github.com/groupsio/conduit/internal/store"
)

// Session status values.
const (
	StatusStarting   = "starting"
	StatusIdle       = "idle"
	StatusActive     = "active"
	StatusCompacting = "compacting"
	StatusError      = "error"
	StatusClosed     = "closed"
)

// connectTimeout bounds the wait between launching the subprocess and the
// agent's inbound bridge connection. Fixed by the agent contract, not
// configurable.
const connectTimeout = 15 * time.Second

// validPermissionModes enumerates the modes the agent CLI accepts.
var validPermissionModes = map[string]bool{
	"acceptEdits":       true,
	"bypassPermissions": true,
	"default":           true,
	"delegate":          true,
	"dontAsk":           true,
	"plan":              true,
}

// Store is the persistence boundary the manager drives. Implemented by
// internal/store against SQLite.
type Store interface {
	CreateSession(sess store.Session) error
	GetSession(id string) (store.Session, error)
	ListSessions() ([]store.Session, error)
	ListNonTerminalSessions() ([]store.Session, error)
	SetAgentID(id, agentID string) error
	SetStatus(id, status string) error
	SetPID(id string, pid int) error
	ApplyResult(id string, costUSD float64, inputTokens, outputTokens int, now time.Time) error
	SetError(id, errMsg string, now time.Time) error
	SetClosed(id string, now time.Time) error
	AppendMessage(m store.Message) error
	GetProject(id string) (store.Project, error)
}

// Config configures the manager.
type Config struct {
	CLIPath          string
	AccessToken      string
	WSPortRangeStart int
	WSPortRangeEnd   int
	MaxSessions      int
}

// Manager owns the in-memory active-session table and the port pool. All
// other components refer to a session by id only.
type Manager struct {
	cfg    Config
	store  Store
	bus    events.EventBus
	engine *permission.Engine

	mu     sync.Mutex
	active map[string]*liveSession
	ports  *PortPool

	// signal delivers a termination signal to a PID. Overridable in tests
	// to observe signal attempts without a real process on the other end.
	signal func(pid int, sig syscall.Signal) error
}

// liveSession is one tracked subprocess together with its bridge.
type liveSession struct {
	id        string
	projectID string
	port      int

	mu      sync.Mutex
	agentID string
	status  string
	bridge  *bridge.Server
	proc    *launcher.Process
}

// NewManager creates a session manager.
func NewManager(cfg Config, st Store, bus events.EventBus, engine *permission.Engine) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  st,
		bus:    bus,
		engine: engine,
		active: make(map[string]*liveSession),
		ports:  NewPortPool(cfg.WSPortRangeStart, cfg.WSPortRangeEnd),
		signal: syscall.Kill,
	}
}

// CreateParams are the caller-supplied session creation inputs. Empty
// Model and PermissionMode fall back to the project's defaults.
type CreateParams struct {
	ProjectID       string
	DisplayName     string
	Model           string
	PermissionMode  string
	ResumeSessionID string
	ForkSession     bool
}

// Create spawns a new agent subprocess, waits for it to connect back to
// the session's bridge, and returns the persisted session. All failure
// kinds surface to the caller after partially-acquired resources (bridge,
// port, subprocess, database row) have been cleaned up.
func (m *Manager) Create(ctx context.Context, params CreateParams) (store.Session, error) {
	if params.DisplayName == "" {
		return store.Session{}, &ValidationError{Msg: "display name is required"}
	}

	proj, err := m.store.GetProject(params.ProjectID)
	if err != nil {
		return store.Session{}, &NotFoundError{Resource: "project", ID: params.ProjectID}
	}

	model := params.Model
	if model == "" {
		model = proj.DefaultModel
	}
	mode := params.PermissionMode
	if mode == "" {
		mode = proj.DefaultPermissionMode
	}
	if mode != "" && !validPermissionModes[mode] {
		return store.Session{}, &ValidationError{Msg: "invalid permission mode: " + mode}
	}

	id := uuid.New().String()

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.active) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return store.Session{}, &ConflictError{Msg: "session limit reached"}
	}
	port, err := m.ports.Allocate()
	if err != nil {
		m.mu.Unlock()
		return store.Session{}, err
	}
	sess := &liveSession{
		id:        id,
		projectID: params.ProjectID,
		port:      port,
		status:    StatusStarting,
	}
	m.active[id] = sess
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		m.ports.Release(port)
	}

	br, err := bridge.NewServer(id, port, func(msg protocol.InboundMessage) {
		m.handleMessage(sess, msg)
	})
	if err != nil {
		release()
		return store.Session{}, &BridgeError{Err: err}
	}
	sess.mu.Lock()
	sess.bridge = br
	sess.mu.Unlock()

	now := time.Now().UTC()
	row := store.Session{
		ID:          id,
		ProjectID:   params.ProjectID,
		DisplayName: params.DisplayName,
		Status:      StatusStarting,
		Model:       model,
		WSPort:      nullInt(port),
		CreatedAt:   now,
	}
	if err := m.store.CreateSession(row); err != nil {
		br.Close()
		release()
		return store.Session{}, &InternalError{Err: err}
	}

	connectCh := make(chan struct{})
	var connectOnce sync.Once
	br.OnConnect(func() {
		connectOnce.Do(func() { close(connectCh) })
	})

	proc := launcher.New(launcher.Config{
		CLIPath:            m.cfg.CLIPath,
		Port:               port,
		Model:              model,
		PermissionMode:     mode,
		ResumeSessionID:    params.ResumeSessionID,
		ForkSession:        params.ForkSession,
		SystemPrompt:       proj.SystemPrompt,
		AppendSystemPrompt: proj.AppendSystemPrompt,
		AccessToken:        m.cfg.AccessToken,
	})

	exitCh := make(chan struct{})
	var exitOnce sync.Once
	proc.OnExit(func(exitCode int) {
		exitOnce.Do(func() { close(exitCh) })
		m.handleProcessExit(sess, exitCode)
	})

	// The subprocess outlives ctx, which may be the creating request's
	// context; cancellation during the connect wait is handled below.
	if err := proc.Start(context.Background()); err != nil {
		br.Close()
		release()
		m.store.SetError(id, err.Error(), time.Now().UTC())
		return store.Session{}, &SpawnError{Msg: "failed to start agent subprocess", Err: err}
	}
	sess.mu.Lock()
	sess.proc = proc
	sess.mu.Unlock()

	if err := m.store.SetPID(id, proc.PID()); err != nil {
		log.Printf("session: %s record pid: %v", id, err)
	}

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()

	select {
	case <-connectCh:
		m.setStatus(sess, StatusIdle)
		return m.store.GetSession(id)

	case <-exitCh:
		stderr := proc.Stderr()
		m.teardown(sess)
		m.store.SetError(id, stderr, time.Now().UTC())
		m.emitError(id, events.ReasonCLIFailedToConnect, stderr)
		return store.Session{}, &SpawnError{Msg: "agent exited before connecting: " + stderr}

	case <-timer.C:
		proc.Kill()
		stderr := proc.Stderr()
		m.teardown(sess)
		m.store.SetError(id, "timed out waiting for agent to connect: "+stderr, time.Now().UTC())
		m.emitError(id, events.ReasonCLIFailedToConnect, stderr)
		return store.Session{}, &SpawnError{Msg: "agent did not connect within 15s"}

	case <-ctx.Done():
		proc.Kill()
		m.teardown(sess)
		m.store.SetError(id, "session creation canceled", time.Now().UTC())
		return store.Session{}, &InternalError{Err: ctx.Err()}
	}
}

// SendMessage hands one user turn to the session's agent, marks the
// session active, and records the outbound transcript entry.
func (m *Manager) SendMessage(sessionID, content string) error {
	if content == "" {
		return &ValidationError{Msg: "message content is required"}
	}

	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	br := sess.bridge
	sess.mu.Unlock()
	if br == nil || !br.IsConnected() {
		return &ConflictError{Msg: "session " + sessionID + " has no connected agent"}
	}

	frame := protocol.NewUserMessage(content)
	br.Send(frame)
	m.setStatus(sess, StatusActive)

	payload, err := json.Marshal(frame)
	if err == nil {
		m.appendTranscript(sessionID, store.DirectionOutbound, protocol.TypeUser, payload)
	}
	return nil
}

// Interrupt forwards an interrupt frame to the agent. No state change.
func (m *Manager) Interrupt(sessionID string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	br := sess.bridge
	sess.mu.Unlock()
	if br == nil || !br.IsConnected() {
		return &ConflictError{Msg: "session " + sessionID + " has no connected agent"}
	}
	br.Send(protocol.NewInterruptMessage())
	return nil
}

// Kill terminates a session: subprocess killed, bridge closed, port
// released, session removed from the active table and marked closed.
func (m *Manager) Kill(sessionID string) error {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.status = StatusClosed
	proc := sess.proc
	sess.mu.Unlock()

	if proc != nil {
		proc.Kill()
	}
	m.teardown(sess)
	if err := m.store.SetClosed(sessionID, time.Now().UTC()); err != nil {
		return &InternalError{Err: err}
	}

	m.publish(events.EventSessionClosed, sessionID, map[string]interface{}{})
	return nil
}

// Get returns the persisted session row.
func (m *Manager) Get(sessionID string) (store.Session, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return store.Session{}, &NotFoundError{Resource: "session", ID: sessionID}
	}
	return sess, nil
}

// List returns every persisted session.
func (m *Manager) List() ([]store.Session, error) {
	return m.store.ListSessions()
}

// IsLive reports whether sessionID has a tracked subprocess.
func (m *Manager) IsLive(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[sessionID]
	return ok
}

// ActiveCount returns the number of tracked sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// LiveProcessCount reports how many tracked sessions have a subprocess
// the OS still knows about. Diverging from ActiveCount in a health
// snapshot means agents are dying faster than their exit watchers have
// reconciled.
func (m *Manager) LiveProcessCount() int {
	m.mu.Lock()
	procs := make([]*launcher.Process, 0, len(m.active))
	for _, sess := range m.active {
		sess.mu.Lock()
		if sess.proc != nil {
			procs = append(procs, sess.proc)
		}
		sess.mu.Unlock()
	}
	m.mu.Unlock()

	count := 0
	for _, proc := range procs {
		pid := proc.PID()
		if pid <= 0 {
			continue
		}
		if p, err := ps.FindProcess(pid); err == nil && p != nil {
			count++
		}
	}
	return count
}

// OnStatus is a passthrough for statuses reported by the agent itself
// (e.g. compacting). No lifecycle transition is derived from it.
func (m *Manager) OnStatus(sessionID, status string) {
	sess, err := m.lookup(sessionID)
	if err != nil {
		return
	}
	m.setStatus(sess, status)
}

// CleanupOrphans marks every persisted non-terminal session as errored,
// signaling its recorded subprocess if one still exists. Safe to run
// repeatedly: the second pass finds nothing non-terminal.
func (m *Manager) CleanupOrphans() int {
	rows, err := m.store.ListNonTerminalSessions()
	if err != nil {
		log.Printf("session: orphan scan failed: %v", err)
		return 0
	}

	now := time.Now().UTC()
	for _, row := range rows {
		if row.PID.Valid {
			pid := int(row.PID.Int64)
			// The signal is always attempted; the usual ESRCH ("no such
			// process") for a PID that died with the previous run is
			// swallowed.
			if err := m.signal(pid, syscall.SIGTERM); err != nil {
				log.Printf("session: orphan %s signal pid %d: %v", row.ID, pid, err)
			}
		}
		if err := m.store.SetError(row.ID, "orphaned by restart", now); err != nil {
			log.Printf("session: orphan %s mark errored: %v", row.ID, err)
		}
	}

	if len(rows) > 0 {
		log.Printf("session: cleaned up %d orphaned sessions", len(rows))
	}
	return len(rows)
}

// Shutdown kills every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Kill(id); err != nil {
			log.Printf("session: shutdown kill %s: %v", id, err)
		}
	}
}

// handleMessage is the bridge's per-frame entry point, routed through the
// message router with the manager's typed handlers.
func (m *Manager) handleMessage(sess *liveSession, msg protocol.InboundMessage) {
	bridge.Route(context.Background(), m.bus, sess.id, msg, bridge.Callbacks{
		OnSystemInit:        func(msg protocol.InboundMessage) { m.onSystemInit(sess, msg) },
		OnAssistant:         func(msg protocol.InboundMessage) { m.onAssistant(sess, msg) },
		OnResult:            func(msg protocol.InboundMessage) { m.onResult(sess, msg) },
		OnPermissionRequest: func(msg protocol.InboundMessage) { m.onPermissionRequest(sess, msg) },
	})
}

// onSystemInit captures the agent-assigned id on first sight and marks the
// session active: the agent is now processing a turn.
func (m *Manager) onSystemInit(sess *liveSession, msg protocol.InboundMessage) {
	if msg.SessionID != "" {
		sess.mu.Lock()
		first := sess.agentID == ""
		if first {
			sess.agentID = msg.SessionID
		}
		sess.mu.Unlock()
		if first {
			if err := m.store.SetAgentID(sess.id, msg.SessionID); err != nil {
				log.Printf("session: %s record agent id: %v", sess.id, err)
			}
		}
	}
	m.setStatus(sess, StatusActive)
}

func (m *Manager) onAssistant(sess *liveSession, msg protocol.InboundMessage) {
	m.appendTranscript(sess.id, store.DirectionInbound, protocol.TypeAssistant, msg.Raw)
}

// onResult applies the result's cumulative totals. Cost and token counters
// are SET from the payload, not added: the agent reports running totals.
func (m *Manager) onResult(sess *liveSession, msg protocol.InboundMessage) {
	var inputTokens, outputTokens int
	if msg.Usage != nil {
		inputTokens = msg.Usage.InputTokens
		outputTokens = msg.Usage.OutputTokens
	}
	if err := m.store.ApplyResult(sess.id, msg.TotalCostUSD, inputTokens, outputTokens, time.Now().UTC()); err != nil {
		log.Printf("session: %s apply result: %v", sess.id, err)
	}

	sess.mu.Lock()
	sess.status = StatusIdle
	sess.mu.Unlock()
	m.publishStatus(sess.id, StatusIdle)

	m.appendTranscript(sess.id, store.DirectionInbound, protocol.TypeResult, msg.Raw)
}

// onPermissionRequest evaluates the tool-use request synchronously and
// replies a control_response over the same socket.
func (m *Manager) onPermissionRequest(sess *liveSession, msg protocol.InboundMessage) {
	req := permission.Request{
		SessionID: sess.id,
		ProjectID: sess.projectID,
		RequestID: msg.RequestID,
		DecidedBy: "conduit",
	}
	if msg.Request != nil {
		req.ToolName = msg.Request.ToolName
		req.ToolInput = msg.Request.ToolInput
	}

	decision := m.engine.Evaluate(req)

	sess.mu.Lock()
	br := sess.bridge
	sess.mu.Unlock()
	if br != nil {
		br.Send(protocol.NewControlResponse(msg.RequestID, string(decision.Behavior), decision.UpdatedInput))
	}
}

// handleProcessExit drives the error transition when the subprocess dies
// outside a caller-initiated kill. Exits during create are resolved by
// Create's own wait; terminal sessions are left alone.
func (m *Manager) handleProcessExit(sess *liveSession, exitCode int) {
	sess.mu.Lock()
	status := sess.status
	if status == StatusStarting || status == StatusClosed || status == StatusError {
		sess.mu.Unlock()
		return
	}
	sess.status = StatusError
	proc := sess.proc
	sess.mu.Unlock()

	stderr := ""
	if proc != nil {
		stderr = proc.Stderr()
	}
	log.Printf("session: %s agent exited unexpectedly (code %d)", sess.id, exitCode)

	m.teardown(sess)
	if err := m.store.SetError(sess.id, stderr, time.Now().UTC()); err != nil {
		log.Printf("session: %s mark errored: %v", sess.id, err)
	}
	m.emitError(sess.id, events.ReasonUnexpectedExit, stderr)
}

// teardown closes the bridge, releases the port, and removes the session
// from the active table. Idempotent.
func (m *Manager) teardown(sess *liveSession) {
	sess.mu.Lock()
	br := sess.bridge
	sess.bridge = nil
	sess.mu.Unlock()
	if br != nil {
		br.Close()
	}

	m.mu.Lock()
	_, tracked := m.active[sess.id]
	delete(m.active, sess.id)
	m.mu.Unlock()
	if tracked {
		m.ports.Release(sess.port)
	}
}

func (m *Manager) lookup(sessionID string) (*liveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.active[sessionID]
	if !ok {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	return sess, nil
}

func (m *Manager) setStatus(sess *liveSession, status string) {
	sess.mu.Lock()
	sess.status = status
	sess.mu.Unlock()
	if err := m.store.SetStatus(sess.id, status); err != nil {
		log.Printf("session: %s set status %s: %v", sess.id, status, err)
	}
	m.publishStatus(sess.id, status)
}

func (m *Manager) appendTranscript(sessionID, direction, frameType string, payload []byte) {
	err := m.store.AppendMessage(store.Message{
		SessionID:   sessionID,
		Direction:   direction,
		FrameType:   frameType,
		PayloadJSON: string(payload),
	})
	if err != nil {
		log.Printf("session: %s transcript write: %v", sessionID, err)
	}
}

func (m *Manager) emitError(sessionID, reason, detail string) {
	m.publish(events.EventSessionError, sessionID, map[string]interface{}{
		"reason": reason,
		"detail": detail,
	})
}

func (m *Manager) publishStatus(sessionID, status string) {
	m.publish(events.EventSessionStatus, sessionID, map[string]interface{}{
		"status": status,
	})
}

func (m *Manager) publish(eventType, sessionID string, payload map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(context.Background(), events.Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
	})
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
