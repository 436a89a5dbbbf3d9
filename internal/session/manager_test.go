// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsio/conduit/internal/events"
	"github.com/groupsio/conduit/internal/permission"
	"github.com/groupsio/conduit/internal/store"
)

// fakeStore is an in-memory Store for driving the manager without SQLite.
type fakeStore struct {
	mu       sync.Mutex
	projects map[string]store.Project
	sessions map[string]*store.Session
	messages []store.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[string]store.Project),
		sessions: make(map[string]*store.Session),
	}
}

func (f *fakeStore) CreateSession(sess store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeStore) GetSession(id string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return store.Session{}, fmt.Errorf("no such session %s", id)
	}
	return *sess, nil
}

func (f *fakeStore) ListSessions() ([]store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Session
	for _, sess := range f.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

func (f *fakeStore) ListNonTerminalSessions() ([]store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Session
	for _, sess := range f.sessions {
		if sess.Status != StatusClosed && sess.Status != StatusError {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (f *fakeStore) SetAgentID(id, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok && sess.AgentID == "" {
		sess.AgentID = agentID
	}
	return nil
}

func (f *fakeStore) SetStatus(id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		sess.Status = status
	}
	return nil
}

func (f *fakeStore) SetPID(id string, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		sess.PID = sql.NullInt64{Int64: int64(pid), Valid: true}
	}
	return nil
}

func (f *fakeStore) ApplyResult(id string, costUSD float64, inputTokens, outputTokens int, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		sess.TotalCostUSD = costUSD
		sess.TotalInputTokens = inputTokens
		sess.TotalOutputTokens = outputTokens
		sess.NumTurns++
		sess.LastActiveAt = sql.NullTime{Time: now, Valid: true}
		sess.Status = StatusIdle
	}
	return nil
}

func (f *fakeStore) SetError(id, errMsg string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		sess.Status = StatusError
		sess.ErrorMessage = errMsg
		sess.ClosedAt = sql.NullTime{Time: now, Valid: true}
	}
	return nil
}

func (f *fakeStore) SetClosed(id string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		sess.Status = StatusClosed
		sess.ClosedAt = sql.NullTime{Time: now, Valid: true}
	}
	return nil
}

func (f *fakeStore) AppendMessage(m store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeStore) GetProject(id string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	proj, ok := f.projects[id]
	if !ok {
		return store.Project{}, fmt.Errorf("no such project %s", id)
	}
	return proj, nil
}

func (f *fakeStore) frameTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.FrameType
	}
	return out
}

// stubRuleStore satisfies permission.Store with no rules, so every
// evaluation falls through to the default allow.
type stubRuleStore struct {
	mu  sync.Mutex
	log []permission.LogEntry
}

func (s *stubRuleStore) ListDenyRules(string) ([]permission.Rule, error)   { return nil, nil }
func (s *stubRuleStore) ListAllowRules(string) ([]permission.Rule, error)  { return nil, nil }
func (s *stubRuleStore) ListGlobalDenyRules() ([]permission.Rule, error)   { return nil, nil }
func (s *stubRuleStore) ListGlobalAllowRules() ([]permission.Rule, error)  { return nil, nil }
func (s *stubRuleStore) CreateRule(r permission.Rule) (permission.Rule, error) { return r, nil }
func (s *stubRuleStore) ListByProject(string) ([]permission.Rule, error)   { return nil, nil }
func (s *stubRuleStore) ListGlobal() ([]permission.Rule, error)            { return nil, nil }
func (s *stubRuleStore) UpdateRule(int64, map[string]interface{}) (permission.Rule, error) {
	return permission.Rule{}, nil
}
func (s *stubRuleStore) DeleteRule(int64) error { return nil }
func (s *stubRuleStore) AppendLog(entry permission.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, entry)
	return nil
}

func (s *stubRuleStore) ListLogBySession(string) ([]permission.LogEntry, error) { return nil, nil }

// writeScript writes an executable shell script for use as the agent CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestManager(t *testing.T, cliPath string) (*Manager, *fakeStore, events.EventBus) {
	t.Helper()
	fs := newFakeStore()
	fs.projects["p1"] = store.Project{ID: "p1", FolderPath: "/tmp/p1", DefaultModel: "model-a"}

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 1000, HistoryMaxAge: time.Hour})
	t.Cleanup(func() { bus.Close() })

	engine := permission.NewEngine(&stubRuleStore{})

	mgr := NewManager(Config{
		CLIPath:          cliPath,
		WSPortRangeStart: 19100,
		WSPortRangeEnd:   19120,
		MaxSessions:      10,
	}, fs, bus, engine)
	t.Cleanup(mgr.Shutdown)
	return mgr, fs, bus
}

func TestCreate_Validation(t *testing.T) {
	mgr, _, _ := newTestManager(t, "/bin/true")

	_, err := mgr.Create(context.Background(), CreateParams{ProjectID: "p1"})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = mgr.Create(context.Background(), CreateParams{ProjectID: "missing", DisplayName: "x"})
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)

	_, err = mgr.Create(context.Background(), CreateParams{ProjectID: "p1", DisplayName: "x", PermissionMode: "yolo"})
	assert.ErrorAs(t, err, &vErr)
}

func TestCreate_SessionCap(t *testing.T) {
	mgr, _, _ := newTestManager(t, "/bin/true")
	mgr.cfg.MaxSessions = 1
	mgr.active["occupied"] = &liveSession{id: "occupied"}

	_, err := mgr.Create(context.Background(), CreateParams{ProjectID: "p1", DisplayName: "x"})
	var cErr *ConflictError
	assert.ErrorAs(t, err, &cErr)
}

func TestCreate_AgentExitsBeforeConnect(t *testing.T) {
	script := writeScript(t, `echo "boom: bad flags" >&2
exit 1`)
	mgr, fs, bus := newTestManager(t, script)

	var errEvents []events.Event
	var mu sync.Mutex
	_, err := bus.Subscribe(events.EventSessionError, "", func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		errEvents = append(errEvents, e)
		return nil
	})
	require.NoError(t, err)

	_, err = mgr.Create(context.Background(), CreateParams{ProjectID: "p1", DisplayName: "crash"})
	require.Error(t, err)
	var sErr *SpawnError
	assert.ErrorAs(t, err, &sErr)
	assert.Contains(t, err.Error(), "boom")

	// The session row reflects the failure and captured stderr.
	rows, _ := fs.ListSessions()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusError, rows[0].Status)
	assert.Contains(t, rows[0].ErrorMessage, "boom")
	assert.True(t, rows[0].ClosedAt.Valid)

	// Port and active slot are released.
	assert.Empty(t, mgr.ports.InUse())
	assert.Equal(t, 0, mgr.ActiveCount())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errEvents, 1)
	assert.Equal(t, events.ReasonCLIFailedToConnect, errEvents[0].Payload["reason"])
}

func TestCreate_SpawnFailure(t *testing.T) {
	mgr, fs, _ := newTestManager(t, filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := mgr.Create(context.Background(), CreateParams{ProjectID: "p1", DisplayName: "x"})
	var sErr *SpawnError
	require.ErrorAs(t, err, &sErr)

	rows, _ := fs.ListSessions()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusError, rows[0].Status)
	assert.Empty(t, mgr.ports.InUse())
}

// dialBridge connects to the session bridge the way the agent CLI would.
func dialBridge(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	var conn *websocket.Conn
	var err error
	for i := 0; i < 100; i++ {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			return conn
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("dial bridge: %v", err)
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	script := writeScript(t, "sleep 60")
	mgr, fs, _ := newTestManager(t, script)

	type createResult struct {
		sess store.Session
		err  error
	}
	done := make(chan createResult, 1)
	go func() {
		sess, err := mgr.Create(context.Background(), CreateParams{ProjectID: "p1", DisplayName: "lifecycle"})
		done <- createResult{sess, err}
	}()

	// The test plays the agent: connect to the allocated bridge port.
	conn := dialBridge(t, 19100)
	defer conn.Close()

	var res createResult
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("create did not return after bridge connect")
	}
	require.NoError(t, res.err)
	assert.Equal(t, StatusIdle, res.sess.Status)
	assert.Equal(t, "model-a", res.sess.Model)
	require.True(t, res.sess.WSPort.Valid)
	assert.EqualValues(t, 19100, res.sess.WSPort.Int64)
	id := res.sess.ID

	// Agent handshake: init captures the agent id and marks a turn active.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"system","subtype":"init","session_id":"agent-xyz","model":"model-a"}`)))
	require.Eventually(t, func() bool {
		sess, _ := fs.GetSession(id)
		return sess.AgentID == "agent-xyz" && sess.Status == StatusActive
	}, 2*time.Second, 10*time.Millisecond)

	// A later init must not overwrite the agent id.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"system","subtype":"init","session_id":"agent-other"}`)))
	require.Eventually(t, func() bool {
		sess, _ := fs.GetSession(id)
		return sess.Status == StatusActive
	}, 2*time.Second, 10*time.Millisecond)
	sess, _ := fs.GetSession(id)
	assert.Equal(t, "agent-xyz", sess.AgentID)

	// Results SET the totals and increment the turn counter.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"result","subtype":"success","total_cost_usd":0.05,"usage":{"input_tokens":100,"output_tokens":50}}`)))
	require.Eventually(t, func() bool {
		sess, _ := fs.GetSession(id)
		return sess.NumTurns == 1
	}, 2*time.Second, 10*time.Millisecond)
	sess, _ = fs.GetSession(id)
	assert.Equal(t, 0.05, sess.TotalCostUSD)
	assert.Equal(t, 100, sess.TotalInputTokens)
	assert.Equal(t, 50, sess.TotalOutputTokens)
	assert.Equal(t, StatusIdle, sess.Status)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"result","subtype":"success","total_cost_usd":0.12,"usage":{"input_tokens":240,"output_tokens":130}}`)))
	require.Eventually(t, func() bool {
		sess, _ := fs.GetSession(id)
		return sess.NumTurns == 2
	}, 2*time.Second, 10*time.Millisecond)
	sess, _ = fs.GetSession(id)
	assert.Equal(t, 0.12, sess.TotalCostUSD)
	assert.Equal(t, 240, sess.TotalInputTokens)
	assert.Equal(t, 130, sess.TotalOutputTokens)

	// SendMessage emits the user frame to the agent and records it.
	require.NoError(t, mgr.SendMessage(id, "hello agent"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var userMsg map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &userMsg))
	assert.Equal(t, "user", userMsg["type"])
	sess, _ = fs.GetSession(id)
	assert.Equal(t, StatusActive, sess.Status)

	// A can_use_tool request is answered synchronously over the socket.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","tool_input":{"command":"ls"}}}`)))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	var ctrl map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &ctrl))
	assert.Equal(t, "control_response", ctrl["type"])
	response := ctrl["response"].(map[string]interface{})
	assert.Equal(t, "req-1", response["request_id"])
	assert.Equal(t, "allow", response["result"].(map[string]interface{})["behavior"])

	// Interrupt is forwarded without a state change.
	require.NoError(t, mgr.Interrupt(id))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"interrupt"}`, string(frame))

	// Transcript holds the result and user frames in order.
	assert.Contains(t, fs.frameTypes(), "result")
	assert.Contains(t, fs.frameTypes(), "user")

	// Kill tears everything down and frees the port for reuse.
	require.NoError(t, mgr.Kill(id))
	sess, _ = fs.GetSession(id)
	assert.Equal(t, StatusClosed, sess.Status)
	assert.True(t, sess.ClosedAt.Valid)
	assert.Equal(t, 0, mgr.ActiveCount())
	assert.Empty(t, mgr.ports.InUse())
}

func TestSendMessage_Errors(t *testing.T) {
	mgr, _, _ := newTestManager(t, "/bin/true")

	err := mgr.SendMessage("missing", "hi")
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)

	err = mgr.SendMessage("missing", "")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	// A tracked session with no connected agent is a conflict.
	mgr.active["s1"] = &liveSession{id: "s1", status: StatusStarting}
	err = mgr.SendMessage("s1", "hi")
	var cErr *ConflictError
	assert.ErrorAs(t, err, &cErr)
}

func TestCleanupOrphans_Idempotent(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "/bin/true")

	// Record every signal attempt while still answering the way the OS
	// would for a PID that died with the previous run.
	var signaled []int
	mgr.signal = func(pid int, sig syscall.Signal) error {
		signaled = append(signaled, pid)
		assert.Equal(t, syscall.SIGTERM, sig)
		return syscall.ESRCH
	}

	fs.sessions["s1"] = &store.Session{
		ID:        "s1",
		ProjectID: "p1",
		Status:    StatusActive,
		PID:       sql.NullInt64{Int64: 999999, Valid: true},
	}
	fs.sessions["s2"] = &store.Session{ID: "s2", ProjectID: "p1", Status: StatusStarting}
	fs.sessions["s3"] = &store.Session{ID: "s3", ProjectID: "p1", Status: StatusClosed}

	cleaned := mgr.CleanupOrphans()
	assert.Equal(t, 2, cleaned)

	// The signal is attempted for the recorded PID even though the
	// process is long gone, and the ESRCH is swallowed; the session with
	// no recorded PID gets no attempt.
	assert.Equal(t, []int{999999}, signaled)

	for _, id := range []string{"s1", "s2"} {
		sess, err := fs.GetSession(id)
		require.NoError(t, err)
		assert.Equal(t, StatusError, sess.Status)
		assert.True(t, sess.ClosedAt.Valid)
	}
	sess, _ := fs.GetSession("s3")
	assert.Equal(t, StatusClosed, sess.Status)

	// Applying cleanup twice leaves the same final state and issues no
	// further signals.
	assert.Equal(t, 0, mgr.CleanupOrphans())
	assert.Equal(t, []int{999999}, signaled)
}

func TestUnexpectedExitAfterConnect(t *testing.T) {
	// The agent connects, then dies mid-session.
	script := writeScript(t, "sleep 60")
	mgr, fs, bus := newTestManager(t, script)

	var errEvents []events.Event
	var mu sync.Mutex
	_, err := bus.Subscribe(events.EventSessionError, "", func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		errEvents = append(errEvents, e)
		return nil
	})
	require.NoError(t, err)

	done := make(chan store.Session, 1)
	go func() {
		sess, err := mgr.Create(context.Background(), CreateParams{ProjectID: "p1", DisplayName: "dies"})
		if err == nil {
			done <- sess
		}
	}()

	conn := dialBridge(t, 19100)
	defer conn.Close()

	var sess store.Session
	select {
	case sess = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("create did not complete")
	}

	// Kill the subprocess out from under the manager.
	live, err := mgr.lookup(sess.ID)
	require.NoError(t, err)
	live.proc.Kill()

	require.Eventually(t, func() bool {
		row, _ := fs.GetSession(sess.ID)
		return row.Status == StatusError
	}, 10*time.Second, 25*time.Millisecond)

	assert.Equal(t, 0, mgr.ActiveCount())
	assert.Empty(t, mgr.ports.InUse())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errEvents, 1)
	assert.Equal(t, events.ReasonUnexpectedExit, errEvents[0].Payload["reason"])
}
