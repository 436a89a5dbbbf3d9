// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge implements the per-session WebSocket endpoint the agent
// subprocess connects back to, and the router that dispatches its frames.
package bridge

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/groupsio/conduit/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is one session's bridge: a localhost WebSocket listener that
// accepts exactly one client (the spawned agent subprocess).
type Server struct {
	sessionID string
	port      int

	httpServer *http.Server
	listener   net.Listener

	mu        sync.Mutex
	conn      *websocket.Conn
	onConnect func()
	connected bool
	closed    bool

	writeMu sync.Mutex

	onMessage func(msg protocol.InboundMessage)
}

// NewServer binds a WebSocket listener on localhost:port for one session.
// A bind failure is returned to the caller so the port can be released and
// the session marked errored.
func NewServer(sessionID string, port int, onMessage func(msg protocol.InboundMessage)) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bridge: listen on port %d: %w", port, err)
	}

	s := &Server{
		sessionID: sessionID,
		port:      port,
		listener:  ln,
		onMessage: onMessage,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConnection)
	s.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("bridge: session %s listener stopped: %v", sessionID, err)
		}
	}()

	return s, nil
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.port
}

// OnConnect installs cb to fire the first time a client connects after
// installation.
func (s *Server) OnConnect(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = cb
}

// IsConnected reports whether a client socket is currently attached.
func (s *Server) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send serializes msg as one NDJSON line and writes it as a text frame to
// the attached client. If no client is attached the call is a no-op that
// logs a warning; send failures are logged and swallowed.
func (s *Server) Send(msg interface{}) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		log.Printf("bridge: session %s send with no client attached", s.sessionID)
		return
	}

	data, err := protocol.Serialize(msg)
	if err != nil {
		log.Printf("bridge: session %s serialize failed: %v", s.sessionID, err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("bridge: session %s write failed: %v", s.sessionID, err)
	}
}

// Close shuts the listener and detaches any connected client.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.httpServer.Close()
}

// handleConnection upgrades an inbound connection and runs its read loop.
// If a client is already attached, the older connection is closed with a
// normal closure and replaced.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	old := s.conn
	s.conn = conn
	onConnect := s.onConnect
	fireConnect := !s.connected
	s.connected = true
	s.mu.Unlock()

	if old != nil {
		old.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced"), time.Now().Add(time.Second))
		old.Close()
	}

	if fireConnect && onConnect != nil {
		onConnect()
	}

	s.readLoop(conn)
}

// readLoop feeds every inbound text frame through the NDJSON parser. On
// close the parser is flushed to surface any final message, then the
// attached socket is nulled only if it is still the current one.
func (s *Server) readLoop(conn *websocket.Conn) {
	parser := protocol.NewParser(func(line []byte) {
		msg, err := protocol.ParseInbound(line)
		if err != nil {
			log.Printf("bridge: session %s undecodable frame: %v", s.sessionID, err)
			return
		}
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		// WebSocket frames may arrive without a trailing newline; this is
		// the only place that concession is made.
		if len(data) == 0 || data[len(data)-1] != '\n' {
			data = append(data, '\n')
		}
		parser.Feed(data)
	}

	parser.Flush()

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}
