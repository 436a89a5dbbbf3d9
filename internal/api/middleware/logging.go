// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"bufio"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code, body
// size, and whether the connection was hijacked for a WebSocket.
type responseWriter struct {
	http.ResponseWriter
	status   int
	size     int
	hijacked bool
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Hijack implements http.Hijacker so the bridge-facing and
// consumer-facing WebSocket upgrades work through the wrapper.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := hijacker.Hijack()
		if err == nil {
			rw.hijacked = true
		}
		return conn, buf, err
	}
	return nil, nil, http.ErrNotSupported
}

// Flush implements http.Flusher so the SSE handler can stream through
// the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// quietPath reports whether a request path is polling noise that would
// drown real traffic in the log: health probes and pprof scrapes.
func quietPath(path string) bool {
	return path == "/api/v1/health" || strings.HasPrefix(path, "/debug/pprof")
}

// Logging is middleware that logs HTTP requests. Streaming connections
// (consumer WebSocket, event WebSocket) hold the handler for their whole
// lifetime, so those are logged as a stream with its open duration
// rather than as a response.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if quietPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &responseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		if wrapped.hijacked {
			log.Printf("%s %s stream closed after %s %s",
				r.Method,
				r.URL.Path,
				duration,
				r.RemoteAddr,
			)
			return
		}

		log.Printf("%s %s %d %d %s %s",
			r.Method,
			r.URL.Path,
			wrapped.status,
			wrapped.size,
			duration,
			r.RemoteAddr,
		)
	})
}
