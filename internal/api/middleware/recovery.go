// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
)

// Recovery is middleware that recovers from handler panics. A panic
// inside a streaming handler may happen after the connection has been
// hijacked for a WebSocket or after the response has started; the error
// write is best-effort in those cases, but the request and stack are
// always logged.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("api: panic in %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				writeInternalError(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// writeInternalError attempts the 500 response. On a hijacked connection
// or a response that has already started, the write does not reach the
// client; any panic from the underlying writer is swallowed here so
// recovery itself never takes the server down.
func writeInternalError(w http.ResponseWriter) {
	defer func() {
		recover()
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`))
}
