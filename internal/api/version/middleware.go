// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Middleware resolves the API version for the request. A missing header
// means latest; a header naming a version this server never shipped is a
// 400, not a silent fallback. The resolved version is stored in the
// request context and echoed back in the response header.
//
// Usage:
//
//	router.Use(version.Middleware)
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get(Header)
		if v == "" {
			v = LatestVersion
		}

		if !IsSupported(v) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{
					"code": "BAD_REQUEST",
					"message": fmt.Sprintf("unsupported API version %s; supported versions: %s",
						v, strings.Join(Supported(), ", ")),
				},
			})
			return
		}

		ctx := WithContext(r.Context(), v)

		// Echo the resolved version so clients see what they got
		w.Header().Set(Header, v)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
