// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/groupsio/conduit/internal/session"
)

// Response is the standard API response wrapper.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
	Meta  *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MetaInfo contains response metadata.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

// Common error codes
const (
	ErrNotFound      = "NOT_FOUND"
	ErrBadRequest    = "BAD_REQUEST"
	ErrConflict      = "CONFLICT"
	ErrSpawnError    = "SPAWN_ERROR"
	ErrBridgeError   = "BRIDGE_ERROR"
	ErrInternalError = "INTERNAL_ERROR"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	resp := Response{
		Data: data,
		Meta: &MetaInfo{Timestamp: time.Now()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	resp := Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
		Meta: &MetaInfo{Timestamp: time.Now()},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// WriteDomainError maps a session-layer error to its HTTP representation.
// Spawn and bridge failures are the caller's problem to retry, so they
// surface as 4xx-adjacent 502s rather than plain 500s.
func WriteDomainError(w http.ResponseWriter, err error) {
	var vErr *session.ValidationError
	var nfErr *session.NotFoundError
	var cErr *session.ConflictError
	var sErr *session.SpawnError
	var bErr *session.BridgeError

	switch {
	case errors.As(err, &vErr):
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
	case errors.As(err, &nfErr):
		WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
	case errors.As(err, &cErr):
		WriteError(w, http.StatusConflict, ErrConflict, err.Error())
	case errors.As(err, &sErr):
		WriteError(w, http.StatusBadGateway, ErrSpawnError, err.Error())
	case errors.As(err, &bErr):
		WriteError(w, http.StatusBadGateway, ErrBridgeError, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
	}
}
