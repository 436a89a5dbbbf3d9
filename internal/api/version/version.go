// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package version implements Stripe-style API versioning for the Conduit
// API.
//
// Versioning uses date-based versions (e.g., "2026-01-17") sent via the
// Conduit-Version header. When no header is provided, the latest version
// is used; a header naming a version this server has never shipped is
// rejected outright, so a client pinned to a typo fails loudly instead
// of silently getting latest-shaped responses.
//
// When making a breaking change:
//  1. Append a new version constant to the versions list
//  2. Register a downgrade on the previous version that converts the new
//     response shape back to the old one (see transformer.go)
//
// Clients pinned to an old version then receive responses run through
// every downgrade between latest and their pin, newest first.
package version

import "context"

// Version constants. Append new versions to the versions list below when
// making breaking changes.
const (
	// Version20260117 is the initial API version.
	Version20260117 = "2026-01-17"
)

// versions lists every version this server has shipped, ascending.
// The last entry is the latest.
var versions = []string{
	Version20260117,
}

// LatestVersion is the current default API version.
var LatestVersion = versions[len(versions)-1]

// Header is the HTTP header used to specify the API version.
const Header = "Conduit-Version"

// IsSupported reports whether v names a version this server shipped.
func IsSupported(v string) bool {
	return indexOf(v) >= 0
}

// Supported returns every shipped version, ascending.
func Supported() []string {
	return append([]string(nil), versions...)
}

func indexOf(v string) int {
	for i, known := range versions {
		if known == v {
			return i
		}
	}
	return -1
}

// contextKey is the type used for context keys in this package.
type contextKey string

// versionKey is the context key for storing the API version.
const versionKey contextKey = "api-version"

// FromContext returns the API version from the context.
// Returns LatestVersion if not set.
func FromContext(ctx context.Context) string {
	v, ok := ctx.Value(versionKey).(string)
	if !ok || v == "" {
		return LatestVersion
	}
	return v
}

// WithContext returns a new context with the API version set.
func WithContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, versionKey, version)
}
