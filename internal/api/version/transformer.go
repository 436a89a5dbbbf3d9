// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package version

import "fmt"

// Transformer converts response data from the shape of one version to
// the shape of the version before it.
type Transformer func(data interface{}) interface{}

// downgrades[v][endpoint] converts the response shape introduced AFTER
// version v back to v's shape for that endpoint. A client pinned to an
// old version gets the chain of every downgrade between latest and its
// pin, applied newest first — so each downgrade only has to know about
// the one breaking change at its own boundary, not every combination of
// old client and new server.
//
// Currently empty since 2026-01-17 is the only shipped version.
var downgrades = map[string]map[string]Transformer{}

// Transform converts latest-shaped response data into the shape the
// pinned version expects. Data for the latest version, an unknown
// version (the middleware rejects those before any handler runs), or an
// endpoint with no registered downgrades passes through unchanged.
func Transform(version, endpoint string, data interface{}) interface{} {
	return applyChain(versions, downgrades, version, endpoint, data)
}

// applyChain walks the version boundaries from newest to the pinned
// version, applying each endpoint downgrade in turn.
func applyChain(known []string, chain map[string]map[string]Transformer, version, endpoint string, data interface{}) interface{} {
	pinned := -1
	for i, v := range known {
		if v == version {
			pinned = i
			break
		}
	}
	if pinned < 0 {
		return data
	}

	// known[len-1] is latest; the boundary at known[i] downgrades from
	// known[i+1]'s shape to known[i]'s.
	for i := len(known) - 2; i >= pinned; i-- {
		if t := chain[known[i]][endpoint]; t != nil {
			data = t(data)
		}
	}
	return data
}

// RegisterTransformer adds the downgrade at a version boundary for one
// endpoint: t converts the shape of the version after boundary back to
// boundary's shape. Registering against an unshipped version or the
// latest version (which has nothing newer to downgrade from) is a
// programming error, caught at init time.
//
// Example, once a version newer than 2026-01-17 has been appended (while
// 2026-01-17 is the latest, this call panics):
//
//	func init() {
//	    RegisterTransformer(Version20260117, "sessions.get", downgradeSessionV20260117)
//	}
func RegisterTransformer(boundary, endpoint string, t Transformer) {
	if !IsSupported(boundary) {
		panic(fmt.Sprintf("version: downgrade registered for unknown version %s", boundary))
	}
	if boundary == LatestVersion {
		panic(fmt.Sprintf("version: downgrade registered for latest version %s", boundary))
	}
	if downgrades[boundary] == nil {
		downgrades[boundary] = make(map[string]Transformer)
	}
	downgrades[boundary][endpoint] = t
}
