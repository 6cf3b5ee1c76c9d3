// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// ReconcileScopes merges the scopes recorded in an auth session with the
// scopes a token request asks for. When both lists are non-empty they must
// be equal as sets; a non-empty session list always wins. Sessions without
// scopes inherit the request's, which is deprecated behavior kept for
// compatibility with existing clients.
func ReconcileScopes(sessionScopes, requestedScopes []string) ([]string, bool) {
	if len(sessionScopes) == 0 {
		if len(requestedScopes) > 0 {
			logger.Warnw("session carries no scopes, inheriting token-request scopes; "+
				"this behavior is deprecated and will be removed",
				"requestedScopes", requestedScopes)
		}
		return requestedScopes, true
	}
	if len(requestedScopes) == 0 {
		return sessionScopes, true
	}
	if !sameScopeSet(sessionScopes, requestedScopes) {
		return nil, false
	}
	return sessionScopes, true
}

func sameScopeSet(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	other := make(map[string]bool, len(b))
	for _, s := range b {
		other[s] = true
	}
	for _, s := range a {
		if !other[s] {
			return false
		}
	}
	return true
}
