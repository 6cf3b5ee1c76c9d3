// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import "strings"

// ScopePatternMatches reports whether a scope matches a pattern. Patterns
// are literal scope names or contain '*' wildcards, each matching any run of
// characters ("user:*" matches "user:list").
func ScopePatternMatches(pattern, scope string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == scope
	}

	parts := strings.Split(pattern, "*")
	rest := scope
	for i, part := range parts {
		switch {
		case i == 0:
			if !strings.HasPrefix(rest, part) {
				return false
			}
			rest = rest[len(part):]
		case i == len(parts)-1:
			return strings.HasSuffix(rest, part)
		default:
			idx := strings.Index(rest, part)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(part):]
		}
	}
	return true
}

// FilterScopes returns the scopes matching at least one of the patterns,
// preserving the input order and dropping duplicates.
func FilterScopes(scopes, patterns []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, scope := range scopes {
		if seen[scope] {
			continue
		}
		for _, pattern := range patterns {
			if ScopePatternMatches(pattern, scope) {
				out = append(out, scope)
				seen[scope] = true
				break
			}
		}
	}
	return out
}

// AllowedScopes computes the scopes granted to a request: the intersection
// of the requested scopes with the client's scope patterns, united with the
// intersection of provider-pushed scopes and the client's allowed provider
// scope patterns. An unset allowedProviderScopes list admits every provider
// scope.
func (c *Client) AllowedScopes(requested, providerScopes []string) []string {
	granted := FilterScopes(requested, c.Scopes)

	var pushed []string
	if c.AllowedProviderScopes == nil {
		pushed = providerScopes
	} else {
		pushed = FilterScopes(providerScopes, c.AllowedProviderScopes)
	}

	seen := map[string]bool{}
	for _, s := range granted {
		seen[s] = true
	}
	for _, s := range pushed {
		if !seen[s] {
			granted = append(granted, s)
			seen[s] = true
		}
	}
	return granted
}

// SplitScopes splits a scope request string on spaces and '+' separators.
func SplitScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '+'
	})
	return fields
}
