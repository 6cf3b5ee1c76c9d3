// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package token defines the JWT payload issued by the authorization server
// and helpers to bind it to a responsibility domain.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeList is a list of scopes that serializes to the space-joined string
// form used in JWT "scope" claims. It also accepts an array on decode.
type ScopeList []string

// MarshalJSON emits the scopes space-joined.
func (s ScopeList) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(s, " "))
}

// UnmarshalJSON accepts either a space-joined string or a JSON array.
func (s *ScopeList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		if joined == "" {
			*s = nil
			return nil
		}
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

// Payload is the claim set of every JWT the server signs: access tokens and
// session cookies alike. Profile carries an arbitrary JSON-shaped tree.
type Payload struct {
	jwt.RegisteredClaims

	AuthTime       *jwt.NumericDate `json:"auth_time,omitempty"`
	Tenant         string           `json:"tenant,omitempty"`
	Responsibility string           `json:"responsibility,omitempty"`
	Role           string           `json:"role,omitempty"`
	User           string           `json:"user,omitempty"`
	Scopes         ScopeList        `json:"scope,omitempty"`
	Profile        any              `json:"profile,omitempty"`
}

// ResponsibilityHash hashes the cookie-binding domain a token was issued
// for. Tokens presented from a different responsibility domain are rejected
// by comparing this value.
func ResponsibilityHash(domain string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(domain)))
	return hex.EncodeToString(sum[:])
}

// BoundTo reports whether the payload was issued for the given
// responsibility domain.
func (p *Payload) BoundTo(domain string) bool {
	return p.Responsibility == ResponsibilityHash(domain)
}
