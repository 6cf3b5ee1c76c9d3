// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider evaluates the per-tenant Lua scripts that connect the
// authorization server to a tenant's user backend. Every tenant ships a
// UserLoginProvider and optionally a UserValidationProvider; the runtime
// instantiates them with structured input and collects their results.
package provider

import (
	"errors"
	"fmt"
)

// Provider class names looked up in the tenant's script source.
const (
	LoginProviderName      = "UserLoginProvider"
	ValidationProviderName = "UserValidationProvider"
)

// Typed failures. Callers translate ErrScript and ErrTimeout into
// authentication failures (wrong credentials or invalidate).
var (
	// ErrMissingProvider is returned when the tenant's source does not
	// define the requested provider class.
	ErrMissingProvider = errors.New("provider class not defined")

	// ErrTimeout is returned when an evaluation exceeded its deadline.
	ErrTimeout = errors.New("provider evaluation timed out")

	// ErrScript is returned for uncaught script errors.
	ErrScript = errors.New("provider script failed")
)

// Credentials is the input handed to a UserLoginProvider.
type Credentials struct {
	Username string
	Password string
}

// LoginResult is what a UserLoginProvider produced for one login attempt.
type LoginResult struct {
	// CanLogin is the provider's verdict on the credentials.
	CanLogin bool

	// Profile is an arbitrary JSON-shaped tree stored in the token payload.
	Profile any

	// Role is the role the provider assigned to the user.
	Role string

	// Scopes are provider-pushed scopes, filtered later against the
	// client's allowedProviderScopes.
	Scopes []string

	// Committed is the one-shot commit(...) value of the evaluation.
	Committed any
}

// Subject derives the JWT subject from the committed value: a committed
// string wins, then a "subject" field of a committed table. Without a
// usable commit the fallback handle is returned.
func (r *LoginResult) Subject(fallback string) string {
	switch v := r.Committed.(type) {
	case string:
		if v != "" {
			return v
		}
	case map[string]any:
		if s, ok := v["subject"].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// ValidationResult is what a UserValidationProvider produced.
type ValidationResult struct {
	// IsValid reports whether the user is still allowed to hold a session.
	IsValid bool

	// Committed is the one-shot commit(...) value of the evaluation.
	Committed any
}

// failure wraps a script-level error with its typed kind.
func failure(kind error, err error) error {
	return fmt.Errorf("%w: %v", kind, err)
}
