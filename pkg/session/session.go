// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package session stores short-lived authorization sessions: the records
// behind authorization codes and refresh tokens. Records are TTL-bound and
// redeemed at most once.
package session

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/uitsmijter/uitsmijter/pkg/token"
)

// Type discriminates what kind of code a session is stored under.
type Type string

// Session types.
const (
	TypeCode    Type = "code"
	TypeRefresh Type = "refresh"
)

// CodeChallengeMethod names a PKCE challenge transformation.
type CodeChallengeMethod string

// PKCE challenge methods.
const (
	ChallengeMethodPlain CodeChallengeMethod = "plain"
	ChallengeMethodS256  CodeChallengeMethod = "S256"
)

// codeLength is the length of generated authorization and refresh codes.
const codeLength = 16

const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode returns a fresh random opaque code. The caller must use this
// generator; a (type, codeValue) collision is a programming error.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// AuthSession is the record stored behind an authorization code or refresh
// token. It is serialized as JSON with RFC 3339 timestamps.
type AuthSession struct {
	Type                Type                `json:"type"`
	CodeValue           string              `json:"codeValue"`
	State               string              `json:"state,omitempty"`
	CodeChallenge       string              `json:"codeChallenge,omitempty"`
	CodeChallengeMethod CodeChallengeMethod `json:"codeChallengeMethod,omitempty"`
	Scopes              []string            `json:"scopes,omitempty"`
	Payload             *token.Payload      `json:"payload"`
	RedirectURI         string              `json:"redirectUri,omitempty"`
	ExpiresAt           time.Time           `json:"expiresAt"`
}

// Expired reports whether the record's TTL ran out.
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// belongsToClient reports whether the session was issued for the client.
// The audience claim carries the client idents.
func (s *AuthSession) belongsToClient(clientIdent string) bool {
	if s.Payload == nil {
		return false
	}
	for _, aud := range s.Payload.Audience {
		if aud == clientIdent {
			return true
		}
	}
	return false
}

func (s *AuthSession) belongsToTenant(tenantName string) bool {
	return s.Payload != nil && s.Payload.Tenant == tenantName
}

func (s *AuthSession) belongsToSubject(subject string) bool {
	return s.Payload != nil && s.Payload.Subject == subject
}

// Store persists auth sessions keyed by (type, codeValue).
//
// Get with remove=true is atomic: concurrent callers racing on the same code
// see at most one success. Expired records are never returned. Counts and
// wipes serve operational tooling and are not on the hot path.
type Store interface {
	// Set stores a session under its (type, codeValue) key.
	Set(ctx context.Context, s *AuthSession) error

	// Get returns the session for (typ, codeValue) or nil when absent or
	// expired. With remove=true the record is consumed atomically.
	Get(ctx context.Context, typ Type, codeValue string, remove bool) (*AuthSession, error)

	// CountByClient counts stored sessions of the given type issued for a
	// client ident.
	CountByClient(ctx context.Context, clientIdent string, typ Type) (int, error)

	// CountByTenant counts stored sessions of the given type issued for a
	// tenant.
	CountByTenant(ctx context.Context, tenantName string, typ Type) (int, error)

	// WipeByTenantAndSubject removes all sessions of a subject within a
	// tenant, whatever their type. It returns the number of removed records.
	WipeByTenantAndSubject(ctx context.Context, tenantName, subject string) (int, error)

	// Close releases backend resources.
	Close() error
}
