// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/uitsmijter/uitsmijter/pkg/config"
	"github.com/uitsmijter/uitsmijter/pkg/token"
)

// ErrInvalidToken is returned by Verify for any token that does not carry a
// valid signature from a known key, is expired, or is otherwise malformed.
var ErrInvalidToken = errors.New("invalid token")

// Signer signs and verifies JWTs. The algorithm is selected by configuration:
// HS256 signs with the shared secret and emits no kid, RS256 signs with the
// active RSA key and embeds its kid in the header. Verification accepts every
// key still present in storage, so tokens stay valid across a rotation.
type Signer struct {
	manager   *Manager
	algorithm string
	secret    []byte
}

// NewSigner creates a signer for the configured default algorithm.
func NewSigner(manager *Manager, cfg *config.Config) *Signer {
	return &Signer{
		manager:   manager,
		algorithm: cfg.JWTAlgorithm,
		secret:    []byte(cfg.JWTSecret),
	}
}

// Sign produces a signed JWT for the payload with the configured default
// algorithm. The returned kid is empty for HS256.
func (s *Signer) Sign(ctx context.Context, payload *token.Payload) (string, string, error) {
	return s.SignWith(ctx, payload, s.algorithm)
}

// SignWith produces a signed JWT with an explicit algorithm, used when a
// tenant overrides the server default.
func (s *Signer) SignWith(ctx context.Context, payload *token.Payload, algorithm string) (string, string, error) {
	switch algorithm {
	case config.AlgorithmHS256:
		if len(s.secret) == 0 {
			return "", "", fmt.Errorf("no symmetric secret configured for %s", config.AlgorithmHS256)
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
		if err != nil {
			return "", "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, "", nil

	case config.AlgorithmRS256:
		key, err := s.manager.ActiveKey(ctx)
		if err != nil {
			return "", "", err
		}
		private, err := key.PrivateKey()
		if err != nil {
			return "", "", err
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, payload)
		tok.Header["kid"] = key.Kid
		signed, err := tok.SignedString(private)
		if err != nil {
			return "", "", fmt.Errorf("failed to sign token: %w", err)
		}
		return signed, key.Kid, nil

	default:
		return "", "", fmt.Errorf("unsupported signing algorithm: %q", algorithm)
	}
}

// Verify parses and validates a JWT and returns its payload. It dispatches
// on the token header: HS256 tokens check against the shared secret, RS256
// tokens select the public key by kid, falling back to trying every stored
// key when the header carries none.
func (s *Signer) Verify(ctx context.Context, raw string) (*token.Payload, error) {
	payload := &token.Payload{}
	parsed, err := jwt.ParseWithClaims(raw, payload, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(s.secret) == 0 {
				return nil, fmt.Errorf("symmetric tokens are not accepted")
			}
			return s.secret, nil
		case *jwt.SigningMethodRSA:
			return s.rsaVerificationKey(ctx, t)
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return payload, nil
}

func (s *Signer) rsaVerificationKey(ctx context.Context, t *jwt.Token) (any, error) {
	if kid, ok := t.Header["kid"].(string); ok && kid != "" {
		key, err := s.manager.KeyByKid(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key.PublicKey()
	}

	// No kid in the header: accept any stored key that verifies.
	keys, err := s.manager.Keys(ctx)
	if err != nil {
		return nil, err
	}
	signingString, signature, err := splitToken(t.Raw)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		public, err := keys[i].PublicKey()
		if err != nil {
			continue
		}
		if t.Method.Verify(signingString, signature, public) == nil {
			return public, nil
		}
	}
	return nil, ErrKeyNotFound
}

func splitToken(raw string) (string, []byte, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return "", nil, ErrInvalidToken
	}
	signature, err := jwt.NewParser().DecodeSegment(parts[2])
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode token signature: %w", err)
	}
	return parts[0] + "." + parts[1], signature, nil
}
