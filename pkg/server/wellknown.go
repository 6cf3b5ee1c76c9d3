// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uitsmijter/uitsmijter/pkg/config"
)

// handleJWKS publishes the public keys of all stored signing keys.
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) error {
	// Make sure at least one key exists before the document is served.
	if s.cfg.JWTAlgorithm == config.AlgorithmRS256 {
		if _, err := s.keys.ActiveKey(r.Context()); err != nil {
			return err
		}
	}
	set, err := s.keys.AllPublicKeys(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, set)
}

// handleTokenInfo is a minimal introspection endpoint: it reports whether a
// token verifies and, if so, returns its claims.
func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return badRequest(ReasonFormNotParseable)
	}
	raw := r.PostFormValue("token")
	if raw == "" {
		if auth := r.Header.Get("Authorization"); auth != "" {
			raw, _ = strings.CutPrefix(auth, "Bearer ")
		}
	}
	if raw == "" {
		return badRequest(ReasonFormNotParseable)
	}

	payload, err := s.signer.Verify(r.Context(), raw)
	if err != nil {
		return writeJSON(w, http.StatusOK, map[string]any{"active": false})
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"active":  true,
		"sub":     payload.Subject,
		"aud":     payload.Audience,
		"exp":     payload.ExpiresAt,
		"iat":     payload.IssuedAt,
		"tenant":  payload.Tenant,
		"user":    payload.User,
		"role":    payload.Role,
		"scope":   strings.Join(payload.Scopes, " "),
		"profile": payload.Profile,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness once at least one tenant is loaded, or
// unconditionally when the server intentionally runs without entities.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tenants": len(s.store.Tenants()),
	})
}

func (s *Server) handleMetrics() http.HandlerFunc {
	h := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})
	return h.ServeHTTP
}

func (s *Server) handleVersions(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, s.version)
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
