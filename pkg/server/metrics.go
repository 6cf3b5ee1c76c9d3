// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the operational counters of the server and tracks denied
// login attempts per client. The per-client tracking is reset when a client
// is removed from the entity store.
type Metrics struct {
	registry *prometheus.Registry

	loginAttempts  *prometheus.CounterVec
	deniedAttempts *prometheus.CounterVec
	tokensIssued   *prometheus.CounterVec

	mu     sync.Mutex
	denied map[string]int
}

// NewMetrics creates and registers the server's metric set on a fresh
// registry, keeping tests isolated from each other.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uitsmijter_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"tenant", "outcome"}),
		deniedAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uitsmijter_denied_login_attempts_total",
			Help: "Denied login attempts per client.",
		}, []string{"client"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uitsmijter_tokens_issued_total",
			Help: "Issued tokens by grant type.",
		}, []string{"grant_type"}),
		denied: map[string]int{},
	}
	m.registry.MustRegister(m.loginAttempts, m.deniedAttempts, m.tokensIssued)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// LoginSucceeded counts a successful login for a tenant.
func (m *Metrics) LoginSucceeded(tenantName string) {
	m.loginAttempts.WithLabelValues(tenantName, "success").Inc()
}

// LoginDenied counts a denied login and increments the client's
// denied-attempts counter when a client is known.
func (m *Metrics) LoginDenied(tenantName, clientIdent string) {
	m.loginAttempts.WithLabelValues(tenantName, "denied").Inc()
	if clientIdent == "" {
		return
	}
	m.deniedAttempts.WithLabelValues(clientIdent).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[clientIdent]++
}

// DeniedAttempts returns the denied-attempt count of a client.
func (m *Metrics) DeniedAttempts(clientIdent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.denied[clientIdent]
}

// ForgetClient drops the denied-attempts state of a removed client.
func (m *Metrics) ForgetClient(clientIdent string) {
	m.deniedAttempts.DeleteLabelValues(clientIdent)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.denied, clientIdent)
}

// TokenIssued counts one issued token.
func (m *Metrics) TokenIssued(grantType string) {
	m.tokensIssued.WithLabelValues(grantType).Inc()
}
