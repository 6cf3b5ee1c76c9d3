// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"sync"
	"time"
)

// cleanupInterval is how often the background sweep evicts expired records.
const cleanupInterval = time.Minute

type sessionKey struct {
	typ  Type
	code string
}

// MemoryStore keeps auth sessions in process memory. Expired entries are
// evicted lazily on read and proactively by a background sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[sessionKey]*AuthSession

	stopOnce sync.Once
	stopCh   chan struct{}

	// now is replaceable for tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory session store and starts its sweeper.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[sessionKey]*AuthSession),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
	go m.cleanupLoop()
	return m
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *MemoryStore) evictExpired() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, key)
		}
	}
}

// Set stores a session under its (type, codeValue) key.
func (m *MemoryStore) Set(_ context.Context, s *AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[sessionKey{typ: s.Type, code: s.CodeValue}] = &copied
	return nil
}

// Get returns the session or nil. With remove=true the record is consumed;
// a concurrent second redemption of the same code finds nothing.
func (m *MemoryStore) Get(_ context.Context, typ Type, codeValue string, remove bool) (*AuthSession, error) {
	key := sessionKey{typ: typ, code: codeValue}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	if s.Expired(m.now()) {
		delete(m.sessions, key)
		return nil, nil
	}
	if remove {
		delete(m.sessions, key)
	}
	copied := *s
	return &copied, nil
}

// CountByClient counts sessions of the given type issued for a client ident.
func (m *MemoryStore) CountByClient(_ context.Context, clientIdent string, typ Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	count := 0
	for key, s := range m.sessions {
		if key.typ == typ && !s.Expired(now) && s.belongsToClient(clientIdent) {
			count++
		}
	}
	return count, nil
}

// CountByTenant counts sessions of the given type issued for a tenant.
func (m *MemoryStore) CountByTenant(_ context.Context, tenantName string, typ Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	count := 0
	for key, s := range m.sessions {
		if key.typ == typ && !s.Expired(now) && s.belongsToTenant(tenantName) {
			count++
		}
	}
	return count, nil
}

// WipeByTenantAndSubject removes all sessions of a subject within a tenant.
func (m *MemoryStore) WipeByTenantAndSubject(_ context.Context, tenantName, subject string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, s := range m.sessions {
		if s.belongsToTenant(tenantName) && s.belongsToSubject(subject) {
			delete(m.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Close stops the background sweeper.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}
