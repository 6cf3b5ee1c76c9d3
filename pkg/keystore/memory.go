// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps keys in process memory. It is the fallback backend when
// no Redis host is configured; keys do not survive a restart and are not
// shared between replicas.
type MemoryStore struct {
	mu        sync.Mutex
	keys      map[string]StoredKey
	activeKid string

	lockHeld  bool
	lockUntil time.Time
}

// NewMemoryStore creates an empty in-memory key store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]StoredKey)}
}

var _ Store = (*MemoryStore)(nil)

// Save stores or overwrites a key pair and its metadata.
func (m *MemoryStore) Save(_ context.Context, key StoredKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.Kid] = key
	return nil
}

// Key returns the key with the given kid or ErrKeyNotFound.
func (m *MemoryStore) Key(_ context.Context, kid string) (*StoredKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &key, nil
}

// Keys returns all stored keys ordered by creation time, oldest first.
func (m *MemoryStore) Keys(_ context.Context) ([]StoredKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]StoredKey, 0, len(m.keys))
	for _, key := range m.keys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })
	return keys, nil
}

// ActiveKid returns the kid of the active key, or "" when none is active.
func (m *MemoryStore) ActiveKid(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeKid, nil
}

// SetActive points the active pointer at kid and marks the rest inactive.
func (m *MemoryStore) SetActive(_ context.Context, kid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[kid]; !ok {
		return ErrKeyNotFound
	}
	m.activeKid = kid
	for id, key := range m.keys {
		key.IsActive = id == kid
		m.keys[id] = key
	}
	return nil
}

// Delete removes a key pair and its metadata.
func (m *MemoryStore) Delete(_ context.Context, kid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, kid)
	if m.activeKid == kid {
		m.activeKid = ""
	}
	return nil
}

// Lock acquires the in-process generation lock.
func (m *MemoryStore) Lock(_ context.Context) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.lockHeld && now.Before(m.lockUntil) {
		return nil, ErrLockNotAcquired
	}
	m.lockHeld = true
	m.lockUntil = now.Add(lockTTL)
	expiry := m.lockUntil
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Only release our own acquisition; a later holder keeps the lock.
		if m.lockHeld && m.lockUntil.Equal(expiry) {
			m.lockHeld = false
		}
	}, nil
}
