// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// rsaKeyBits is the modulus size of generated signing keys.
const rsaKeyBits = 2048

// waiterBackoff is the poll schedule a replica follows while another holder
// of the generation lock is producing the active key.
var waiterBackoff = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	1500 * time.Millisecond,
	2 * time.Second,
	2500 * time.Millisecond,
}

// Manager owns key generation and rotation on top of a Store.
type Manager struct {
	store Store

	// maxKeyAge is the active-key age after which ActiveKey rotates.
	maxKeyAge time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

// NewManager creates a key manager over the given backend. A non-positive
// maxKeyAge disables age-based rotation.
func NewManager(store Store, maxKeyAge time.Duration) *Manager {
	return &Manager{store: store, maxKeyAge: maxKeyAge, now: time.Now}
}

// GenerateAndStoreKey creates a fresh RSA key pair under the given kid and
// persists it. When setActive is true the key becomes the active signing key
// and all other keys are deactivated.
func (m *Manager) GenerateAndStoreKey(ctx context.Context, kid string, setActive bool) (*StoredKey, error) {
	private, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(private),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	key := StoredKey{
		Kid:        kid,
		PrivatePEM: string(privatePEM),
		PublicPEM:  string(publicPEM),
		CreatedAt:  m.now().UTC(),
		IsActive:   setActive,
	}
	if err := m.store.Save(ctx, key); err != nil {
		return nil, err
	}
	if setActive {
		if err := m.store.SetActive(ctx, kid); err != nil {
			return nil, err
		}
	}
	logger.Infow("generated signing key", "kid", kid, "active", setActive)
	return &key, nil
}

// ActiveKey returns the active signing key, generating one when none exists
// or when the active key aged past the rotation maximum. Generation is
// serialized through the backend lock; replicas that lose the race poll the
// active pointer with back-off until the winner published the key.
func (m *Manager) ActiveKey(ctx context.Context) (*StoredKey, error) {
	if key, ok, err := m.currentActive(ctx); err != nil {
		return nil, err
	} else if ok {
		return key, nil
	}

	release, err := m.store.Lock(ctx)
	if errors.Is(err, ErrLockNotAcquired) {
		return m.awaitActiveKey(ctx)
	}
	if err != nil {
		return nil, err
	}
	defer release()

	// Another process may have finished generation between our first read
	// and the lock acquisition.
	if key, ok, err := m.currentActive(ctx); err != nil {
		return nil, err
	} else if ok {
		return key, nil
	}

	kid := m.now().UTC().Format(time.DateOnly)
	if existing, err := m.store.Key(ctx, kid); err == nil && !m.pastMaxAge(existing) {
		// A key with today's kid exists but is not active (for example after
		// a partial rotation). Reactivate it instead of overwriting, unless
		// it already exceeded the rotation maximum itself.
		if err := m.store.SetActive(ctx, kid); err != nil {
			return nil, err
		}
		return m.store.Key(ctx, kid)
	}
	return m.GenerateAndStoreKey(ctx, kid, true)
}

// currentActive loads the active key and reports whether it is usable, i.e.
// present and not past the rotation maximum.
func (m *Manager) currentActive(ctx context.Context) (*StoredKey, bool, error) {
	kid, err := m.store.ActiveKid(ctx)
	if err != nil {
		return nil, false, err
	}
	if kid == "" {
		return nil, false, nil
	}
	key, err := m.store.Key(ctx, kid)
	if errors.Is(err, ErrKeyNotFound) {
		logger.Warnw("active key pointer refers to a missing key", "kid", kid)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if m.pastMaxAge(key) {
		logger.Infow("active signing key exceeded maximum age, rotating",
			"kid", key.Kid, "createdAt", key.CreatedAt)
		return nil, false, nil
	}
	return key, true, nil
}

// pastMaxAge reports whether a key aged beyond the rotation maximum. A
// non-positive maximum disables age-based rotation.
func (m *Manager) pastMaxAge(key *StoredKey) bool {
	return m.maxKeyAge > 0 && m.now().UTC().Sub(key.CreatedAt) > m.maxKeyAge
}

// awaitActiveKey polls the active pointer while another process generates
// the key.
func (m *Manager) awaitActiveKey(ctx context.Context) (*StoredKey, error) {
	for _, delay := range waiterBackoff {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if key, ok, err := m.currentActive(ctx); err != nil {
			return nil, err
		} else if ok {
			return key, nil
		}
	}
	return nil, ErrNoActiveKey
}

// KeyByKid returns the stored key with the given kid.
func (m *Manager) KeyByKid(ctx context.Context, kid string) (*StoredKey, error) {
	return m.store.Key(ctx, kid)
}

// Keys returns all stored keys, oldest first.
func (m *Manager) Keys(ctx context.Context) ([]StoredKey, error) {
	return m.store.Keys(ctx)
}

// RemoveOlderThan purges keys created before the cutoff. The active key is
// never removed, whatever its age.
func (m *Manager) RemoveOlderThan(ctx context.Context, cutoff time.Time) error {
	activeKid, err := m.store.ActiveKid(ctx)
	if err != nil {
		return err
	}
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.Kid == activeKid || !key.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, key.Kid); err != nil {
			return err
		}
		logger.Infow("removed expired signing key", "kid", key.Kid, "createdAt", key.CreatedAt)
	}
	return nil
}
