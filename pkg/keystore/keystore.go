// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore manages the RSA signing keys of the authorization
// server: generation, rotation, JWKS publication, and JWT signing and
// verification. Key material is held in a pluggable backend so multiple
// pods can share one logical key set.
package keystore

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the key store.
var (
	// ErrKeyNotFound is returned when a kid is not present in the backend.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoActiveKey is returned when no active key could be obtained.
	ErrNoActiveKey = errors.New("no active signing key")

	// ErrLockNotAcquired signals that another process holds the
	// generation lock.
	ErrLockNotAcquired = errors.New("key generation lock not acquired")
)

// StoredKey is one RSA key pair with its metadata. The kid is an ISO-8601
// date string; at most one stored key is active at a time.
type StoredKey struct {
	Kid        string    `json:"kid"`
	PrivatePEM string    `json:"-"`
	PublicPEM  string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	IsActive   bool      `json:"isActive"`
}

// PrivateKey parses the PEM-encoded private key.
func (k *StoredKey) PrivateKey() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(k.PrivatePEM))
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block in private key", k.Kid)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: parse private key: %w", k.Kid, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %s: not an RSA key", k.Kid)
	}
	return key, nil
}

// PublicKey parses the PEM-encoded public key.
func (k *StoredKey) PublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.PublicPEM))
	if block == nil {
		return nil, fmt.Errorf("key %s: no PEM block in public key", k.Kid)
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key %s: parse public key: %w", k.Kid, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %s: not an RSA public key", k.Kid)
	}
	return key, nil
}

// Store persists key pairs and the active-key pointer.
//
// SetActive must atomically replace the pointer; the metadata of the
// previously active keys is rewritten afterwards. Lock provides a
// best-effort distributed lock used to serialize key generation across
// processes; the returned release function is a no-op after the TTL ran out.
type Store interface {
	// Save stores or overwrites a key pair and its metadata.
	Save(ctx context.Context, key StoredKey) error

	// Key returns the key with the given kid or ErrKeyNotFound.
	Key(ctx context.Context, kid string) (*StoredKey, error)

	// Keys returns all stored keys ordered by creation time, oldest first.
	Keys(ctx context.Context) ([]StoredKey, error)

	// ActiveKid returns the kid the active pointer refers to, or "" when
	// no key is active.
	ActiveKid(ctx context.Context) (string, error)

	// SetActive points the active pointer at kid and marks all other key
	// metadata inactive.
	SetActive(ctx context.Context, kid string) error

	// Delete removes a key pair and its metadata.
	Delete(ctx context.Context, kid string) error

	// Lock acquires the generation lock. It returns ErrLockNotAcquired
	// when another holder owns it.
	Lock(ctx context.Context) (release func(), err error)
}

// lockTTL bounds how long a crashed process can block key generation.
const lockTTL = 10 * time.Second
