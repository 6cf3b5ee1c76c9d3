// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// AllPublicKeys converts every stored public key into a JWK set for
// publication under /.well-known/jwks.json. Keys whose PEM fails to parse
// are skipped with a log entry so one corrupt entry cannot take down the
// whole document.
func (m *Manager) AllPublicKeys(ctx context.Context) (jwk.Set, error) {
	keys, err := m.store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	for i := range keys {
		entry, err := publicJWK(&keys[i])
		if err != nil {
			logger.Warnw("skipping unparseable stored key in JWKS", "kid", keys[i].Kid, "error", err)
			continue
		}
		if err := set.AddKey(entry); err != nil {
			return nil, fmt.Errorf("failed to add key %s to JWK set: %w", keys[i].Kid, err)
		}
	}
	return set, nil
}

func publicJWK(key *StoredKey) (jwk.Key, error) {
	public, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	entry, err := jwk.Import(public)
	if err != nil {
		return nil, fmt.Errorf("failed to convert key %s to JWK: %w", key.Kid, err)
	}
	if err := entry.Set(jwk.KeyIDKey, key.Kid); err != nil {
		return nil, err
	}
	if err := entry.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, err
	}
	if err := entry.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	return entry, nil
}
