// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uitsmijter/uitsmijter/pkg/logger"
)

// sessionKeyPrefix namespaces all session entries in Redis. The full key is
// uitsmijter:auth:<type>:<codeValue>.
const sessionKeyPrefix = "uitsmijter:auth"

// RedisStore persists auth sessions in Redis with a per-record TTL, so all
// replicas share one session space. At-most-once redemption relies on GETDEL.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

func redisKey(typ Type, codeValue string) string {
	return fmt.Sprintf("%s:%s:%s", sessionKeyPrefix, typ, codeValue)
}

// Set stores a session with the TTL derived from its expiry. Records that
// are already expired are not written.
func (r *RedisStore) Set(ctx context.Context, s *AuthSession) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s is already expired", s.CodeValue)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(s.Type, s.CodeValue), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get returns the session or nil. With remove=true the lookup uses GETDEL,
// so exactly one of several concurrent redeemers receives the record.
func (r *RedisStore) Get(ctx context.Context, typ Type, codeValue string, remove bool) (*AuthSession, error) {
	key := redisKey(typ, codeValue)

	var raw string
	var err error
	if remove {
		raw, err = r.client.GetDel(ctx, key).Result()
	} else {
		raw, err = r.client.Get(ctx, key).Result()
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s := &AuthSession{}
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Expired(time.Now()) {
		// Redis TTL normally evicts first; guard against clock drift.
		return nil, nil
	}
	return s, nil
}

// CountByClient counts sessions of the given type issued for a client ident.
func (r *RedisStore) CountByClient(ctx context.Context, clientIdent string, typ Type) (int, error) {
	count := 0
	err := r.scanSessions(ctx, typ, func(s *AuthSession) bool {
		if s.belongsToClient(clientIdent) {
			count++
		}
		return false
	})
	return count, err
}

// CountByTenant counts sessions of the given type issued for a tenant.
func (r *RedisStore) CountByTenant(ctx context.Context, tenantName string, typ Type) (int, error) {
	count := 0
	err := r.scanSessions(ctx, typ, func(s *AuthSession) bool {
		if s.belongsToTenant(tenantName) {
			count++
		}
		return false
	})
	return count, err
}

// WipeByTenantAndSubject removes all sessions of a subject within a tenant.
func (r *RedisStore) WipeByTenantAndSubject(ctx context.Context, tenantName, subject string) (int, error) {
	removed := 0
	for _, typ := range []Type{TypeCode, TypeRefresh} {
		err := r.scanSessions(ctx, typ, func(s *AuthSession) bool {
			if s.belongsToTenant(tenantName) && s.belongsToSubject(subject) {
				removed++
				return true
			}
			return false
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// scanSessions iterates all sessions of one type. When shouldDelete returns
// true the key is removed. Unparseable entries are skipped with a log line.
func (r *RedisStore) scanSessions(ctx context.Context, typ Type, shouldDelete func(*AuthSession) bool) error {
	pattern := redisKey(typ, "*")
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to scan sessions: %w", err)
		}
		s := &AuthSession{}
		if err := json.Unmarshal([]byte(raw), s); err != nil {
			logger.Warnw("skipping unparseable session record", "key", key, "error", err)
			continue
		}
		if shouldDelete(s) {
			if err := r.client.Del(ctx, key).Err(); err != nil {
				return fmt.Errorf("failed to wipe session: %w", err)
			}
		}
	}
	return iter.Err()
}

// Close is a no-op; the Redis client is owned by the caller.
func (r *RedisStore) Close() error { return nil }
