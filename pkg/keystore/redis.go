// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces all key-store entries in Redis.
const DefaultKeyPrefix = "uitsmijter:jwt"

// unlockScript deletes the lock only when it still carries our token, so a
// holder whose TTL expired cannot release a lock re-acquired by someone else.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore persists signing keys in Redis so that all replicas sign and
// verify with the same key set.
//
// Layout:
//
//	<prefix>:active               kid of the active key
//	<prefix>:keys:<kid>:metadata  JSON metadata
//	<prefix>:keys:<kid>:private   private key PEM
//	<prefix>:keys:<kid>:public    public key PEM
//	<prefix>:index                sorted set of kids scored by creation time
//	<prefix>:lock                 generation lock token
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed key store with the given prefix.
// An empty prefix falls back to DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

type storedKeyMetadata struct {
	Kid       string    `json:"kid"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}

func (r *RedisStore) keyName(kid, field string) string {
	return fmt.Sprintf("%s:keys:%s:%s", r.prefix, kid, field)
}

func (r *RedisStore) activeName() string { return r.prefix + ":active" }
func (r *RedisStore) indexName() string  { return r.prefix + ":index" }
func (r *RedisStore) lockName() string   { return r.prefix + ":lock" }

// Save stores the key material and metadata and indexes the kid.
func (r *RedisStore) Save(ctx context.Context, key StoredKey) error {
	meta, err := json.Marshal(storedKeyMetadata{
		Kid:       key.Kid,
		CreatedAt: key.CreatedAt,
		IsActive:  key.IsActive,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal key metadata: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.keyName(key.Kid, "metadata"), meta, 0)
	pipe.Set(ctx, r.keyName(key.Kid, "private"), key.PrivatePEM, 0)
	pipe.Set(ctx, r.keyName(key.Kid, "public"), key.PublicPEM, 0)
	pipe.ZAdd(ctx, r.indexName(), redis.Z{
		Score:  float64(key.CreatedAt.Unix()),
		Member: key.Kid,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save key %s: %w", key.Kid, err)
	}
	return nil
}

// Key loads one key pair by kid.
func (r *RedisStore) Key(ctx context.Context, kid string) (*StoredKey, error) {
	values, err := r.client.MGet(ctx,
		r.keyName(kid, "metadata"),
		r.keyName(kid, "private"),
		r.keyName(kid, "public"),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", kid, err)
	}
	if values[0] == nil {
		return nil, ErrKeyNotFound
	}

	var meta storedKeyMetadata
	if err := json.Unmarshal([]byte(values[0].(string)), &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key metadata %s: %w", kid, err)
	}
	key := &StoredKey{
		Kid:       meta.Kid,
		CreatedAt: meta.CreatedAt,
		IsActive:  meta.IsActive,
	}
	if values[1] != nil {
		key.PrivatePEM = values[1].(string)
	}
	if values[2] != nil {
		key.PublicPEM = values[2].(string)
	}
	return key, nil
}

// Keys loads all indexed keys, oldest first. Kids that vanished between the
// index read and the key read are skipped.
func (r *RedisStore) Keys(ctx context.Context) ([]StoredKey, error) {
	kids, err := r.client.ZRange(ctx, r.indexName(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	keys := make([]StoredKey, 0, len(kids))
	for _, kid := range kids {
		key, err := r.Key(ctx, kid)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, nil
}

// ActiveKid returns the kid the active pointer refers to.
func (r *RedisStore) ActiveKid(ctx context.Context) (string, error) {
	kid, err := r.client.Get(ctx, r.activeName()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active key pointer: %w", err)
	}
	return kid, nil
}

// SetActive repoints the active pointer and rewrites the metadata flags.
func (r *RedisStore) SetActive(ctx context.Context, kid string) error {
	if _, err := r.Key(ctx, kid); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.activeName(), kid, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active key pointer: %w", err)
	}

	keys, err := r.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		isActive := key.Kid == kid
		if key.IsActive == isActive {
			continue
		}
		key.IsActive = isActive
		if err := r.Save(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a key pair, its metadata, and its index entry.
func (r *RedisStore) Delete(ctx context.Context, kid string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx,
		r.keyName(kid, "metadata"),
		r.keyName(kid, "private"),
		r.keyName(kid, "public"),
	)
	pipe.ZRem(ctx, r.indexName(), kid)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", kid, err)
	}
	return nil
}

// Lock acquires the distributed generation lock via SETNX with a TTL. The
// token fences the release so that an expired holder cannot delete the lock
// of a successor.
func (r *RedisStore) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.lockName(), token, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire key generation lock: %w", err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = unlockScript.Run(ctx, r.client, []string{r.lockName()}, token).Err()
	}, nil
}
