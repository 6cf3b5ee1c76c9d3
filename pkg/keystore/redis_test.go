// SPDX-FileCopyrightText: Copyright 2025 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	key := StoredKey{
		Kid:        "2024-01-01",
		PrivatePEM: "private-pem",
		PublicPEM:  "public-pem",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, key))

	loaded, err := store.Key(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, key.PrivatePEM, loaded.PrivatePEM)
	assert.Equal(t, key.PublicPEM, loaded.PublicPEM)
	assert.True(t, key.CreatedAt.Equal(loaded.CreatedAt))
	assert.False(t, loaded.IsActive)

	_, err = store.Key(ctx, "2099-01-01")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisStoreSchema(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Save(ctx, StoredKey{
		Kid:        "2024-01-01",
		PrivatePEM: "private-pem",
		PublicPEM:  "public-pem",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.SetActive(ctx, "2024-01-01"))

	assert.Equal(t, "2024-01-01", must(mr.Get("uitsmijter:jwt:active")))
	assert.Equal(t, "private-pem", must(mr.Get("uitsmijter:jwt:keys:2024-01-01:private")))
	assert.Equal(t, "public-pem", must(mr.Get("uitsmijter:jwt:keys:2024-01-01:public")))

	kids, err := mr.ZMembers("uitsmijter:jwt:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01"}, kids)
}

func must(v string, err error) string {
	if err != nil {
		return ""
	}
	return v
}

func TestRedisStoreActiveOrdering(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	for i, kid := range []string{"2024-01-01", "2024-04-01", "2024-07-01"} {
		require.NoError(t, store.Save(ctx, StoredKey{
			Kid:       kid,
			CreatedAt: time.Date(2024, time.Month(1+3*i), 1, 0, 0, 0, 0, time.UTC),
		}))
	}
	require.NoError(t, store.SetActive(ctx, "2024-07-01"))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, "2024-01-01", keys[0].Kid)
	assert.Equal(t, "2024-07-01", keys[2].Kid)
	assert.False(t, keys[0].IsActive)
	assert.True(t, keys[2].IsActive)

	kid, err := store.ActiveKid(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", kid)
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	require.NoError(t, store.Save(ctx, StoredKey{Kid: "2024-01-01", CreatedAt: time.Now()}))
	require.NoError(t, store.Delete(ctx, "2024-01-01"))

	_, err := store.Key(ctx, "2024-01-01")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisStoreLockFencing(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	release, err := store.Lock(ctx)
	require.NoError(t, err)

	_, err = store.Lock(ctx)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// After the TTL runs out another process may take the lock; the stale
	// release must not remove the new holder's token.
	mr.FastForward(lockTTL + time.Second)
	release2, err := store.Lock(ctx)
	require.NoError(t, err)

	release()
	_, err = store.Lock(ctx)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	release2()
}

func TestManagerOverRedis(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	manager := NewManager(store, 90*24*time.Hour)

	key, err := manager.ActiveKey(ctx)
	require.NoError(t, err)
	assert.True(t, key.IsActive)

	again, err := manager.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.Kid, again.Kid)
}
