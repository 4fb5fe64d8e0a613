package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/ordertrack/internal/config"
)

func TestNewStore(t *testing.T) {
	testCases := map[string]struct {
		cache   config.Cache
		noop    bool
		wantErr bool
	}{
		"should use noop when disabled": {
			cache: config.Cache{Enabled: false, Driver: "redis"},
			noop:  true,
		},
		"should use noop when asked": {
			cache: config.Cache{Enabled: true, Driver: "noop"},
			noop:  true,
		},
		"should build redis lazily": {
			cache: config.Cache{Enabled: true, Driver: "redis", Prefix: "ordertrack", Redis: config.Redis{Addr: "127.0.0.1:0"}},
		},
		"should reject unknown drivers": {
			cache:   config.Cache{Enabled: true, Driver: "memcached"},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			lc := fxtest.NewLifecycle(t)

			store, err := NewStore(lc, config.Config{Cache: tc.cache}, zap.NewNop())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			_, isNoop := store.(noopStore)
			assert.Equal(t, tc.noop, isNoop)
		})
	}
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	store := noopStore{}

	require.NoError(t, store.Set(ctx, "orders:1", []byte("{}"), time.Minute))
	_, err := store.Get(ctx, "orders:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, store.Delete(ctx, "orders:1"))
}

func TestRedisStore_Keys(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "ordertrack:orders:1", newRedisClientStore(client, "ordertrack", time.Minute).key("orders:1"))
	assert.Equal(t, "orders:1", newRedisClientStore(client, "", time.Minute).key("orders:1"))
}

func TestRedisStore_EmptyKeys(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	store := newRedisClientStore(client, "ordertrack", time.Minute)
	ctx := context.Background()

	_, err := store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Error(t, store.Set(ctx, "", []byte("x"), 0))
	assert.NoError(t, store.Delete(ctx, ""))
}
