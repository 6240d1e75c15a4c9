package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/roha-backend/pkg/config"
)

func TestIncrWithTTLArmsWindowOnce(t *testing.T) {
	ctx := context.Background()
	fake := newFakeStore()
	client := &Client{store: fake}

	for want := int64(1); want <= 3; want++ {
		n, err := client.IncrWithTTL(ctx, "roha:rl:login:ip:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, []time.Duration{time.Minute}, fake.expiries["roha:rl:login:ip:1.2.3.4"])
}

func TestIncrWithTTLRearmsCounterWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	fake := newFakeStore()
	fake.counters["k"] = 4
	client := &Client{store: fake}

	n, err := client.IncrWithTTL(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, []time.Duration{30 * time.Second}, fake.expiries["k"])
}

func TestIncrWithTTLRejectsEmptyWindow(t *testing.T) {
	client := &Client{store: newFakeStore()}
	_, err := client.IncrWithTTL(context.Background(), "k", 0)
	assert.Error(t, err)
}

func TestIncrWithTTLWrapsStoreErrors(t *testing.T) {
	fake := newFakeStore()
	fake.evalErr = errors.New("connection reset")
	client := &Client{store: fake}

	_, err := client.IncrWithTTL(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, fake.evalErr)
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeStore()}

	key := client.LockKey("cron-worker:test")
	ok, err := client.SetNX(ctx, key, "holder-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, key, "holder-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "holder-1", got)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
	assert.NoError(t, client.Del(ctx))
}

func TestSetMembersWithTTL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeStore()
	client := &Client{store: fake}

	key := client.UserSessionsKey("u1")
	assert.Equal(t, "roha:session:user:u1", key)
	require.NoError(t, client.SAddWithTTL(ctx, key, time.Hour, "jti-1", "jti-2"))
	require.NoError(t, client.SRem(ctx, key, "jti-1"))

	members, err := client.SMembers(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"jti-2"}, members)
	assert.Equal(t, []time.Duration{time.Hour}, fake.expiries[key])
	assert.NoError(t, client.SAddWithTTL(ctx, key, time.Hour))
}

func TestPublishRecordsChannel(t *testing.T) {
	fake := newFakeStore()
	client := &Client{store: fake}

	receivers, err := client.Publish(context.Background(), "roha:live:orders:abc", `{"type":"order_updated"}`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, receivers)
	assert.Len(t, fake.published["roha:live:orders:abc"], 1)
}

func TestUninitializedClientFails(t *testing.T) {
	var client *Client
	ctx := context.Background()

	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.Get(ctx, "k")
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = (&Client{}).Subscribe(ctx, "roha:live:admin")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
	assert.NoError(t, client.RegisterPoolMetrics(prometheus.NewRegistry()))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "roha:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "roha:lock:cron", client.LockKey("cron"))
	assert.Equal(t, "roha:session:access:jti-1", client.AccessSessionKey("jti-1"))
	assert.Equal(t, "roha:idempotency:id", client.IdempotencyKey("", "id"))

	staging := &Client{namespace: namespaceOrDefault(" staging: ")}
	assert.Equal(t, "staging:lock:cron", staging.LockKey("cron"))
	assert.Equal(t, defaultNamespace, namespaceOrDefault(""))
}

func TestOptionsFromConfig(t *testing.T) {
	base := config.RedisConfig{
		PoolSize:     12,
		MinIdleConns: 3,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}

	t.Run("url wins and keeps its db", func(t *testing.T) {
		cfg := base
		cfg.URL = "redis://:secret@cache:6380/4"
		cfg.DB = 9
		opts, err := optionsFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 4, opts.DB)
		assert.Equal(t, 12, opts.PoolSize)
		assert.Equal(t, 2*time.Second, opts.DialTimeout)
	})

	t.Run("address fallback", func(t *testing.T) {
		cfg := base
		cfg.Address = "localhost:6379"
		cfg.Password = "pw"
		cfg.DB = 2
		opts, err := optionsFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", opts.Addr)
		assert.Equal(t, "pw", opts.Password)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 3, opts.MinIdleConns)
	})

	t.Run("nothing to dial", func(t *testing.T) {
		_, err := optionsFromConfig(base)
		assert.Error(t, err)
	})

	t.Run("bad url", func(t *testing.T) {
		cfg := base
		cfg.URL = "http://nope"
		_, err := optionsFromConfig(cfg)
		assert.Error(t, err)
	})
}

func TestRegisterPoolMetrics(t *testing.T) {
	raw := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer raw.Close()
	client := &Client{store: raw, raw: raw}
	reg := prometheus.NewRegistry()

	require.NoError(t, client.RegisterPoolMetrics(reg))
	require.NoError(t, client.RegisterPoolMetrics(reg), "second registration is a no-op")

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

// fakeStore runs the window script's logic in memory; EvalSha never reports
// NOSCRIPT so Run does not fall back to Eval.
type fakeStore struct {
	mu        sync.Mutex
	data      map[string]string
	counters  map[string]int64
	expiries  map[string][]time.Duration
	published map[string][]string
	sets      map[string]map[string]bool
	evalErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:      map[string]string{},
		counters:  map[string]int64{},
		expiries:  map[string][]time.Duration{},
		published: map[string][]string{},
		sets:      map[string]map[string]bool{},
	}
}

func (f *fakeStore) runWindow(keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return redis.NewCmdResult(nil, f.evalErr)
	}
	key := keys[0]
	f.counters[key]++
	n := f.counters[key]
	if n == 1 || len(f.expiries[key]) == 0 {
		ms, _ := args[0].(int64)
		f.expiries[key] = append(f.expiries[key], time.Duration(ms)*time.Millisecond)
	}
	return redis.NewCmdResult(n, nil)
}

func (f *fakeStore) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.runWindow(keys, args...)
}

func (f *fakeStore) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.runWindow(keys, args...)
}

func (f *fakeStore) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeStore) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeStore) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeStore) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (f *fakeStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeStore) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sets[key] == nil {
		f.sets[key] = map[string]bool{}
	}
	for _, m := range members {
		f.sets[key][fmt.Sprint(m)] = true
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeStore) SRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], fmt.Sprint(m))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeStore) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeStore) PExpire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiries[key] = append(f.expiries[key], ttl)
	return redis.NewBoolResult(true, nil)
}
