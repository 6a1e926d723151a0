package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps every transport-level failure: refused
	// connections, timeouts, script errors. A timed-out call is unavailable,
	// never a miss.
	ErrStoreUnavailable = errors.New("kv store unavailable")

	// ErrNotFound reports a definite miss for the requested key.
	ErrNotFound = errors.New("key not found")
)

const incrWindowScript = `
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var incrWindowLua = redis.NewScript(incrWindowScript)

const setWithIndexScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
return 1
`

var setWithIndexLua = redis.NewScript(setWithIndexScript)

const deleteWithIndexScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteWithIndexLua = redis.NewScript(deleteWithIndexScript)

// Config holds connection, pool, and encryption settings for [New].
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int

	// Namespace, when set, prefixes every key this client touches.
	Namespace string

	EncryptionSecret []byte
	// PreviousEncryptionSecret enables two-phase key rotation; see [Sealer].
	PreviousEncryptionSecret []byte
	EncryptionSalt           []byte
	KDFIterations            int
}

// Client is the pooled, encrypting Redis client shared by the limiter and
// the token ledger. Safe for concurrent use.
type Client struct {
	redis     redis.UniversalClient
	sealer    *Sealer
	namespace string
	owns      bool
}

// New dials Redis with a bounded pool, derives the encryption keys, and
// pings the server once before returning. The ping is the pre-first-use
// healthcheck; reconnects after that are lazy with capped retries.
func New(ctx context.Context, cfg Config) (*Client, error) {
	sealer, err := NewSealer(cfg.EncryptionSecret, cfg.PreviousEncryptionSecret, cfg.EncryptionSalt, cfg.KDFIterations)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	c := &Client{redis: rdb, sealer: sealer, namespace: cfg.Namespace, owns: true}
	if err := c.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return c, nil
}

// NewWithClient wraps an injected Redis client. The caller keeps ownership
// of the client's lifecycle; [Client.Close] will not close it.
func NewWithClient(rdb redis.UniversalClient, sealer *Sealer, namespace string) *Client {
	return &Client{redis: rdb, sealer: sealer, namespace: namespace}
}

func (c *Client) key(k string) string {
	if c.namespace == "" {
		return k
	}
	return c.namespace + ":" + k
}

// Get returns the decrypted value at key, or [ErrNotFound].
//
//	Performance: 1 Redis GET.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return c.sealer.Open(data)
}

// Set encrypts value and stores it at key. ttl <= 0 stores without expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sealed, err := c.sealer.Seal(value)
	if err != nil {
		return err
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := c.redis.Set(ctx, c.key(key), sealed, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SetNX encrypts value and stores it only when key is absent. Reports
// whether the write happened.
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	sealed, err := c.sealer.Seal(value)
	if err != nil {
		return false, err
	}

	if ttl < 0 {
		ttl = 0
	}
	ok, err := c.redis.SetNX(ctx, c.key(key), sealed, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ok, nil
}

// Delete removes keys and returns how many existed.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}

	n, err := c.redis.Del(ctx, full...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// ExistsMany pipelines one EXISTS per key and returns presence in input
// order.
func (c *Client) ExistsMany(ctx context.Context, keys ...string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := c.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Exists(ctx, c.key(k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]bool, len(keys))
	for i, cmd := range cmds {
		n, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		out[i] = n > 0
	}
	return out, nil
}

// GetCounter reads a plaintext counter key. Missing keys read as zero.
func (c *Client) GetCounter(ctx context.Context, key string) (int64, error) {
	count, err := c.redis.Get(ctx, c.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// TTL returns the remaining lifetime of key. Negative durations follow
// Redis semantics: -1s for no expiry, -2s for a missing key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.redis.TTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// IncrWindow atomically increments a plaintext counter and arms its TTL on
// the window's first hit, in a single Lua round trip. It returns the count
// after the increment and the window's remaining lifetime. The script also
// re-arms a counter that somehow lost its TTL, so no window key can persist
// forever.
//
//	Performance: 1 Lua EVALSHA.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	result, err := incrWindowLua.Run(ctx, c.redis, []string{c.key(key)}, ms).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid increment script response", ErrStoreUnavailable)
	}
	count, ok := parts[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid increment script count", ErrStoreUnavailable)
	}
	ttlMillis, ok := parts[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid increment script ttl", ErrStoreUnavailable)
	}

	return count, time.Duration(ttlMillis) * time.Millisecond, nil
}

// SetWithIndex encrypts value, stores it at key with ttl, and adds member
// to the index set, atomically. The index set itself stays plaintext and
// unexpiring; housekeeping sweeps reconcile it.
func (c *Client) SetWithIndex(ctx context.Context, key string, value []byte, ttl time.Duration, indexKey, member string) error {
	sealed, err := c.sealer.Seal(value)
	if err != nil {
		return err
	}

	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	if err := setWithIndexLua.Run(ctx, c.redis, []string{c.key(key), c.key(indexKey)}, sealed, ms, member).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteWithIndex removes key and drops member from the index set,
// atomically. Reports whether the key existed, which is what makes repeat
// deletions observable as no-ops.
func (c *Client) DeleteWithIndex(ctx context.Context, key, indexKey, member string) (bool, error) {
	result, err := deleteWithIndexLua.Run(ctx, c.redis, []string{c.key(key), c.key(indexKey)}, member).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	existed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("%w: invalid delete script response", ErrStoreUnavailable)
	}
	return existed > 0, nil
}

// SAdd adds members to a plaintext set.
func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.redis.SAdd(ctx, c.key(key), args...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SRem removes members from a plaintext set.
func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.redis.SRem(ctx, c.key(key), args...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SMembers returns the members of a plaintext set; a missing set is empty.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.redis.SMembers(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return members, nil
}

// SCard returns the size of a plaintext set.
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	n, err := c.redis.SCard(ctx, c.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Scan iterates keys matching pattern from cursor. The pattern is
// namespaced like every other key. Admin paths only; never the request hot
// path.
func (c *Client) Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error) {
	keys, next, err := c.redis.Scan(ctx, cursor, c.key(pattern), count).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if c.namespace != "" {
		prefix := c.namespace + ":"
		for i, k := range keys {
			if len(k) > len(prefix) && k[:len(prefix)] == prefix {
				keys[i] = k[len(prefix):]
			}
		}
	}
	return keys, next, nil
}

// Ping checks availability with one round trip.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PingLatency is Ping plus the observed round-trip time.
func (c *Client) PingLatency(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.Ping(ctx)
	return time.Since(start), err
}

// Close releases the underlying Redis client when this Client dialed it;
// injected clients are left to their owner.
func (c *Client) Close() error {
	if !c.owns {
		return nil
	}
	return c.redis.Close()
}
