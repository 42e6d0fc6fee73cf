package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultPrefix = "mcbridge:"
	scanBatch     = 512

	fieldData       = "d"
	fieldFlags      = "f"
	fieldVersion    = "v"
	fieldCompressed = "z"
)

// write results returned by writeScript
const (
	writeOK       = 0
	writeConflict = 1
	writeMissing  = 2
)

// writeScript stores an item as a hash. ARGV: mode (set|nx|xx|cas), data,
// flags, compressed, ttl in ms, expected version.
// An existing key gets its version + 1 through HINCRBY, exact in int64. A fresh
// key starts at the server clock in microseconds times 1000, built as a string.
// A key deleted and added again in a later microsecond starts above every
// version it had, given fewer than 1000 writes per microsecond to that key and
// a server clock that does not step back.
var writeScript = redis.NewScript(`
if redis.replicate_commands then redis.replicate_commands() end
local mode = ARGV[1]
local cur = redis.call('HGET', KEYS[1], 'v')
if mode == 'nx' and cur then
	return 1
end
if (mode == 'xx' or mode == 'cas') and not cur then
	return 2
end
if mode == 'cas' and cur ~= ARGV[6] then
	return 1
end
if cur then
	redis.call('HINCRBY', KEYS[1], 'v', 1)
else
	local t = redis.call('TIME')
	redis.call('HSET', KEYS[1], 'v', t[1] .. string.format('%06d', tonumber(t[2])) .. '000')
end
redis.call('HSET', KEYS[1], 'd', ARGV[2], 'f', ARGV[3], 'z', ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
else
	redis.call('PERSIST', KEYS[1])
end
return 0
`)

// RedisConfig ... Connection settings of the Redis remote. More than one
// address selects a cluster client
type RedisConfig struct {
	Addrs       []string
	Password    string
	DB          int
	Prefix      string
	PoolSize    int
	DialTimeout time.Duration
}

var _ RemoteCache = (*RedisRemote)(nil)

// RedisRemote ... RemoteCache on a Redis deployment, single node or cluster
type RedisRemote struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRemote ... Connects and pings the deployment
func NewRedisRemote(ctx context.Context, cfg RedisConfig) (*RedisRemote, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis: no address configured")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %v: %w", cfg.Addrs, err)
	}

	return NewRedisRemoteFromClient(client, cfg.Prefix), nil
}

func NewRedisRemoteFromClient(client redis.UniversalClient, prefix string) *RedisRemote {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisRemote{client: client, prefix: prefix}
}

func (r *RedisRemote) key(k string) string {
	return r.prefix + k
}

func (r *RedisRemote) Get(ctx context.Context, key string) (*Item, error) {
	items, err := r.GetAll(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	return items[key], nil
}

func (r *RedisRemote) GetAll(ctx context.Context, keys []string) (map[string]*Item, error) {
	fields := make([]*redis.StringStringMapCmd, len(keys))
	ttls := make([]*redis.DurationCmd, len(keys))

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			fields[i] = pipe.HGetAll(ctx, r.key(k))
			ttls[i] = pipe.PTTL(ctx, r.key(k))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	res := make(map[string]*Item, len(keys))
	for i, k := range keys {
		hash, err := fields[i].Result()
		if err != nil {
			return nil, err
		}
		if len(hash) == 0 {
			continue
		}

		item, err := decodeHash(k, hash)
		if err != nil {
			return nil, err
		}
		item.Expire = remaining(ttls[i].Val())
		res[k] = item
	}
	return res, nil
}

func decodeHash(key string, hash map[string]string) (*Item, error) {
	flags, err := strconv.ParseUint(hash[fieldFlags], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("redis item %q: flags: %w", key, err)
	}
	version, err := strconv.ParseUint(hash[fieldVersion], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis item %q: version: %w", key, err)
	}
	return &Item{
		Key:        key,
		Data:       []byte(hash[fieldData]),
		Flags:      uint32(flags),
		Version:    version,
		Compressed: hash[fieldCompressed] == "1",
	}, nil
}

// remaining converts a PTTL reply into an expire value, 0 for never
func remaining(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	if ms := d.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

func (r *RedisRemote) write(ctx context.Context, mode string, item *Item, version uint64, ttl time.Duration) (int64, error) {
	compressed := "0"
	if item.Compressed {
		compressed = "1"
	}
	return writeScript.Run(ctx, r.client, []string{r.key(item.Key)},
		mode,
		item.Data,
		strconv.FormatUint(uint64(item.Flags), 10),
		compressed,
		ttl.Milliseconds(),
		strconv.FormatUint(version, 10),
	).Int64()
}

func (r *RedisRemote) Put(ctx context.Context, item *Item, ttl time.Duration) error {
	_, err := r.write(ctx, "set", item, 0, ttl)
	return err
}

func (r *RedisRemote) PutIfAbsent(ctx context.Context, item *Item, ttl time.Duration) (bool, error) {
	code, err := r.write(ctx, "nx", item, 0, ttl)
	if err != nil {
		return false, err
	}
	return code == writeOK, nil
}

func (r *RedisRemote) Replace(ctx context.Context, item *Item, ttl time.Duration) (bool, error) {
	code, err := r.write(ctx, "xx", item, 0, ttl)
	if err != nil {
		return false, err
	}
	return code == writeOK, nil
}

func (r *RedisRemote) ReplaceWithVersion(ctx context.Context, item *Item, version uint64, ttl time.Duration) (VersionResult, error) {
	code, err := r.write(ctx, "cas", item, version, ttl)
	if err != nil {
		return VersionMissing, err
	}
	switch code {
	case writeOK:
		return VersionReplaced, nil
	case writeConflict:
		return VersionMismatch, nil
	default:
		return VersionMissing, nil
	}
}

func (r *RedisRemote) RemoveAsync(ctx context.Context, key string) *Future {
	f := NewFuture()
	go func() {
		n, err := r.client.Del(ctx, r.key(key)).Result()
		f.Complete(n > 0, err)
	}()
	return f
}

// forEachNode runs fn against every master of a cluster, or the single node
func (r *RedisRemote) forEachNode(ctx context.Context, fn func(ctx context.Context, c redis.Cmdable) error) error {
	if cluster, ok := r.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
			return fn(ctx, c)
		})
	}
	return fn(ctx, r.client)
}

func (r *RedisRemote) scan(ctx context.Context, c redis.Cmdable, batch func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := batch(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Clear ... Removes every key under the prefix
func (r *RedisRemote) Clear(ctx context.Context) error {
	return r.forEachNode(ctx, func(ctx context.Context, c redis.Cmdable) error {
		return r.scan(ctx, c, func(keys []string) error {
			// one command per key, a cluster node rejects cross-slot DEL
			_, err := c.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, k := range keys {
					pipe.Unlink(ctx, k)
				}
				return nil
			})
			return err
		})
	})
}

// Size ... Number of keys under the prefix. SCAN may report a key twice
// while the keyspace is rehashing, so the count is approximate
func (r *RedisRemote) Size(ctx context.Context) (int64, error) {
	var total int64
	err := r.forEachNode(ctx, func(ctx context.Context, c redis.Cmdable) error {
		var n int64
		err := r.scan(ctx, c, func(keys []string) error {
			n += int64(len(keys))
			return nil
		})
		if err != nil {
			return err
		}
		// ForEachMaster runs nodes concurrently
		atomic.AddInt64(&total, n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Ping ... PING on every master of a cluster, or the single node
func (r *RedisRemote) Ping(ctx context.Context) error {
	return r.forEachNode(ctx, func(ctx context.Context, c redis.Cmdable) error {
		return c.Ping(ctx).Err()
	})
}

func (r *RedisRemote) Close() error {
	return r.client.Close()
}
