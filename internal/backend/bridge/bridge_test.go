package bridge

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/lotsa"
)

// memRemote is an in-process RemoteCache with the same versioning rules
// as the Redis one
type memRemote struct {
	mu      sync.Mutex
	items   map[string]*Item
	version uint64

	// onVersioned runs before every ReplaceWithVersion, outside the lock
	onVersioned func(key string)
	removeErr   error
	removeGate  chan struct{}
	closed      bool
}

func newMemRemote() *memRemote {
	return &memRemote{items: make(map[string]*Item)}
}

func (m *memRemote) store(item *Item, ttl time.Duration) {
	c := item.Clone()
	c.Expire = ttl.Milliseconds()
	if prev, ok := m.items[item.Key]; ok {
		c.Version = prev.Version + 1
	} else {
		m.version++
		c.Version = m.version
	}
	if c.Version > m.version {
		m.version = c.Version
	}
	m.items[item.Key] = c
}

func (m *memRemote) raw(key string) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[key]; ok {
		return it.Clone()
	}
	return nil
}

func (m *memRemote) Get(_ context.Context, key string) (*Item, error) {
	return m.raw(key), nil
}

func (m *memRemote) GetAll(_ context.Context, keys []string) (map[string]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make(map[string]*Item)
	for _, k := range keys {
		if it, ok := m.items[k]; ok {
			res[k] = it.Clone()
		}
	}
	return res, nil
}

func (m *memRemote) Put(_ context.Context, item *Item, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(item, ttl)
	return nil
}

func (m *memRemote) PutIfAbsent(_ context.Context, item *Item, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.Key]; ok {
		return false, nil
	}
	m.store(item, ttl)
	return true, nil
}

func (m *memRemote) Replace(_ context.Context, item *Item, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.Key]; !ok {
		return false, nil
	}
	m.store(item, ttl)
	return true, nil
}

func (m *memRemote) ReplaceWithVersion(_ context.Context, item *Item, version uint64, ttl time.Duration) (VersionResult, error) {
	if m.onVersioned != nil {
		m.onVersioned(item.Key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.items[item.Key]
	if !ok {
		return VersionMissing, nil
	}
	if prev.Version != version {
		return VersionMismatch, nil
	}
	m.store(item, ttl)
	return VersionReplaced, nil
}

func (m *memRemote) RemoveAsync(_ context.Context, key string) *Future {
	f := NewFuture()
	go func() {
		if m.removeGate != nil {
			<-m.removeGate
		}
		if m.removeErr != nil {
			f.Complete(false, m.removeErr)
			return
		}
		m.mu.Lock()
		_, ok := m.items[key]
		delete(m.items, key)
		m.mu.Unlock()
		f.Complete(ok, nil)
	}()
	return f
}

func (m *memRemote) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*Item)
	return nil
}

func (m *memRemote) Size(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.items)), nil
}

func (m *memRemote) Close() error {
	m.closed = true
	return nil
}

func el(key, data string, expire int64) *element.Element {
	return element.New(key, 0, expire, 0, []byte(data))
}

func mockBridge(t *testing.T, opts ...Option) (*Bridge, *memRemote) {
	remote := newMemRemote()
	opts = append([]Option{WithRemoveTimeout(time.Second)}, opts...)
	b := New(remote, opts...)
	t.Cleanup(func() { b.Close() })
	return b, remote
}

func Test_HugeExpire(t *testing.T) {
	ctx := context.Background()
	b, remote := mockBridge(t)

	_, err := b.Put(ctx, element.New("far", 0, math.MaxInt64, 0, []byte("v")))
	require.NoError(t, err)
	require.Positive(t, remote.raw("far").Expire)

	res, err := b.Touch(ctx, "far", 9_223_370_336_854_776_000)
	require.NoError(t, err)
	require.Equal(t, backend.Touched, res)
	require.Positive(t, remote.raw("far").Expire)
}

func Test_Operations(t *testing.T) {
	ctx := context.Background()
	b, remote := mockBridge(t)

	t.Run("test set and get", func(t *testing.T) {
		res, err := b.Put(ctx, element.New("aa", 7, 5000, 0, []byte("bbb")))
		require.NoError(t, err)
		require.Equal(t, backend.Stored, res)

		got, err := b.Get(ctx, "aa")
		require.NoError(t, err)
		require.Equal(t, []byte("bbb"), got.Data())
		require.Equal(t, uint32(7), got.Flags())
		require.Equal(t, int64(5000), got.Expire())
		require.Equal(t, remote.raw("aa").Version, got.CasUnique())
	})

	t.Run("test miss", func(t *testing.T) {
		got, err := b.Get(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("test add", func(t *testing.T) {
		res, err := b.PutIfAbsent(ctx, el("aa", "x", 0))
		require.NoError(t, err)
		require.Equal(t, backend.Exists, res)

		res, err = b.PutIfAbsent(ctx, el("bb", "x", 0))
		require.NoError(t, err)
		require.Equal(t, backend.Stored, res)
	})

	t.Run("test replace", func(t *testing.T) {
		res, err := b.Replace(ctx, el("nope", "x", 0))
		require.NoError(t, err)
		require.Equal(t, backend.NotStored, res)

		res, err = b.Replace(ctx, el("bb", "y", 0))
		require.NoError(t, err)
		require.Equal(t, backend.Stored, res)
	})

	t.Run("test cas", func(t *testing.T) {
		cur, err := b.Get(ctx, "bb")
		require.NoError(t, err)

		res, err := b.Cas(ctx, el("bb", "z", 0), cur.CasUnique()+100)
		require.NoError(t, err)
		require.Equal(t, backend.Exists, res)

		res, err = b.Cas(ctx, el("bb", "z", 0), cur.CasUnique())
		require.NoError(t, err)
		require.Equal(t, backend.Stored, res)

		next, err := b.Get(ctx, "bb")
		require.NoError(t, err)
		require.Equal(t, cur.CasUnique()+1, next.CasUnique())

		res, err = b.Cas(ctx, el("nope", "z", 0), 1)
		require.NoError(t, err)
		require.Equal(t, backend.NotFound, res)
	})

	t.Run("test remove", func(t *testing.T) {
		res, err := b.Remove(ctx, "bb")
		require.NoError(t, err)
		require.Equal(t, backend.Deleted, res)

		res, err = b.Remove(ctx, "bb")
		require.NoError(t, err)
		require.Equal(t, backend.DeleteNotFound, res)
	})

	t.Run("test stat", func(t *testing.T) {
		stats, err := b.Stat(ctx, "")
		require.NoError(t, err)
		require.Equal(t, "bridge", stats["backend"])
		require.Equal(t, "1", stats["curr_items"])
		require.Equal(t, "none", stats["compression"])
		require.Equal(t, "await", stats["remove_mode"])
		require.Equal(t, "1", stats["cas_badval"])

		stats, err = b.Stat(ctx, "curr_items")
		require.NoError(t, err)
		require.Equal(t, map[string]string{"curr_items": "1"}, stats)
	})

	t.Run("test flush", func(t *testing.T) {
		require.NoError(t, b.FlushAll(ctx, time.Minute))
		got, err := b.Get(ctx, "aa")
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func Test_GetMultiOrder(t *testing.T) {
	ctx := context.Background()
	b, _ := mockBridge(t)

	for _, k := range []string{"c", "a", "b"} {
		_, err := b.Put(ctx, el(k, "v"+k, 0))
		require.NoError(t, err)
	}

	got, err := b.GetMulti(ctx, []string{"b", "x", "a", "c"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "b", got[0].Key())
	require.Equal(t, "a", got[1].Key())
	require.Equal(t, "c", got[2].Key())
}

func Test_Compression(t *testing.T) {
	ctx := context.Background()
	gz, err := NewGzipCompressor(64, 0)
	require.NoError(t, err)
	b, remote := mockBridge(t, WithCompressor(gz))

	big := bytes.Repeat([]byte("abcdef"), 200)
	_, err = b.Put(ctx, element.New("big", 3, 0, 0, big))
	require.NoError(t, err)
	_, err = b.Put(ctx, el("small", "tiny", 0))
	require.NoError(t, err)

	raw := remote.raw("big")
	require.True(t, raw.Compressed)
	require.Less(t, len(raw.Data), len(big))
	require.False(t, remote.raw("small").Compressed)

	got, err := b.Get(ctx, "big")
	require.NoError(t, err)
	require.Equal(t, big, got.Data())
	require.Equal(t, uint32(3), got.Flags())

	t.Run("test touch keeps the stored form", func(t *testing.T) {
		res, err := b.Touch(ctx, "big", 9000)
		require.NoError(t, err)
		require.Equal(t, backend.Touched, res)

		raw := remote.raw("big")
		require.True(t, raw.Compressed)
		require.Equal(t, int64(9000), raw.Expire)

		got, err := b.Get(ctx, "big")
		require.NoError(t, err)
		require.Equal(t, big, got.Data())
	})

	t.Run("test compressed item without compressor", func(t *testing.T) {
		plain := New(remote)
		_, err := plain.Get(ctx, "big")
		require.Error(t, err)
	})
}

func Test_Touch(t *testing.T) {
	ctx := context.Background()
	b, remote := mockBridge(t)

	res, err := b.Touch(ctx, "nope", 100)
	require.NoError(t, err)
	require.Equal(t, backend.TouchNotFound, res)

	_, err = b.Put(ctx, el("k", "v", 0))
	require.NoError(t, err)
	before := remote.raw("k").Version

	res, err = b.Touch(ctx, "k", 2500)
	require.NoError(t, err)
	require.Equal(t, backend.Touched, res)

	after := remote.raw("k")
	require.Equal(t, int64(2500), after.Expire)
	require.Equal(t, before+1, after.Version)
	require.Equal(t, []byte("v"), after.Data)
}

func Test_IncrDecr(t *testing.T) {
	ctx := context.Background()
	b, remote := mockBridge(t)

	_, found, err := b.IncrDecr(ctx, "n", 1)
	require.NoError(t, err)
	require.False(t, found)

	_, err = b.Put(ctx, el("n", "10", 4000))
	require.NoError(t, err)

	v, found, err := b.IncrDecr(ctx, "n", 5)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(15), v)

	v, _, err = b.IncrDecr(ctx, "n", -100)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
	require.Equal(t, int64(4000), remote.raw("n").Expire)

	_, err = b.Put(ctx, el("s", "abc", 0))
	require.NoError(t, err)
	_, _, err = b.IncrDecr(ctx, "s", 1)
	require.ErrorIs(t, err, common.ErrNonNumeric)

	t.Run("test retry after conflict", func(t *testing.T) {
		_, err := b.Put(ctx, el("r", "1", 0))
		require.NoError(t, err)

		once := sync.Once{}
		remote.onVersioned = func(key string) {
			once.Do(func() {
				remote.mu.Lock()
				remote.store(&Item{Key: key, Data: []byte("100")}, 0)
				remote.mu.Unlock()
			})
		}
		defer func() { remote.onVersioned = nil }()

		v, found, err := b.IncrDecr(ctx, "r", 1)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, uint64(101), v)
	})

	t.Run("test contention", func(t *testing.T) {
		_, err := b.Put(ctx, el("hot", "1", 0))
		require.NoError(t, err)

		remote.onVersioned = func(key string) {
			remote.mu.Lock()
			remote.store(&Item{Key: key, Data: []byte("1")}, 0)
			remote.mu.Unlock()
		}
		defer func() { remote.onVersioned = nil }()

		_, _, err = b.IncrDecr(ctx, "hot", 1)
		require.ErrorIs(t, err, common.ErrContention)
	})
}

func Test_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	b, _ := mockBridge(t)

	_, err := b.Put(ctx, el("cnt", "0", 0))
	require.NoError(t, err)

	const total = 200
	var failed sync.Map
	lotsa.Ops(total, 4, func(i, _ int) {
		if _, _, err := b.IncrDecr(ctx, "cnt", 1); err != nil {
			failed.Store(i, err)
		}
	})

	lost := 0
	failed.Range(func(_, v any) bool {
		require.ErrorIs(t, v.(error), common.ErrContention)
		lost++
		return true
	})

	got, err := b.Get(ctx, "cnt")
	require.NoError(t, err)
	c, err := got.Counter()
	require.NoError(t, err)
	require.Equal(t, uint64(total-lost), c)
}

func Test_RemoveModes(t *testing.T) {
	ctx := context.Background()

	t.Run("test async reports deleted before confirmation", func(t *testing.T) {
		b, remote := mockBridge(t, WithRemoveTimeout(0))
		remote.removeGate = make(chan struct{})

		_, err := b.Put(ctx, el("k", "v", 0))
		require.NoError(t, err)

		res, err := b.Remove(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, backend.Deleted, res)
		require.NotNil(t, remote.raw("k"))

		close(remote.removeGate)
		require.Eventually(t, func() bool { return remote.raw("k") == nil }, time.Second, 5*time.Millisecond)
	})

	t.Run("test async failure is counted", func(t *testing.T) {
		b, remote := mockBridge(t, WithRemoveTimeout(0))
		remote.removeErr = errors.New("boom")

		res, err := b.Remove(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, backend.Deleted, res)
		require.Eventually(t, func() bool { return b.lateRemoveErrors.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("test awaited failure is reported", func(t *testing.T) {
		b, remote := mockBridge(t)
		remote.removeErr = errors.New("boom")

		_, err := b.Remove(ctx, "k")
		require.Error(t, err)
	})

	t.Run("test awaited timeout", func(t *testing.T) {
		b, remote := mockBridge(t, WithRemoveTimeout(20*time.Millisecond))
		remote.removeGate = make(chan struct{})
		defer close(remote.removeGate)

		_, err := b.Remove(ctx, "k")
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func Test_Close(t *testing.T) {
	remote := newMemRemote()
	b := New(remote)
	require.NoError(t, b.Close())
	require.True(t, remote.closed)
}
