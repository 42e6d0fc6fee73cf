package local

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/interval"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

var _ backend.Backend = (*Store)(nil)

// Store ... In-process backend, keys spread over independently locked shards
type Store struct {
	shards         []*shard
	shardsCount    int
	expireShardSeq int

	expireInterval time.Duration
	expInterv      interval.Interval

	now   func() time.Time
	cas   atomic.Uint64
	stats stats
}

// OptStore is a store options
type OptStore func(*Store) error

func ShardsTotal(shards int) OptStore {
	return func(s *Store) error {
		if shards < 1 {
			return errors.New("shards total must be positive")
		}
		s.shardsCount = shards
		return nil
	}
}

// ExpireInterval ... How often the sweeper visits the next shard, 0 disables it.
// Expired keys are hidden from reads either way
func ExpireInterval(interv time.Duration) OptStore {
	return func(s *Store) error {
		s.expireInterval = interv
		return nil
	}
}

// Clock ... Time source used for TTL bookkeeping
func Clock(now func() time.Time) OptStore {
	return func(s *Store) error {
		s.now = now
		return nil
	}
}

func Open(opts ...OptStore) (*Store, error) {
	s := &Store{
		shardsCount: 256,
		now:         time.Now,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.shards = make([]*shard, s.shardsCount)
	for i := range s.shards {
		s.shards[i] = newShard()
	}

	if s.expireInterval > 0 {
		s.expInterv = interval.SetInterval(func(_ time.Time) {
			n := s.shards[s.expireShardSeq].expireKeys(s.nowMilli())
			s.stats.expired.Add(uint64(n))
			s.expireShardSeq++
			if s.expireShardSeq >= s.shardsCount {
				s.expireShardSeq = 0
			}
		}, s.expireInterval)
	}

	logging.NoContext().Debug("Local store opened",
		zap.Int("shards", s.shardsCount),
		zap.Duration("expire_interval", s.expireInterval),
	)

	return s, nil
}

func (s *Store) shard(key string) *shard {
	h := murmur3.Sum32WithSeed([]byte(key), 0)
	return s.shards[int(h%uint32(s.shardsCount))]
}

func (s *Store) nowMilli() int64 {
	return s.now().UnixMilli()
}

// version ... casUnique for a write over prev, nil prev for a fresh key
func (s *Store) version(prev *entry) uint64 {
	if prev == nil {
		return s.cas.Add(1)
	}
	v := prev.el.CasUnique() + 1
	for {
		cur := s.cas.Load()
		if cur >= v || s.cas.CompareAndSwap(cur, v) {
			return v
		}
	}
}

// Expire ... Sweeps every shard now
func (s *Store) Expire() int {
	now := s.nowMilli()
	total := 0
	for _, sh := range s.shards {
		total += sh.expireKeys(now)
	}
	s.stats.expired.Add(uint64(total))
	return total
}

// Count ... Entries held, including expired ones not yet swept
func (s *Store) Count() int {
	res := 0
	for _, sh := range s.shards {
		n, _ := sh.count()
		res += n
	}
	return res
}

func (s *Store) Close() error {
	s.expInterv.Clear()
	return nil
}
