package local

import (
	"context"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"go.uber.org/zap"
)

func (s *Store) Get(_ context.Context, key string) (*element.Element, error) {
	s.stats.cmdGet.Add(1)
	now := s.nowMilli()
	sh := s.shard(key)

	sh.RLock()
	e := sh.peek(key, now)
	sh.RUnlock()

	if e == nil {
		s.stats.getMisses.Add(1)
		return nil, nil
	}

	s.stats.getHits.Add(1)
	return e.view(now), nil
}

func (s *Store) GetMulti(ctx context.Context, keys []string) ([]*element.Element, error) {
	res := make([]*element.Element, 0, len(keys))
	for _, key := range keys {
		e, _ := s.Get(ctx, key)
		if e != nil {
			res = append(res, e)
		}
	}
	return res, nil
}

// write ... Runs decide under the shard lock. decide returns the outcome and
// whether el should be stored over prev
func (s *Store) write(e *element.Element, decide func(prev *entry) (backend.StoreResult, bool)) backend.StoreResult {
	s.stats.cmdSet.Add(1)
	now := s.nowMilli()
	key := e.Key()
	sh := s.shard(key)

	sh.Lock()
	defer sh.Unlock()

	prev, expired := sh.live(key, now)
	if expired {
		s.stats.expired.Add(1)
	}

	res, ok := decide(prev)
	if !ok {
		return res
	}

	sh.set(key, &entry{
		el:       e.WithCas(s.version(prev)),
		deadline: backend.Deadline(time.UnixMilli(now), e.Expire()),
	})
	s.stats.totalItems.Add(1)

	return res
}

func (s *Store) Put(_ context.Context, e *element.Element) (backend.StoreResult, error) {
	return s.write(e, func(_ *entry) (backend.StoreResult, bool) {
		return backend.Stored, true
	}), nil
}

func (s *Store) PutIfAbsent(_ context.Context, e *element.Element) (backend.StoreResult, error) {
	return s.write(e, func(prev *entry) (backend.StoreResult, bool) {
		if prev != nil {
			return backend.Exists, false
		}
		return backend.Stored, true
	}), nil
}

func (s *Store) Replace(_ context.Context, e *element.Element) (backend.StoreResult, error) {
	return s.write(e, func(prev *entry) (backend.StoreResult, bool) {
		if prev == nil {
			return backend.NotStored, false
		}
		return backend.Stored, true
	}), nil
}

func (s *Store) Cas(_ context.Context, e *element.Element, version uint64) (backend.StoreResult, error) {
	return s.write(e, func(prev *entry) (backend.StoreResult, bool) {
		if prev == nil {
			s.stats.casMisses.Add(1)
			return backend.NotFound, false
		}
		if prev.el.CasUnique() != version {
			s.stats.casBadval.Add(1)
			return backend.Exists, false
		}
		s.stats.casHits.Add(1)
		return backend.Stored, true
	}), nil
}

func (s *Store) Remove(_ context.Context, key string) (backend.DeleteResult, error) {
	now := s.nowMilli()
	sh := s.shard(key)

	sh.Lock()
	defer sh.Unlock()

	prev, _ := sh.live(key, now)
	if prev == nil {
		s.stats.deleteMisses.Add(1)
		return backend.DeleteNotFound, nil
	}

	sh.drop(key, prev)
	s.stats.deleteHits.Add(1)
	return backend.Deleted, nil
}

func (s *Store) Touch(_ context.Context, key string, expire int64) (backend.TouchResult, error) {
	s.stats.cmdTouch.Add(1)
	now := s.nowMilli()
	sh := s.shard(key)

	sh.Lock()
	defer sh.Unlock()

	prev, _ := sh.live(key, now)
	if prev == nil {
		s.stats.touchMisses.Add(1)
		return backend.TouchNotFound, nil
	}

	sh.set(key, &entry{
		el:       prev.el.WithExpire(expire),
		deadline: backend.Deadline(time.UnixMilli(now), expire),
	})
	s.stats.touchHits.Add(1)
	return backend.Touched, nil
}

// IncrDecr ... The stored deadline is kept, only the payload and version change
func (s *Store) IncrDecr(_ context.Context, key string, delta int64) (uint64, bool, error) {
	now := s.nowMilli()
	sh := s.shard(key)

	hits, misses := &s.stats.incrHits, &s.stats.incrMisses
	if delta < 0 {
		hits, misses = &s.stats.decrHits, &s.stats.decrMisses
	}

	sh.Lock()
	defer sh.Unlock()

	prev, _ := sh.live(key, now)
	if prev == nil {
		misses.Add(1)
		return 0, false, nil
	}

	value, next, err := prev.el.IncrDecr(delta)
	if err != nil {
		return 0, true, err
	}

	sh.set(key, &entry{
		el:       next.WithCas(s.version(prev)),
		deadline: prev.deadline,
	})
	hits.Add(1)

	return value, true, nil
}

// FlushAll ... Drops everything right away, a requested delay is ignored
func (s *Store) FlushAll(ctx context.Context, delay time.Duration) error {
	if delay > 0 {
		logging.WithContext(ctx).Warn("Delayed flush_all is not supported, flushing now",
			zap.Duration("delay", delay))
	}
	for _, sh := range s.shards {
		sh.reset()
	}
	s.stats.flushes.Add(1)
	return nil
}

func (s *Store) Stat(_ context.Context, filter string) (map[string]string, error) {
	return backend.Filter(s.snapshot(), filter), nil
}
