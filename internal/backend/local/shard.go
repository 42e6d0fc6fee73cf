package local

import (
	"sync"

	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/google/btree"
)

type entry struct {
	el       *element.Element
	deadline int64 // unix ms, 0 never expires
}

func (e *entry) expired(now int64) bool {
	return e.deadline != 0 && e.deadline <= now
}

// view ... The element as handed to callers, expire set to the remaining TTL
func (e *entry) view(now int64) *element.Element {
	if e.deadline == 0 {
		return e.el.WithExpire(0)
	}
	return e.el.WithExpire(e.deadline - now)
}

// deadlineItem orders the expiry index by time, then key
type deadlineItem struct {
	at  int64
	key string
}

// Less returns true if a < b.
func (a deadlineItem) Less(b btree.Item) bool {
	o := b.(deadlineItem)
	if a.at != o.at {
		return a.at < o.at
	}
	return a.key < o.key
}

type shard struct {
	sync.RWMutex
	items     map[string]*entry
	deadlines *btree.BTree
	bytes     int64
}

func newShard() *shard {
	return &shard{
		items:     make(map[string]*entry),
		deadlines: btree.New(32),
	}
}

// peek ... Read path, caller holds at least the read lock. Expired entries are
// reported as missing and left for the writer or the sweeper
func (s *shard) peek(key string, now int64) *entry {
	e, ok := s.items[key]
	if !ok || e.expired(now) {
		return nil
	}
	return e
}

// live ... Write path, caller holds the lock. Expired entries are dropped
func (s *shard) live(key string, now int64) (*entry, bool) {
	e, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		s.drop(key, e)
		return nil, true
	}
	return e, false
}

func (s *shard) set(key string, e *entry) {
	if prev, ok := s.items[key]; ok {
		s.unindex(key, prev)
	}
	s.items[key] = e
	s.bytes += int64(e.el.Size())
	if e.deadline != 0 {
		s.deadlines.ReplaceOrInsert(deadlineItem{at: e.deadline, key: key})
	}
}

func (s *shard) drop(key string, e *entry) {
	s.unindex(key, e)
	delete(s.items, key)
}

func (s *shard) unindex(key string, e *entry) {
	s.bytes -= int64(e.el.Size())
	if e.deadline != 0 {
		s.deadlines.Delete(deadlineItem{at: e.deadline, key: key})
	}
}

// expireKeys ... Removes every entry whose deadline passed, returns the count
func (s *shard) expireKeys(now int64) int {
	s.Lock()
	defer s.Unlock()

	var due []deadlineItem
	s.deadlines.AscendLessThan(deadlineItem{at: now + 1}, func(i btree.Item) bool {
		due = append(due, i.(deadlineItem))
		return true
	})

	for _, d := range due {
		if e, ok := s.items[d.key]; ok && e.deadline == d.at {
			s.drop(d.key, e)
		} else {
			s.deadlines.Delete(d)
		}
	}

	return len(due)
}

func (s *shard) reset() {
	s.Lock()
	defer s.Unlock()
	s.items = make(map[string]*entry)
	s.deadlines.Clear(false)
	s.bytes = 0
}

func (s *shard) count() (int, int64) {
	s.RLock()
	defer s.RUnlock()
	return len(s.items), s.bytes
}
