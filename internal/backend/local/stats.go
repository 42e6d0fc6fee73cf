package local

import (
	"strconv"
	"sync/atomic"
)

type stats struct {
	cmdGet, cmdSet, cmdTouch atomic.Uint64
	getHits, getMisses       atomic.Uint64
	touchHits, touchMisses   atomic.Uint64
	deleteHits, deleteMisses atomic.Uint64
	incrHits, incrMisses     atomic.Uint64
	decrHits, decrMisses     atomic.Uint64
	casHits, casMisses       atomic.Uint64
	casBadval                atomic.Uint64
	expired, flushes         atomic.Uint64
	totalItems               atomic.Uint64
}

func (s *Store) snapshot() map[string]string {
	var items int
	var size int64
	for _, sh := range s.shards {
		n, b := sh.count()
		items += n
		size += b
	}

	u := func(v *atomic.Uint64) string { return strconv.FormatUint(v.Load(), 10) }

	return map[string]string{
		"backend":       "local",
		"curr_items":    strconv.Itoa(items),
		"total_items":   u(&s.stats.totalItems),
		"bytes":         strconv.FormatInt(size, 10),
		"cmd_get":       u(&s.stats.cmdGet),
		"cmd_set":       u(&s.stats.cmdSet),
		"cmd_touch":     u(&s.stats.cmdTouch),
		"get_hits":      u(&s.stats.getHits),
		"get_misses":    u(&s.stats.getMisses),
		"touch_hits":    u(&s.stats.touchHits),
		"touch_misses":  u(&s.stats.touchMisses),
		"delete_hits":   u(&s.stats.deleteHits),
		"delete_misses": u(&s.stats.deleteMisses),
		"incr_hits":     u(&s.stats.incrHits),
		"incr_misses":   u(&s.stats.incrMisses),
		"decr_hits":     u(&s.stats.decrHits),
		"decr_misses":   u(&s.stats.decrMisses),
		"cas_hits":      u(&s.stats.casHits),
		"cas_misses":    u(&s.stats.casMisses),
		"cas_badval":    u(&s.stats.casBadval),
		"expired":       u(&s.stats.expired),
		"flushes":       u(&s.stats.flushes),
		"shards":        strconv.Itoa(s.shardsCount),
	}
}
