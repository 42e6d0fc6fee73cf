// Package backend defines the contract every storage engine implements.
//
// Misses are reported by absence, never as errors. Errors returned by a
// Backend mean the call itself failed (bad payload, unreachable remote) and
// are propagated to the client unchanged.
package backend

import (
	"context"
	"math"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/element"
)

// StoreResult ... Outcome of a mutating call
type StoreResult uint8

const (
	Stored StoreResult = iota
	NotStored
	Exists
	NotFound
)

func (r StoreResult) String() string {
	switch r {
	case Stored:
		return "stored"
	case NotStored:
		return "not_stored"
	case Exists:
		return "exists"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// DeleteResult ... Outcome of Remove
type DeleteResult uint8

const (
	Deleted DeleteResult = iota
	DeleteNotFound
)

func (r DeleteResult) String() string {
	if r == Deleted {
		return "deleted"
	}
	return "not_found"
}

// TouchResult ... Outcome of Touch
type TouchResult uint8

const (
	Touched TouchResult = iota
	TouchNotFound
)

func (r TouchResult) String() string {
	if r == Touched {
		return "touched"
	}
	return "not_found"
}

// Backend ... Storage engine consumed by the command engine.
//
// Expire values are TTLs in milliseconds relative to the call, <= 0 means the
// entry never expires. Implementations assign the stored casUnique: previous+1
// for an existing key, otherwise a value above every version they issued.
type Backend interface {
	// Get returns nil, nil on a miss
	Get(ctx context.Context, key string) (*element.Element, error)
	// GetMulti returns the present subset of keys in request order
	GetMulti(ctx context.Context, keys []string) ([]*element.Element, error)
	Put(ctx context.Context, e *element.Element) (StoreResult, error)
	// PutIfAbsent has exactly one winner per key, losers observe Exists
	PutIfAbsent(ctx context.Context, e *element.Element) (StoreResult, error)
	// Replace stores only over a present key, NotStored otherwise
	Replace(ctx context.Context, e *element.Element) (StoreResult, error)
	// Cas stores only when version matches the current casUnique
	Cas(ctx context.Context, e *element.Element, version uint64) (StoreResult, error)
	Remove(ctx context.Context, key string) (DeleteResult, error)
	// Touch changes only the expire of a present key
	Touch(ctx context.Context, key string, expire int64) (TouchResult, error)
	// IncrDecr adds a signed delta, found is false on a miss
	IncrDecr(ctx context.Context, key string, delta int64) (value uint64, found bool, err error)
	// FlushAll invalidates every entry immediately, delay is not honoured
	FlushAll(ctx context.Context, delay time.Duration) error
	// Stat returns the whole snapshot for an empty filter, else the single entry
	Stat(ctx context.Context, filter string) (map[string]string, error)
	Close() error
}

// Pinger ... Optional health check of a backend or a remote. It must be cheap,
// Stat may walk the whole keyspace
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping ... Checks b when it implements Pinger, anything else counts as healthy
func Ping(ctx context.Context, b interface{}) error {
	if p, ok := b.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Filter ... Helper for Stat implementations
func Filter(stats map[string]string, filter string) map[string]string {
	if filter == "" {
		return stats
	}
	out := make(map[string]string, 1)
	if v, ok := stats[filter]; ok {
		out[filter] = v
	}
	return out
}

// Deadline ... Absolute expiry in unix milliseconds for a TTL taken at now, 0 for never.
// Saturates at math.MaxInt64
func Deadline(now time.Time, expire int64) int64 {
	if expire <= 0 {
		return 0
	}
	ms := now.UnixMilli()
	if expire > math.MaxInt64-ms {
		return math.MaxInt64
	}
	return ms + expire
}

// maxTTL is the longest expire, in ms, a time.Duration can carry
const maxTTL = int64(math.MaxInt64 / time.Millisecond)

// TTL ... Native duration for an expire value, 0 for never. Saturates at the
// largest duration
func TTL(expire int64) time.Duration {
	if expire <= 0 {
		return 0
	}
	if expire > maxTTL {
		return time.Duration(maxTTL) * time.Millisecond
	}
	return time.Duration(expire) * time.Millisecond
}
