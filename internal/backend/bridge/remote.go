package bridge

import (
	"context"
	"time"
)

// VersionResult ... Outcome of ReplaceWithVersion
type VersionResult uint8

const (
	VersionReplaced VersionResult = iota
	VersionMismatch
	VersionMissing
)

// RemoteCache ... Client of the remote key/value cluster.
//
// A ttl of 0 stores without expiry. Every write stores a version strictly
// above the previous one for that key; a fresh key gets a fresh version
// (the Redis remote derives it from the server clock). Items passed in are
// not retained.
type RemoteCache interface {
	// Get returns nil, nil on a miss. Expire holds the remaining TTL in ms
	Get(ctx context.Context, key string) (*Item, error)
	// GetAll returns only the present keys
	GetAll(ctx context.Context, keys []string) (map[string]*Item, error)
	Put(ctx context.Context, item *Item, ttl time.Duration) error
	PutIfAbsent(ctx context.Context, item *Item, ttl time.Duration) (bool, error)
	// Replace overwrites a present key without looking at its version
	Replace(ctx context.Context, item *Item, ttl time.Duration) (bool, error)
	ReplaceWithVersion(ctx context.Context, item *Item, version uint64, ttl time.Duration) (VersionResult, error)
	// RemoveAsync starts the removal and returns without waiting for it
	RemoveAsync(ctx context.Context, key string) *Future
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
	Close() error
}

// Future ... Handle on an asynchronous removal
type Future struct {
	done    chan struct{}
	existed bool
	err     error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete ... Resolves the future, must be called exactly once
func (f *Future) Complete(existed bool, err error) {
	f.existed = existed
	f.err = err
	close(f.done)
}

// Done ... Closed once the removal finished
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait ... Blocks until the removal finished or ctx ends. existed reports
// whether the key was present when removed
func (f *Future) Wait(ctx context.Context) (existed bool, err error) {
	select {
	case <-f.done:
		return f.existed, f.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
