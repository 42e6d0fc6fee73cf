// Package bridge runs the cache protocol against a remote key/value cluster.
//
// Elements are converted to Items (and back) with fresh copies of the payload,
// the Compressor is applied once per item per direction, and expire values are
// forwarded as millisecond TTLs.
//
// Replace is the remote's plain overwrite-if-present. It does not check the
// version that was read before, so two clients replacing the same key can
// lose an update; Cas is the protected path.
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"go.uber.org/zap"
)

// maxCasAttempts bounds the read-modify-write loop of IncrDecr
const maxCasAttempts = 16

var _ backend.Backend = (*Bridge)(nil)

type Bridge struct {
	remote        RemoteCache
	compressor    Compressor
	removeTimeout time.Duration

	getHits, getMisses atomic.Uint64
	casBadval          atomic.Uint64
	lateRemoveErrors   atomic.Uint64
}

type Option func(*Bridge)

func WithCompressor(c Compressor) Option {
	return func(b *Bridge) {
		if c != nil {
			b.compressor = c
		}
	}
}

// WithRemoveTimeout ... How long Remove waits for the remote to confirm.
// 0 returns Deleted right after issuing the removal
func WithRemoveTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.removeTimeout = d
	}
}

func New(remote RemoteCache, opts ...Option) *Bridge {
	b := &Bridge{
		remote:     remote,
		compressor: NopCompressor{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) fetch(ctx context.Context, item *Item) (*element.Element, error) {
	if err := b.compressor.AfterGet(item); err != nil {
		return nil, err
	}
	return toElement(item), nil
}

func (b *Bridge) outgoing(e *element.Element) (*Item, error) {
	item := toItem(e)
	if err := b.compressor.BeforePut(item); err != nil {
		return nil, fmt.Errorf("compress %q: %w", e.Key(), err)
	}
	return item, nil
}

func (b *Bridge) Get(ctx context.Context, key string) (*element.Element, error) {
	item, err := b.remote.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("remote get %q: %w", key, err)
	}
	if item == nil {
		b.getMisses.Add(1)
		return nil, nil
	}
	b.getHits.Add(1)
	return b.fetch(ctx, item)
}

func (b *Bridge) GetMulti(ctx context.Context, keys []string) ([]*element.Element, error) {
	items, err := b.remote.GetAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("remote get all: %w", err)
	}

	res := make([]*element.Element, 0, len(items))
	for _, key := range keys {
		item, ok := items[key]
		if !ok {
			b.getMisses.Add(1)
			continue
		}
		b.getHits.Add(1)
		e, err := b.fetch(ctx, item.Clone())
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func (b *Bridge) Put(ctx context.Context, e *element.Element) (backend.StoreResult, error) {
	item, err := b.outgoing(e)
	if err != nil {
		return backend.NotStored, err
	}
	if err := b.remote.Put(ctx, item, backend.TTL(e.Expire())); err != nil {
		return backend.NotStored, fmt.Errorf("remote put %q: %w", e.Key(), err)
	}
	return backend.Stored, nil
}

func (b *Bridge) PutIfAbsent(ctx context.Context, e *element.Element) (backend.StoreResult, error) {
	item, err := b.outgoing(e)
	if err != nil {
		return backend.NotStored, err
	}
	ok, err := b.remote.PutIfAbsent(ctx, item, backend.TTL(e.Expire()))
	if err != nil {
		return backend.NotStored, fmt.Errorf("remote put if absent %q: %w", e.Key(), err)
	}
	if !ok {
		return backend.Exists, nil
	}
	return backend.Stored, nil
}

// Replace ... Plain replace, see the package doc for the lost-update caveat
func (b *Bridge) Replace(ctx context.Context, e *element.Element) (backend.StoreResult, error) {
	item, err := b.outgoing(e)
	if err != nil {
		return backend.NotStored, err
	}
	ok, err := b.remote.Replace(ctx, item, backend.TTL(e.Expire()))
	if err != nil {
		return backend.NotStored, fmt.Errorf("remote replace %q: %w", e.Key(), err)
	}
	if !ok {
		return backend.NotStored, nil
	}
	return backend.Stored, nil
}

func (b *Bridge) Cas(ctx context.Context, e *element.Element, version uint64) (backend.StoreResult, error) {
	item, err := b.outgoing(e)
	if err != nil {
		return backend.NotStored, err
	}
	res, err := b.remote.ReplaceWithVersion(ctx, item, version, backend.TTL(e.Expire()))
	if err != nil {
		return backend.NotStored, fmt.Errorf("remote cas %q: %w", e.Key(), err)
	}
	switch res {
	case VersionReplaced:
		return backend.Stored, nil
	case VersionMismatch:
		b.casBadval.Add(1)
		return backend.Exists, nil
	default:
		return backend.NotFound, nil
	}
}

// Remove ... With a zero remove timeout the removal is fire-and-forget:
// Deleted is reported before the remote confirms and a late failure is only logged
func (b *Bridge) Remove(ctx context.Context, key string) (backend.DeleteResult, error) {
	logger := logging.WithContext(ctx)
	f := b.remote.RemoveAsync(context.WithoutCancel(ctx), key)

	if b.removeTimeout <= 0 {
		go func() {
			if _, err := f.Wait(context.Background()); err != nil {
				b.lateRemoveErrors.Add(1)
				logger.Error("Asynchronous remove failed", zap.String("key", key), zap.Error(err))
			}
		}()
		return backend.Deleted, nil
	}

	wctx, cancel := context.WithTimeout(ctx, b.removeTimeout)
	defer cancel()

	existed, err := f.Wait(wctx)
	if err != nil {
		return backend.DeleteNotFound, fmt.Errorf("remote remove %q: %w", key, err)
	}
	if !existed {
		return backend.DeleteNotFound, nil
	}
	return backend.Deleted, nil
}

// Touch ... Rewrites the stored item with a new expire. The item travels in its
// stored (possibly compressed) form, and the remote bumps its version
func (b *Bridge) Touch(ctx context.Context, key string, expire int64) (backend.TouchResult, error) {
	item, err := b.remote.Get(ctx, key)
	if err != nil {
		return backend.TouchNotFound, fmt.Errorf("remote get %q: %w", key, err)
	}
	if item == nil {
		return backend.TouchNotFound, nil
	}

	item.Expire = expire
	res, err := b.remote.ReplaceWithVersion(ctx, item, item.Version, backend.TTL(expire))
	if err != nil {
		return backend.TouchNotFound, fmt.Errorf("remote touch %q: %w", key, err)
	}
	if res != VersionReplaced {
		return backend.TouchNotFound, nil
	}
	return backend.Touched, nil
}

// IncrDecr ... Optimistic read-modify-write on the item version
func (b *Bridge) IncrDecr(ctx context.Context, key string, delta int64) (uint64, bool, error) {
	for attempt := 0; attempt < maxCasAttempts; attempt++ {
		item, err := b.remote.Get(ctx, key)
		if err != nil {
			return 0, false, fmt.Errorf("remote get %q: %w", key, err)
		}
		if item == nil {
			return 0, false, nil
		}

		version := item.Version
		cur, err := b.fetch(ctx, item)
		if err != nil {
			return 0, true, err
		}

		value, next, err := cur.IncrDecr(delta)
		if err != nil {
			return 0, true, err
		}

		out, err := b.outgoing(next)
		if err != nil {
			return 0, true, err
		}

		res, err := b.remote.ReplaceWithVersion(ctx, out, version, backend.TTL(next.Expire()))
		if err != nil {
			return 0, true, fmt.Errorf("remote incr %q: %w", key, err)
		}

		switch res {
		case VersionReplaced:
			return value, true, nil
		case VersionMissing:
			return 0, false, nil
		}
	}

	return 0, true, common.ErrContention
}

// FlushAll ... Clears the remote namespace now, delay is ignored
func (b *Bridge) FlushAll(ctx context.Context, delay time.Duration) error {
	if delay > 0 {
		logging.WithContext(ctx).Warn("Delayed flush_all is not supported, flushing now",
			zap.Duration("delay", delay))
	}
	if err := b.remote.Clear(ctx); err != nil {
		return fmt.Errorf("remote clear: %w", err)
	}
	return nil
}

func (b *Bridge) Stat(ctx context.Context, filter string) (map[string]string, error) {
	size, err := b.remote.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote size: %w", err)
	}

	removeMode := "async"
	if b.removeTimeout > 0 {
		removeMode = "await"
	}

	stats := map[string]string{
		"backend":            "bridge",
		"curr_items":         strconv.FormatInt(size, 10),
		"get_hits":           strconv.FormatUint(b.getHits.Load(), 10),
		"get_misses":         strconv.FormatUint(b.getMisses.Load(), 10),
		"cas_badval":         strconv.FormatUint(b.casBadval.Load(), 10),
		"late_remove_errors": strconv.FormatUint(b.lateRemoveErrors.Load(), 10),
		"compression":        b.compressor.Name(),
		"remove_mode":        removeMode,
	}

	return backend.Filter(stats, filter), nil
}

// Ping ... Round trip to the remote when it supports one
func (b *Bridge) Ping(ctx context.Context) error {
	return backend.Ping(ctx, b.remote)
}

func (b *Bridge) Close() error {
	return b.remote.Close()
}
