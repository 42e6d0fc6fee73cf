package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/element"
)

var _ backend.Backend = (*Guard)(nil)

// Guard ... Backend decorator that refuses calls with ErrBackendUnavailable
// while its breaker is open
type Guard struct {
	next    backend.Backend
	breaker *Breaker
}

func NewGuard(next backend.Backend, b *Breaker) *Guard {
	return &Guard{next: next, breaker: b}
}

// Breaker ... The breaker driving this guard
func (g *Guard) Breaker() *Breaker {
	return g.breaker
}

// failure tells backend faults apart from answers about the request
func failure(err error) bool {
	if err == nil || common.IsAppError(err) {
		return false
	}
	return !errors.Is(err, common.ErrMalformedElement) && !errors.Is(err, context.Canceled)
}

func (g *Guard) record(err error) {
	if failure(err) {
		g.breaker.RecordFailure()
		return
	}
	g.breaker.RecordSuccess()
}

func guarded[T any](g *Guard, fn func() (T, error)) (T, error) {
	if !g.breaker.Allow() {
		var zero T
		return zero, common.ErrBackendUnavailable
	}
	res, err := fn()
	g.record(err)
	return res, err
}

func (g *Guard) Get(ctx context.Context, key string) (*element.Element, error) {
	return guarded(g, func() (*element.Element, error) { return g.next.Get(ctx, key) })
}

func (g *Guard) GetMulti(ctx context.Context, keys []string) ([]*element.Element, error) {
	return guarded(g, func() ([]*element.Element, error) { return g.next.GetMulti(ctx, keys) })
}

func (g *Guard) Put(ctx context.Context, e *element.Element) (backend.StoreResult, error) {
	return guarded(g, func() (backend.StoreResult, error) { return g.next.Put(ctx, e) })
}

func (g *Guard) PutIfAbsent(ctx context.Context, e *element.Element) (backend.StoreResult, error) {
	return guarded(g, func() (backend.StoreResult, error) { return g.next.PutIfAbsent(ctx, e) })
}

func (g *Guard) Replace(ctx context.Context, e *element.Element) (backend.StoreResult, error) {
	return guarded(g, func() (backend.StoreResult, error) { return g.next.Replace(ctx, e) })
}

func (g *Guard) Cas(ctx context.Context, e *element.Element, version uint64) (backend.StoreResult, error) {
	return guarded(g, func() (backend.StoreResult, error) { return g.next.Cas(ctx, e, version) })
}

func (g *Guard) Remove(ctx context.Context, key string) (backend.DeleteResult, error) {
	return guarded(g, func() (backend.DeleteResult, error) { return g.next.Remove(ctx, key) })
}

func (g *Guard) Touch(ctx context.Context, key string, expire int64) (backend.TouchResult, error) {
	return guarded(g, func() (backend.TouchResult, error) { return g.next.Touch(ctx, key, expire) })
}

func (g *Guard) IncrDecr(ctx context.Context, key string, delta int64) (uint64, bool, error) {
	var found bool
	value, err := guarded(g, func() (uint64, error) {
		v, ok, err := g.next.IncrDecr(ctx, key, delta)
		found = ok
		return v, err
	})
	return value, found, err
}

func (g *Guard) FlushAll(ctx context.Context, delay time.Duration) error {
	_, err := guarded(g, func() (struct{}, error) { return struct{}{}, g.next.FlushAll(ctx, delay) })
	return err
}

// Stat ... While open only the breaker state is reported
func (g *Guard) Stat(ctx context.Context, filter string) (map[string]string, error) {
	state := g.breaker.State()
	if state == StateOpen {
		return backend.Filter(map[string]string{"breaker_state": state.String()}, filter), nil
	}

	stats, err := guarded(g, func() (map[string]string, error) { return g.next.Stat(ctx, "") })
	if err != nil {
		return nil, err
	}
	stats["breaker_state"] = g.breaker.State().String()
	return backend.Filter(stats, filter), nil
}

// Ping ... Fails fast while open. Probes do not count toward the error rate
func (g *Guard) Ping(ctx context.Context) error {
	if g.breaker.State() == StateOpen {
		return common.ErrBackendUnavailable
	}
	return backend.Ping(ctx, g.next)
}

func (g *Guard) Close() error {
	return g.next.Close()
}
