// Package engine turns parsed commands into backend calls.
//
// One Engine is shared by every connection of a server. It keeps no per-key
// state; atomicity of concurrent writes to the same key is the backend's job.
package engine

import (
	"context"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/element"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/denzelpenzel/mcbridge/internal/metrics"
	"github.com/denzelpenzel/mcbridge/internal/op"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Engine struct {
	backend   backend.Backend
	version   string
	idleLimit time.Duration
	verbose   bool
	started   time.Time
	metrics   *metrics.Metrics

	currConns  atomic.Int64
	totalConns atomic.Uint64

	mu       sync.Mutex
	conns    map[string]io.Closer
	draining bool
}

type Option func(*Engine)

func Version(v string) Option {
	return func(e *Engine) {
		e.version = v
	}
}

// IdleLimit ... How long the transport keeps a silent connection open, 0 disables
func IdleLimit(d time.Duration) Option {
	return func(e *Engine) {
		e.idleLimit = d
	}
}

// Verbose ... Logs every command at info level before it runs
func Verbose(v bool) Option {
	return func(e *Engine) {
		e.verbose = v
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: b,
		version: common.VersionString,
		started: time.Now(),
		conns:   make(map[string]io.Closer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Backend() backend.Backend { return e.backend }

func (e *Engine) IdleLimit() time.Duration { return e.idleLimit }

func (e *Engine) CurrConns() int64 { return e.currConns.Load() }

func (e *Engine) TotalConns() uint64 { return e.totalConns.Load() }

// Open ... Registers a new connection and returns its id. After CloseAll the
// connection is closed right away, its loop then ends on the first read
func (e *Engine) Open(conn io.Closer) string {
	id := uuid.NewString()

	e.mu.Lock()
	e.conns[id] = conn
	draining := e.draining
	e.mu.Unlock()

	if draining {
		_ = conn.Close()
	}

	e.currConns.Add(1)
	e.totalConns.Add(1)
	e.metrics.ConnOpened()
	return id
}

// Closed ... Deregisters a connection. In-flight commands of that
// connection are not cancelled
func (e *Engine) Closed(id string) {
	e.mu.Lock()
	_, ok := e.conns[id]
	delete(e.conns, id)
	e.mu.Unlock()

	if !ok {
		return
	}
	e.currConns.Add(-1)
	e.metrics.ConnClosed()
}

// CloseAll ... Closes every registered connection and every one opened
// later, used on shutdown
func (e *Engine) CloseAll() {
	e.mu.Lock()
	e.draining = true
	conns := make([]io.Closer, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Dispatch ... Runs one command against the backend. Backend errors are
// returned unchanged
func (e *Engine) Dispatch(ctx context.Context, cmd *Command) (*Response, error) {
	logger := logging.WithContext(ctx)

	fields := []zap.Field{zap.Stringer("op", cmd.Op), zap.Strings("keys", cmd.Keys)}
	if cmd.Element != nil {
		fields = append(fields, zap.String("element", cmd.Element.Key()))
	}
	if e.verbose {
		logger.Info("Dispatching command", fields...)
	} else {
		logger.Debug("Dispatching command", fields...)
	}

	start := time.Now()
	res, err := e.dispatch(ctx, cmd)

	outcome := "error"
	if err == nil {
		outcome = res.Outcome()
	}
	e.metrics.ObserveCommand(cmd.Op.String(), outcome, time.Since(start))

	return res, err
}

func (e *Engine) dispatch(ctx context.Context, cmd *Command) (*Response, error) {
	b := e.backend
	res := &Response{Cmd: cmd}

	switch cmd.Op {
	case op.Get, op.Gets:
		values, err := b.GetMulti(ctx, cmd.Keys)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Values = KindValues, values

	case op.Set:
		r, err := b.Put(ctx, cmd.Element)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Store = KindStore, r

	case op.Add:
		r, err := b.PutIfAbsent(ctx, cmd.Element)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Store = KindStore, r

	case op.Replace:
		r, err := b.Replace(ctx, cmd.Element)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Store = KindStore, r

	case op.Cas:
		r, err := b.Cas(ctx, cmd.Element, cmd.CasUnique)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Store = KindStore, r

	case op.Append, op.Prepend:
		r, err := e.merge(ctx, cmd)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Store = KindStore, r

	case op.Incr, op.Decr:
		delta := cmd.Delta
		if cmd.Op == op.Decr {
			delta = -delta
		}
		v, found, err := b.IncrDecr(ctx, cmd.Key(), delta)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Value, res.Found = KindIncrDecr, v, found

	case op.Delete:
		r, err := b.Remove(ctx, cmd.Key())
		if err != nil {
			return nil, err
		}
		res.Kind, res.Delete = KindDelete, r

	case op.Touch:
		r, err := b.Touch(ctx, cmd.Key(), cmd.Expire)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Touch = KindTouch, r

	case op.FlushAll:
		if err := b.FlushAll(ctx, cmd.Delay); err != nil {
			return nil, err
		}
		res.Kind = KindAck

	case op.Stats:
		stats, err := e.Stats(ctx, cmd.Filter)
		if err != nil {
			return nil, err
		}
		res.Kind, res.Stats = KindStats, stats

	case op.Version:
		res.Kind, res.Version = KindVersion, e.version

	case op.Verbosity:
		res.Kind = KindAck

	case op.Quit:
		res.Kind = KindQuit

	case op.None:
		return nil, common.ErrUnknownCmd

	default:
		return nil, common.ErrUnknownCmd
	}

	return res, nil
}

// merge appends or prepends against the version it read, so a concurrent
// write in between makes it fail with NotStored instead of losing that write
func (e *Engine) merge(ctx context.Context, cmd *Command) (backend.StoreResult, error) {
	cur, err := e.backend.Get(ctx, cmd.Element.Key())
	if err != nil {
		return backend.NotStored, err
	}
	if cur == nil {
		return backend.NotStored, nil
	}

	var merged *element.Element
	if cmd.Op == op.Append {
		merged = cur.Append(cmd.Element)
	} else {
		merged = cur.Prepend(cmd.Element)
	}

	r, err := e.backend.Cas(ctx, merged, cur.CasUnique())
	if err != nil {
		return backend.NotStored, err
	}
	if r != backend.Stored {
		return backend.NotStored, nil
	}
	return backend.Stored, nil
}

func (e *Engine) serverStats() map[string]string {
	now := time.Now()
	return map[string]string{
		"pid":               strconv.Itoa(os.Getpid()),
		"uptime":            strconv.FormatInt(int64(now.Sub(e.started).Seconds()), 10),
		"time":              strconv.FormatInt(now.Unix(), 10),
		"version":           e.version,
		"curr_connections":  strconv.FormatInt(e.currConns.Load(), 10),
		"total_connections": strconv.FormatUint(e.totalConns.Load(), 10),
	}
}

// Stats ... Server counters merged with the backend snapshot. A non-empty
// filter keeps that single entry
func (e *Engine) Stats(ctx context.Context, filter string) (map[string]string, error) {
	stats := e.serverStats()
	if v, ok := stats[filter]; ok {
		return map[string]string{filter: v}, nil
	}

	bs, err := e.backend.Stat(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		return bs, nil
	}

	for k, v := range bs {
		if _, ok := stats[k]; !ok {
			stats[k] = v
		}
	}
	return stats, nil
}
