package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/admin"
	"github.com/denzelpenzel/mcbridge/internal/backend"
	"github.com/denzelpenzel/mcbridge/internal/backend/breaker"
	"github.com/denzelpenzel/mcbridge/internal/backend/bridge"
	"github.com/denzelpenzel/mcbridge/internal/backend/local"
	"github.com/denzelpenzel/mcbridge/internal/config"
	"github.com/denzelpenzel/mcbridge/internal/engine"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/denzelpenzel/mcbridge/internal/metrics"
	"github.com/denzelpenzel/mcbridge/internal/proto"
	"github.com/denzelpenzel/mcbridge/internal/proto/textprot"
	"github.com/denzelpenzel/mcbridge/internal/server"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Application ... mcbridge app struct
type Application struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config

	l       server.ListenConst
	local   *local.Store
	backend backend.Backend
	metrics *metrics.Metrics
	engine  *engine.Engine
	admin   *admin.Server
	addr    string

	wg sync.WaitGroup
}

// NewMcBridgeApp ... Builds the backend, the engine and the listeners. The
// returned func releases everything and must be called once
func NewMcBridgeApp(ctx context.Context, cfg *config.Config) (*Application, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	app := &Application{ctx: ctx, cancel: cancel, cfg: cfg, metrics: metrics.New()}

	b, err := app.newBackend()
	if err != nil {
		cancel()
		return nil, nil, err
	}
	app.backend = b

	app.engine = engine.New(b,
		engine.IdleLimit(cfg.ServerConfig.IdleLimit),
		engine.Verbose(cfg.ServerConfig.Verbose),
		engine.WithMetrics(app.metrics),
	)
	app.l = server.TCPListener(cfg.ServerConfig.TCPAddr, cfg.ServerConfig.KeepAlive)

	if addr := cfg.AdminConfig.Addr; addr != "" {
		app.admin, err = admin.Listen(addr, admin.NewRouter(app.engine, app.metrics))
		if err != nil {
			cancel()
			_ = b.Close()
			return nil, nil, fmt.Errorf("admin listen %s: %w", addr, err)
		}
	}

	return app, app.stop, nil
}

func (a *Application) newBackend() (backend.Backend, error) {
	logger := logging.WithContext(a.ctx)

	switch a.cfg.BackendConfig.Kind {
	case config.BackendLocal:
		bc := a.cfg.BackendConfig
		s, err := local.Open(local.ShardsTotal(bc.Shards), local.ExpireInterval(bc.ExpireInterval))
		if err != nil {
			return nil, err
		}
		if bc.Restore != "" {
			n, err := s.RestoreFile(bc.Restore)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("restore %s: %w", bc.Restore, err)
			}
			logger.Info("Restored local store", zap.String("file", bc.Restore), zap.Int("items", n))
		}
		a.local = s
		return s, nil

	case config.BackendRedis:
		rc := a.cfg.RedisConfig
		remote, err := bridge.NewRedisRemote(a.ctx, bridge.RedisConfig{
			Addrs:       rc.Addrs,
			Password:    rc.Password,
			DB:          rc.DB,
			Prefix:      rc.Prefix,
			PoolSize:    rc.PoolSize,
			DialTimeout: rc.DialTimeout,
		})
		if err != nil {
			return nil, err
		}

		opts := []bridge.Option{bridge.WithRemoveTimeout(rc.RemoveTimeout)}
		if cc := a.cfg.CompressionConfig; cc.Enabled {
			gz, err := bridge.NewGzipCompressor(cc.Threshold, cc.Level)
			if err != nil {
				_ = remote.Close()
				return nil, err
			}
			opts = append(opts, bridge.WithCompressor(gz))
		}
		var b backend.Backend = bridge.New(remote, opts...)
		logger.Info("Bridging to redis", zap.Strings("addrs", rc.Addrs),
			zap.Duration("remove_timeout", rc.RemoveTimeout))

		if bc := a.cfg.BreakerConfig; bc.Enabled {
			br := breaker.New(breaker.Config{
				ErrorPct:       bc.ErrorPct,
				WindowDuration: bc.Window,
				OpenDuration:   bc.OpenFor,
				HalfOpenProbes: bc.Probes,
				MinRequests:    bc.MinRequests,
			}, breaker.OnStateChange(func(s breaker.State) {
				a.metrics.SetBreakerState(int(s))
				logger.Warn("Backend breaker changed state", zap.Stringer("state", s))
			}))
			b = breaker.NewGuard(b, br)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", a.cfg.BackendConfig.Kind)
	}
}

// Start ... Starts the application
func (a *Application) Start() error {
	logger := logging.WithContext(a.ctx)
	ready := make(chan string, 1)
	errc := make(chan error, 1)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := server.ListenAndServe(a.ctx, a.l, a.engine,
			[]proto.Components{textprot.NewComponents(a.cfg.ServerConfig.MaxItemSize)}, ready)
		if err != nil {
			errc <- err
		}
	}()

	select {
	case a.addr = <-ready:
	case err := <-errc:
		return err
	}

	if a.admin != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.admin.Serve(a.ctx)
		}()
	}

	logger.Info("mcbridge started",
		zap.String("backend", a.cfg.BackendConfig.Kind),
		zap.String("env", string(a.cfg.Environment)))
	return nil
}

// Addr ... Bound cache address, empty before Start
func (a *Application) Addr() string {
	return a.addr
}

// AdminAddr ... Bound admin address, empty when disabled
func (a *Application) AdminAddr() string {
	if a.admin == nil {
		return ""
	}
	return a.admin.Addr()
}

func (a *Application) stop() {
	logger := logging.WithContext(a.ctx)
	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.admin != nil {
		errs = append(errs, a.admin.Shutdown(ctx))
	}
	a.engine.CloseAll()
	a.wg.Wait()

	if name := a.cfg.BackendConfig.Backup; name != "" && a.local != nil {
		n, err := a.local.BackupFile(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("backup %s: %w", name, err))
		} else {
			logger.Info("Wrote local store backup", zap.String("file", name), zap.Int("items", n))
		}
	}
	errs = append(errs, a.backend.Close())

	if err := errors.Join(errs...); err != nil {
		logger.Error("Unclean shutdown", zap.Error(err))
	}
}

// ListenForShutdown ... Handles and listens for shutdown
func (a *Application) ListenForShutdown(stop func()) {
	done := <-a.End() // Blocks until an OS signal is received

	logging.WithContext(a.ctx).
		Info("Received shutdown OS signal", zap.String("signal", done.String()))
	stop()
}

// End ... Returns a channel that will receive an OS signal
func (a *Application) End() <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
