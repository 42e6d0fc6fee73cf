package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/engine"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/denzelpenzel/mcbridge/internal/proto"
	"github.com/denzelpenzel/mcbridge/internal/utils"
	"go.uber.org/zap"
)

type SrvConst func(conns []io.Closer, rp proto.RequestParser, res proto.Responder, e *engine.Engine) Server

type Server interface {
	Loop(ctx context.Context)
}

// deadliner is implemented by net.Conn
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

type DefaultServer struct {
	rp     proto.RequestParser
	res    proto.Responder
	engine *engine.Engine
	conns  []io.Closer
}

func NewServer(conns []io.Closer, rp proto.RequestParser, res proto.Responder, e *engine.Engine) Server {
	return &DefaultServer{
		rp:     rp,
		res:    res,
		engine: e,
		conns:  conns,
	}
}

// Close ... Implements io.Closer for the engine registry
func (s *DefaultServer) Close() error {
	for _, c := range s.conns {
		if c != nil {
			_ = c.Close()
		}
	}
	return nil
}

// idle arms the read deadline of the first connection, if it has one
func (s *DefaultServer) idle() error {
	limit := s.engine.IdleLimit()
	if limit <= 0 || len(s.conns) == 0 {
		return nil
	}
	if d, ok := s.conns[0].(deadliner); ok {
		return d.SetReadDeadline(time.Now().Add(limit))
	}
	return nil
}

func (s *DefaultServer) Loop(ctx context.Context) {
	id := s.engine.Open(s)
	defer s.engine.Closed(id)

	logger := logging.WithContext(ctx).With(zap.String("conn", id))
	ctx = logging.Inject(ctx, logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("recover from runtime panic",
				zap.Any("recover", r),
				zap.String("path", utils.IdentifyPanic()),
			)
			shutdown(ctx, s.conns, fmt.Errorf("runtime panic: %v", r))
		}
	}()

	for {
		if err := s.idle(); err != nil {
			shutdown(ctx, s.conns, err)
			return
		}

		cmd, err := s.rp.Parse()
		if err != nil {
			if common.IsWrongRequest(err) {
				if err := s.res.Error(cmd, err); err != nil {
					shutdown(ctx, s.conns, err)
					return
				}
				continue
			}
			shutdown(ctx, s.conns, err)
			return
		}

		res, err := s.engine.Dispatch(ctx, cmd)
		if err != nil {
			if !common.IsClientFault(err) {
				logger.Warn("Command failed",
					zap.Stringer("op", cmd.Op),
					zap.Strings("keys", cmd.Keys),
					zap.Error(err),
				)
			}
			if err := s.res.Error(cmd, err); err != nil {
				shutdown(ctx, s.conns, err)
				return
			}
			continue
		}

		if res.Kind == engine.KindQuit {
			shutdown(ctx, s.conns, nil)
			return
		}

		if err := s.res.Respond(res); err != nil {
			shutdown(ctx, s.conns, err)
			return
		}
	}
}

func shutdown(ctx context.Context, conns []io.Closer, err error) {
	logger := logging.WithContext(ctx)

	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Closing idle connection")
	default:
		logger.Warn("Error processing request, closing connection", zap.Error(err))
	}

	for _, c := range conns {
		if c != nil {
			_ = c.Close()
		}
	}
}
