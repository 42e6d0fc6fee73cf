package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/engine"
	"github.com/denzelpenzel/mcbridge/internal/logging"
	"github.com/denzelpenzel/mcbridge/internal/proto"
	"go.uber.org/zap"
)

// ListenConst is a constructor function for listener implementations
type ListenConst func() (Listener, error)

// Listener is a type to accept and configure new connections
type Listener interface {
	Accept() (net.Conn, error)
	Configure(net.Conn) (net.Conn, error)
	GetAddr() string
	Close() error
}

type tcpListener struct {
	listener  net.Listener
	keepAlive time.Duration
}

func (l *tcpListener) Accept() (net.Conn, error) {
	return l.listener.Accept()
}

func (l *tcpListener) Configure(conn net.Conn) (net.Conn, error) {
	tcpRemote, ok := conn.(*net.TCPConn)
	if !ok {
		return conn, nil
	}

	if err := tcpRemote.SetKeepAlive(true); err != nil {
		return conn, err
	}

	if err := tcpRemote.SetKeepAlivePeriod(l.keepAlive); err != nil {
		return conn, err
	}

	return conn, nil
}

// GetAddr ... Bound address, with the real port when listening on :0
func (l *tcpListener) GetAddr() string {
	return l.listener.Addr().String()
}

func (l *tcpListener) Close() error {
	return l.listener.Close()
}

func TCPListener(addr net.Addr, keepAlive time.Duration) ListenConst {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return func() (Listener, error) {
		listener, err := net.Listen("tcp", addr.String())
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		return &tcpListener{
			listener:  listener,
			keepAlive: keepAlive,
		}, nil
	}
}

// connSet tracks accepted connections until their serve goroutine returns
type connSet struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func (cs *connSet) add(c net.Conn) {
	cs.mu.Lock()
	cs.conns[c] = struct{}{}
	cs.mu.Unlock()
	cs.wg.Add(1)
}

func (cs *connSet) done(c net.Conn) {
	cs.mu.Lock()
	delete(cs.conns, c)
	cs.mu.Unlock()
	cs.wg.Done()
}

// drain closes every tracked connection and waits for the goroutines serving
// them, including the commands they are dispatching
func (cs *connSet) drain() {
	cs.mu.Lock()
	for c := range cs.conns {
		_ = c.Close()
	}
	cs.mu.Unlock()
	cs.wg.Wait()
}

// ListenAndServe ... Accepts connections until ctx is done. ready, when not
// nil, receives the bound address once the listener is up. It returns only
// after every connection is closed and its last command has completed
func ListenAndServe(ctx context.Context, l ListenConst, e *engine.Engine, ps []proto.Components, ready chan<- string) error {
	logger := logging.WithContext(ctx)

	listener, err := l()
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info("Server successfully running", zap.String("addr", listener.GetAddr()))
	if ready != nil {
		ready <- listener.GetAddr()
	}

	cs := &connSet{conns: make(map[net.Conn]struct{})}

	for {
		remote, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				e.CloseAll()
				cs.drain()
				return nil
			}
			logger.Error("Failed to accept connection from remote", zap.Error(err))
			continue
		}

		remote, err = listener.Configure(remote)
		if err != nil {
			logger.Error("Failed to configure connection after accept", zap.Error(err))
			_ = remote.Close()
			continue
		}

		cs.add(remote)
		go func() {
			defer cs.done(remote)
			serve(ctx, remote, e, ps)
		}()
	}
}

func serve(ctx context.Context, remote net.Conn, e *engine.Engine, ps []proto.Components) {
	if limit := e.IdleLimit(); limit > 0 {
		if err := remote.SetReadDeadline(time.Now().Add(limit)); err != nil {
			shutdown(ctx, []io.Closer{remote}, err)
			return
		}
	}

	remoteReader := bufio.NewReader(remote)
	remoteWriter := bufio.NewWriter(remote)

	var reqParser proto.RequestParser
	var responder proto.Responder
	var matched bool

	peeker := proto.Peeker(remoteReader)

	for _, p := range ps {
		match, err := p.NewDisambiguator(peeker).CanParse()
		if err != nil {
			shutdown(ctx, []io.Closer{remote}, err)
			return
		}

		if match {
			reqParser = p.NewRequestParser(remoteReader)
			responder = p.NewResponder(remoteWriter)
			matched = true
			break
		}
	}

	if !matched {
		p := ps[len(ps)-1]
		reqParser = p.NewRequestParser(remoteReader)
		responder = p.NewResponder(remoteWriter)
	}

	NewServer([]io.Closer{remote}, reqParser, responder, e).Loop(ctx)
}
