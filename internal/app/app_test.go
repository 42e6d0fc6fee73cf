package app

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/config"
	"github.com/denzelpenzel/mcbridge/internal/utils"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backup string) *config.Config {
	addr, err := utils.GetTCPAddr("127.0.0.1:0")
	require.NoError(t, err)

	return &config.Config{
		Environment: common.Local,
		ServerConfig: &config.ServerConfig{
			Addr:        addr.String(),
			TCPAddr:     addr,
			MaxItemSize: 1024,
		},
		BackendConfig: &config.BackendConfig{
			Kind:           config.BackendLocal,
			Shards:         4,
			ExpireInterval: 10 * time.Millisecond,
			Backup:         backup,
			Restore:        backup,
		},
		RedisConfig:       &config.RedisConfig{},
		CompressionConfig: &config.CompressionConfig{},
		BreakerConfig:     &config.BreakerConfig{},
		AdminConfig:       &config.AdminConfig{Addr: "127.0.0.1:0"},
	}
}

func command(t *testing.T, addr, req string) string {
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, req)
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func Test_Application(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "mcbridge.bak")
	cfg := testConfig(t, "")
	cfg.BackendConfig.Backup = backup

	a, stop, err := NewMcBridgeApp(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start())

	require.Equal(t, "STORED\r\n", command(t, a.Addr(), "set foo 0 0 3\r\nbar\r\n"))

	res, err := http.Get("http://" + a.AdminAddr() + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res.Body.Close()

	stop()

	t.Run("test backup is restored on the next start", func(t *testing.T) {
		a, stop, err := NewMcBridgeApp(context.Background(), testConfig(t, backup))
		require.NoError(t, err)
		require.NoError(t, a.Start())
		defer stop()

		require.Equal(t, "VALUE foo 0 3\r\n", command(t, a.Addr(), "get foo\r\n"))
	})
}

func Test_RestartCycle(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "mcbridge.snap")

	run := func(restore bool, fn func(addr string)) {
		cfg := testConfig(t, snapshot)
		if !restore {
			cfg.BackendConfig.Restore = ""
		}
		a, stop, err := NewMcBridgeApp(context.Background(), cfg)
		require.NoError(t, err)
		require.NoError(t, a.Start())
		fn(a.Addr())
		stop()
	}

	run(false, func(addr string) {
		require.Equal(t, "STORED\r\n", command(t, addr, "set foo 0 0 3\r\nbar\r\n"))
	})
	run(true, func(addr string) {
		require.Equal(t, "VALUE foo 0 3\r\n", command(t, addr, "get foo\r\n"))
		require.Equal(t, "STORED\r\n", command(t, addr, "set baz 0 0 3\r\nqux\r\n"))
	})
	run(true, func(addr string) {
		require.Equal(t, "VALUE foo 0 3\r\n", command(t, addr, "get foo\r\n"))
		require.Equal(t, "VALUE baz 0 3\r\n", command(t, addr, "get baz\r\n"))
	})
}

func Test_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.BackendConfig.Kind = config.BackendRedis
	cfg.RedisConfig.Addrs = []string{"127.0.0.1:1"}
	cfg.RedisConfig.DialTimeout = 100 * time.Millisecond

	_, _, err := NewMcBridgeApp(context.Background(), cfg)
	require.Error(t, err)
}
