package config

import (
	"time"

	"github.com/urfave/cli"
)

// Flags ... Command line flags understood by NewConfig
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "YAML file with option defaults, flags set on the command line win",
		},
		&cli.StringFlag{
			Name:  "env",
			Value: "local",
			Usage: "Set the application env",
		},
		// server
		&cli.StringFlag{
			Name:  "addr",
			Value: "localhost:11211",
			Usage: "Text protocol TCP bind address",
		},
		&cli.DurationFlag{
			Name:  "keep-alive",
			Value: 30 * time.Second,
			Usage: "TCP keep-alive period",
		},
		&cli.DurationFlag{
			Name:  "idle-limit",
			Value: 0,
			Usage: "Close connections silent for this long, 0 disables",
		},
		&cli.IntFlag{
			Name:  "max-item-size",
			Value: 1 << 20,
			Usage: "Largest accepted data block in bytes",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log every command before it runs",
		},
		// backend
		&cli.StringFlag{
			Name:  "backend",
			Value: BackendLocal,
			Usage: "Storage backend: local or redis",
		},
		&cli.IntFlag{
			Name:  "shards",
			Value: 256,
			Usage: "Number of local store shards",
		},
		&cli.DurationFlag{
			Name:  "expire-interval",
			Value: 100 * time.Millisecond,
			Usage: "Period of the local expiry sweeper, one shard per tick",
		},
		&cli.StringFlag{
			Name:  "backup",
			Usage: "Write a snapshot of the local store to this file on shutdown",
		},
		&cli.StringFlag{
			Name:  "restore",
			Usage: "Load the local store from this snapshot on start",
		},
		// redis
		&cli.StringSliceFlag{
			Name:  "redis-addr",
			Usage: "Redis address, repeat for a cluster",
		},
		&cli.StringFlag{
			Name:  "redis-password",
			Usage: "Redis password",
		},
		&cli.IntFlag{
			Name:  "redis-db",
			Usage: "Redis database, single node only",
		},
		&cli.StringFlag{
			Name:  "redis-prefix",
			Value: "mcbridge:",
			Usage: "Namespace prefix of every Redis key",
		},
		&cli.IntFlag{
			Name:  "redis-pool-size",
			Usage: "Connections per Redis node, 0 for the client default",
		},
		&cli.DurationFlag{
			Name:  "redis-dial-timeout",
			Value: 5 * time.Second,
			Usage: "Redis dial timeout",
		},
		&cli.DurationFlag{
			Name:  "remove-timeout",
			Value: time.Second,
			Usage: "How long delete waits for Redis to confirm, 0 answers DELETED without waiting",
		},
		// compression
		&cli.BoolFlag{
			Name:  "compress",
			Usage: "Gzip payloads stored in Redis",
		},
		&cli.IntFlag{
			Name:  "compress-threshold",
			Value: 1024,
			Usage: "Smallest payload that gets compressed",
		},
		&cli.IntFlag{
			Name:  "compress-level",
			Usage: "Gzip level, 0 for the default",
		},
		// breaker
		&cli.BoolFlag{
			Name:  "breaker",
			Usage: "Guard the Redis backend with a circuit breaker",
		},
		&cli.Float64Flag{
			Name:  "breaker-error-pct",
			Value: 50,
			Usage: "Error percentage that opens the breaker",
		},
		&cli.DurationFlag{
			Name:  "breaker-window",
			Value: 10 * time.Second,
			Usage: "Sliding window of the error rate",
		},
		&cli.DurationFlag{
			Name:  "breaker-open",
			Value: 5 * time.Second,
			Usage: "Time the breaker stays open before probing",
		},
		&cli.IntFlag{
			Name:  "breaker-probes",
			Value: 1,
			Usage: "Probe calls allowed while half open",
		},
		&cli.IntFlag{
			Name:  "breaker-min-requests",
			Value: 10,
			Usage: "Calls in the window before the breaker may open",
		},
		// admin
		&cli.StringFlag{
			Name:  "admin-addr",
			Value: "localhost:9150",
			Usage: "HTTP address for /metrics, /healthz and /stats, empty disables",
		},
	}
}
