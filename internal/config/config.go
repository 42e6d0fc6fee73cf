package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/denzelpenzel/mcbridge/internal/common"
	"github.com/denzelpenzel/mcbridge/internal/utils"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

const (
	BackendLocal = "local"
	BackendRedis = "redis"
)

// ServerConfig ... Text protocol listener options
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	KeepAlive   time.Duration `yaml:"keepAlive"`
	IdleLimit   time.Duration `yaml:"idleLimit"`
	MaxItemSize int           `yaml:"maxItemSize"`
	Verbose     bool          `yaml:"verbose"`

	TCPAddr net.Addr `yaml:"-"`
}

// BackendConfig ... Storage selection and local store options
type BackendConfig struct {
	Kind           string        `yaml:"kind"`
	Shards         int           `yaml:"shards"`
	ExpireInterval time.Duration `yaml:"expireInterval"`
	Backup         string        `yaml:"backup"`
	Restore        string        `yaml:"restore"`
}

type RedisConfig struct {
	Addrs         []string      `yaml:"addrs"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	Prefix        string        `yaml:"prefix"`
	PoolSize      int           `yaml:"poolSize"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	RemoveTimeout time.Duration `yaml:"removeTimeout"`
}

type CompressionConfig struct {
	Enabled   bool `yaml:"enabled"`
	Threshold int  `yaml:"threshold"`
	Level     int  `yaml:"level"`
}

type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ErrorPct    float64       `yaml:"errorPct"`
	Window      time.Duration `yaml:"window"`
	OpenFor     time.Duration `yaml:"openFor"`
	Probes      int           `yaml:"probes"`
	MinRequests int           `yaml:"minRequests"`
}

// AdminConfig ... HTTP endpoint for metrics and health, empty Addr disables it
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// Config ... Application level configuration, from flags and an optional YAML file
type Config struct {
	Environment       common.Env         `yaml:"env"`
	ServerConfig      *ServerConfig      `yaml:"server"`
	BackendConfig     *BackendConfig     `yaml:"backend"`
	RedisConfig       *RedisConfig       `yaml:"redis"`
	CompressionConfig *CompressionConfig `yaml:"compression"`
	BreakerConfig     *BreakerConfig     `yaml:"breaker"`
	AdminConfig       *AdminConfig       `yaml:"admin"`
}

// flagSetter copies one flag into the config
type flagSetter struct {
	name  string
	apply func(c *cli.Context, cfg *Config)
}

var setters = []flagSetter{
	{"env", func(c *cli.Context, cfg *Config) { cfg.Environment = common.Env(c.String("env")) }},
	{"addr", func(c *cli.Context, cfg *Config) { cfg.ServerConfig.Addr = c.String("addr") }},
	{"keep-alive", func(c *cli.Context, cfg *Config) { cfg.ServerConfig.KeepAlive = c.Duration("keep-alive") }},
	{"idle-limit", func(c *cli.Context, cfg *Config) { cfg.ServerConfig.IdleLimit = c.Duration("idle-limit") }},
	{"max-item-size", func(c *cli.Context, cfg *Config) { cfg.ServerConfig.MaxItemSize = c.Int("max-item-size") }},
	{"verbose", func(c *cli.Context, cfg *Config) { cfg.ServerConfig.Verbose = c.Bool("verbose") }},

	{"backend", func(c *cli.Context, cfg *Config) { cfg.BackendConfig.Kind = c.String("backend") }},
	{"shards", func(c *cli.Context, cfg *Config) { cfg.BackendConfig.Shards = c.Int("shards") }},
	{"expire-interval", func(c *cli.Context, cfg *Config) { cfg.BackendConfig.ExpireInterval = c.Duration("expire-interval") }},
	{"backup", func(c *cli.Context, cfg *Config) { cfg.BackendConfig.Backup = c.String("backup") }},
	{"restore", func(c *cli.Context, cfg *Config) { cfg.BackendConfig.Restore = c.String("restore") }},

	{"redis-addr", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.Addrs = c.StringSlice("redis-addr") }},
	{"redis-password", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.Password = c.String("redis-password") }},
	{"redis-db", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.DB = c.Int("redis-db") }},
	{"redis-prefix", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.Prefix = c.String("redis-prefix") }},
	{"redis-pool-size", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.PoolSize = c.Int("redis-pool-size") }},
	{"redis-dial-timeout", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.DialTimeout = c.Duration("redis-dial-timeout") }},
	{"remove-timeout", func(c *cli.Context, cfg *Config) { cfg.RedisConfig.RemoveTimeout = c.Duration("remove-timeout") }},

	{"compress", func(c *cli.Context, cfg *Config) { cfg.CompressionConfig.Enabled = c.Bool("compress") }},
	{"compress-threshold", func(c *cli.Context, cfg *Config) { cfg.CompressionConfig.Threshold = c.Int("compress-threshold") }},
	{"compress-level", func(c *cli.Context, cfg *Config) { cfg.CompressionConfig.Level = c.Int("compress-level") }},

	{"breaker", func(c *cli.Context, cfg *Config) { cfg.BreakerConfig.Enabled = c.Bool("breaker") }},
	{"breaker-error-pct", func(c *cli.Context, cfg *Config) { cfg.BreakerConfig.ErrorPct = c.Float64("breaker-error-pct") }},
	{"breaker-window", func(c *cli.Context, cfg *Config) { cfg.BreakerConfig.Window = c.Duration("breaker-window") }},
	{"breaker-open", func(c *cli.Context, cfg *Config) { cfg.BreakerConfig.OpenFor = c.Duration("breaker-open") }},
	{"breaker-probes", func(c *cli.Context, cfg *Config) { cfg.BreakerConfig.Probes = c.Int("breaker-probes") }},
	{"breaker-min-requests", func(c *cli.Context, cfg *Config) { cfg.BreakerConfig.MinRequests = c.Int("breaker-min-requests") }},

	{"admin-addr", func(c *cli.Context, cfg *Config) { cfg.AdminConfig.Addr = c.String("admin-addr") }},
}

func empty() *Config {
	return &Config{
		ServerConfig:      &ServerConfig{},
		BackendConfig:     &BackendConfig{},
		RedisConfig:       &RedisConfig{},
		CompressionConfig: &CompressionConfig{},
		BreakerConfig:     &BreakerConfig{},
		AdminConfig:       &AdminConfig{},
	}
}

// NewConfig ... Flag defaults, then the --config file, then the flags set on the command line
func NewConfig(c *cli.Context) (*Config, error) {
	cfg := empty()
	for _, s := range setters {
		s.apply(c, cfg)
	}

	if path := c.String("config"); path != "" {
		if err := cfg.load(path); err != nil {
			return nil, err
		}
		for _, s := range setters {
			if c.IsSet(s.name) {
				s.apply(c, cfg)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// Validate ... Checks the combination of options and resolves the listen address
func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.Environment {
	case common.Production, common.Development, common.Local:
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", cfg.Environment))
	}

	addr, err := utils.GetTCPAddr(cfg.ServerConfig.Addr)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.ServerConfig.TCPAddr = addr

	if cfg.ServerConfig.MaxItemSize <= 0 {
		errs = append(errs, errors.New("max item size must be positive"))
	}

	switch cfg.BackendConfig.Kind {
	case BackendLocal:
		if cfg.BackendConfig.Shards <= 0 {
			errs = append(errs, errors.New("shards must be positive"))
		}
	case BackendRedis:
		if len(cfg.RedisConfig.Addrs) == 0 {
			errs = append(errs, errors.New("redis backend needs at least one --redis-addr"))
		}
		if cfg.BackendConfig.Backup != "" || cfg.BackendConfig.Restore != "" {
			errs = append(errs, errors.New("backup and restore are only supported by the local backend"))
		}
		if cfg.RedisConfig.RemoveTimeout < 0 {
			errs = append(errs, errors.New("remove timeout must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", cfg.BackendConfig.Kind))
	}

	if cfg.BreakerConfig.Enabled {
		b := cfg.BreakerConfig
		if b.ErrorPct <= 0 || b.ErrorPct > 100 {
			errs = append(errs, fmt.Errorf("breaker error pct %v out of (0, 100]", b.ErrorPct))
		}
		if b.Window <= 0 || b.OpenFor <= 0 {
			errs = append(errs, errors.New("breaker window and open duration must be positive"))
		}
	}

	return errors.Join(errs...)
}

// IsProduction ... Returns true if the env is production
func (cfg *Config) IsProduction() bool {
	return cfg.Environment == common.Production
}

// IsDevelopment ... Returns true if the env is development
func (cfg *Config) IsDevelopment() bool {
	return cfg.Environment == common.Development
}

// IsLocal ... Returns true if the env is local
func (cfg *Config) IsLocal() bool {
	return cfg.Environment == common.Local
}
