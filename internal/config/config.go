// Package config loads rpccache-proxy settings from a config file, RPCCACHE_*
// environment variables and command-line flags (in increasing precedence).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "RPCCACHE"

type Config struct {
	Listen          string        `mapstructure:"listen"`
	MetricsListen   string        `mapstructure:"metrics_listen"` // "" => /metrics on the main listener
	Upstream        string        `mapstructure:"upstream"`
	Prefix          string        `mapstructure:"prefix"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Log   LogConfig   `mapstructure:"log"`
	Cache CacheConfig `mapstructure:"cache"`
	Redis RedisConfig `mapstructure:"redis"`
	Local LocalConfig `mapstructure:"local"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type CacheConfig struct {
	Disabled          bool          `mapstructure:"disabled"`
	Store             string        `mapstructure:"store"` // local | redis
	Namespace         string        `mapstructure:"namespace"`
	Codec             string        `mapstructure:"codec"` // msgpack | cbor | json
	Compress          bool          `mapstructure:"compress"`
	CompressMinSize   int           `mapstructure:"compress_min_size"`
	MaxEntrySize      int           `mapstructure:"max_entry_size"` // 0 => unlimited
	Workers           int           `mapstructure:"workers"`
	Queue             int           `mapstructure:"queue"`
	RevalidateTimeout time.Duration `mapstructure:"revalidate_timeout"`
}

type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

type LocalConfig struct {
	Provider   string        `mapstructure:"provider"` // lru | ristretto | bigcache
	Size       int           `mapstructure:"size"`     // lru entries
	MaxCost    int64         `mapstructure:"max_cost"` // ristretto bytes
	LifeWindow time.Duration `mapstructure:"life_window"`
}

// SetDefaults registers every key so env overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":3002")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("upstream", "http://localhost:3001/twirp")
	v.SetDefault("prefix", "/twirp")
	v.SetDefault("max_body_size", 1<<20)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("cache.disabled", false)
	v.SetDefault("cache.store", "local")
	v.SetDefault("cache.namespace", "twirp-experiment")
	v.SetDefault("cache.codec", "msgpack")
	v.SetDefault("cache.compress", true)
	v.SetDefault("cache.compress_min_size", 1024)
	v.SetDefault("cache.max_entry_size", 0)
	v.SetDefault("cache.workers", 10)
	v.SetDefault("cache.queue", 100)
	v.SetDefault("cache.revalidate_timeout", 30*time.Second)

	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("local.provider", "lru")
	v.SetDefault("local.size", 10_000)
	v.SetDefault("local.max_cost", 64<<20)
	v.SetDefault("local.life_window", time.Hour)
}

// Load reads file (if set; otherwise an optional "rpccache.yaml" in the working
// directory), applies RPCCACHE_* env overrides and validates the result. Flags must
// already be bound to v.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // cache.store => RPCCACHE_CACHE_STORE
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("rpccache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if u, err := url.Parse(c.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream %q is not an absolute URL", c.Upstream))
	}
	if !strings.HasPrefix(c.Prefix, "/") {
		errs = append(errs, fmt.Errorf("prefix %q must start with /", c.Prefix))
	}
	switch c.Cache.Store {
	case "local":
		switch c.Local.Provider {
		case "lru", "ristretto", "bigcache":
		default:
			errs = append(errs, fmt.Errorf("local.provider %q: want lru, ristretto or bigcache", c.Local.Provider))
		}
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("redis.addrs is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.store %q: want local or redis", c.Cache.Store))
	}
	switch c.Cache.Codec {
	case "msgpack", "cbor", "json":
	default:
		errs = append(errs, fmt.Errorf("cache.codec %q: want msgpack, cbor or json", c.Cache.Codec))
	}
	if c.Cache.Workers < 0 || c.Cache.Queue < 0 {
		errs = append(errs, errors.New("cache.workers and cache.queue must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
