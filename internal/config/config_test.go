package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no rpccache.yaml here

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":3002" || cfg.Upstream != "http://localhost:3001/twirp" || cfg.Prefix != "/twirp" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Cache.Namespace != "twirp-experiment" || cfg.Cache.Workers != 10 || cfg.Cache.Queue != 100 {
		t.Fatalf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Cache.RevalidateTimeout != 30*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("durations: %v %v", cfg.Cache.RevalidateTimeout, cfg.ShutdownTimeout)
	}
}

func TestFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "proxy.yaml")
	yaml := `
listen: ":8080"
upstream: "http://hello:3001/twirp"
cache:
  store: redis
  codec: cbor
  revalidate_timeout: 5s
redis:
  addrs: ["redis-a:6379", "redis-b:6379"]
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RPCCACHE_LISTEN", ":9999")
	t.Setenv("RPCCACHE_CACHE_WORKERS", "3")

	cfg, err := Load(viper.New(), file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9999" {
		t.Fatalf("env did not override file: listen=%q", cfg.Listen)
	}
	if cfg.Upstream != "http://hello:3001/twirp" || cfg.Cache.Store != "redis" || cfg.Cache.Codec != "cbor" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Cache.Workers != 3 || cfg.Cache.RevalidateTimeout != 5*time.Second {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if len(cfg.Redis.Addrs) != 2 || cfg.Redis.Addrs[1] != "redis-b:6379" {
		t.Fatalf("redis.addrs = %v", cfg.Redis.Addrs)
	}
}

func TestMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Listen:   ":3002",
			Upstream: "http://localhost:3001/twirp",
			Prefix:   "/twirp",
			Cache:    CacheConfig{Store: "local", Codec: "msgpack"},
			Local:    LocalConfig{Provider: "lru"},
		}
	}

	tests := []struct {
		name string
		mut  func(*Config)
		want string // substring of the error; "" => valid
	}{
		{"valid", func(*Config) {}, ""},
		{"relative upstream", func(c *Config) { c.Upstream = "localhost:3001" }, "upstream"},
		{"bad prefix", func(c *Config) { c.Prefix = "twirp" }, "prefix"},
		{"bad store", func(c *Config) { c.Cache.Store = "memcached" }, "cache.store"},
		{"bad provider", func(c *Config) { c.Local.Provider = "kioshun" }, "local.provider"},
		{"redis without addrs", func(c *Config) { c.Cache.Store = "redis" }, "redis.addrs"},
		{"bad codec", func(c *Config) { c.Cache.Codec = "gob" }, "cache.codec"},
		{"negative workers", func(c *Config) { c.Cache.Workers = -1 }, "cache.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mut(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
