package main

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/rpccache"
	c "github.com/unkn0wn-root/rpccache/codec"
	"github.com/unkn0wn-root/rpccache/internal/config"
	pr "github.com/unkn0wn-root/rpccache/provider"
	"github.com/unkn0wn-root/rpccache/provider/bigcache"
	"github.com/unkn0wn-root/rpccache/provider/lru"
	"github.com/unkn0wn-root/rpccache/provider/ristretto"
	"github.com/unkn0wn-root/rpccache/store"
	"github.com/unkn0wn-root/rpccache/store/local"
	"github.com/unkn0wn-root/rpccache/store/redis"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// newCodec stacks the entry codec: base format, then optional compression, then
// the decode size guard.
func newCodec(cfg config.CacheConfig) (c.Codec[rpccache.Entry], error) {
	var base c.Codec[rpccache.Entry]
	switch cfg.Codec {
	case "msgpack":
		base = c.Msgpack[rpccache.Entry]{}
	case "json":
		base = c.JSON[rpccache.Entry]{}
	case "cbor":
		cb, err := c.NewCBOR[rpccache.Entry](true)
		if err != nil {
			return nil, err
		}
		base = cb
	default:
		return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
	}
	if cfg.Compress {
		base = c.Zstd[rpccache.Entry]{Inner: base, MinSize: cfg.CompressMinSize}
	}
	if cfg.MaxEntrySize > 0 {
		base = c.Limit[rpccache.Entry]{Inner: base, MaxDecode: cfg.MaxEntrySize}
	}
	return base, nil
}

func newStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Cache.Store {
	case "redis":
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redis.New(redis.Config{Client: rdb, Namespace: cfg.Cache.Namespace, CloseClient: true})
	case "local":
		p, err := newProvider(cfg.Local)
		if err != nil {
			return nil, err
		}
		return local.New(local.Config{Provider: p, Namespace: cfg.Cache.Namespace, CloseProvider: true})
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Cache.Store)
}

func newProvider(cfg config.LocalConfig) (pr.Provider, error) {
	switch cfg.Provider {
	case "lru":
		return lru.New(lru.Config{Size: cfg.Size})
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: max(cfg.MaxCost/100, 1000), // ~10x expected items at ~1KiB each
			MaxCost:     cfg.MaxCost,
			BufferItems: 64,
		})
	case "bigcache":
		return bigcache.New(bigcache.Config{LifeWindow: cfg.LifeWindow})
	}
	return nil, fmt.Errorf("unknown local provider %q", cfg.Provider)
}
