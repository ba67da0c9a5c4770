// Package redis implements store.Store on Redis.
//
// Each entry is a hash under "<ns>:<key>" with two fields: v (the CAS version, a
// random non-zero uint64) and d (the value). The conditional write is one Lua
// script touching a single key, so it is atomic and cluster-safe. Versions are
// random rather than counters so a key that expires and is recreated can never
// hand an old token a matching version.
package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rpccache/internal/util"
	"github.com/unkn0wn-root/rpccache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

const (
	fieldVersion = "v"
	fieldData    = "d"

	tokAbsent = "-"
	tokAny    = "*"
)

// KEYS[1] entry key
// ARGV[1] token ("-" absent, "*" unconditional, else version)
// ARGV[2] new version  ARGV[3] value  ARGV[4] ttl in ms (<= 0: persist)
var casWrite = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
local tok = ARGV[1]
if tok == '-' then
  if cur then return 0 end
elseif tok ~= '*' then
  if (not cur) or cur ~= tok then return 0 end
end
redis.call('HSET', KEYS[1], 'v', ARGV[2], 'd', ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
else
  redis.call('PERSIST', KEYS[1])
end
return 1
`)

type Store struct {
	rdb         goredis.UniversalClient
	ns          string
	closeClient bool
}

var _ store.Store = (*Store)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Namespace   string // e.g. "twirp-experiment"
	CloseClient bool   // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: cfg.Client, ns: cfg.Namespace, closeClient: cfg.CloseClient}, nil
}

func (s *Store) key(k string) string { return util.Namespaced(s.ns, k) }

func (s *Store) Read(ctx context.Context, key string) ([]byte, store.Token, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(key), fieldVersion, fieldData).Result()
	if err != nil {
		return nil, store.Absent, err // transport/server error
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, store.Absent, nil // miss
	}

	verStr, ok1 := vals[0].(string)
	data, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, store.Absent, fmt.Errorf("redis store: unexpected reply types %T, %T", vals[0], vals[1])
	}
	ver, err := strconv.ParseUint(verStr, 10, 64)
	if err != nil {
		return nil, store.Absent, fmt.Errorf("redis store: version parse: %w", err)
	}
	return []byte(data), store.Version(ver), nil
}

func (s *Store) Write(ctx context.Context, key string, value []byte, ttl time.Duration, tok store.Token) (bool, error) {
	n, err := casWrite.Run(ctx, s.rdb, []string{s.key(key)},
		tokenArg(tok),
		strconv.FormatUint(newVersion(), 10),
		value,
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func tokenArg(t store.Token) string {
	if t.IsUnconditional() {
		return tokAny
	}
	if v, ok := t.Version(); ok {
		return strconv.FormatUint(v, 10)
	}
	return tokAbsent
}

func newVersion() uint64 {
	for {
		if v := rand.Uint64(); v != 0 {
			return v
		}
	}
}
