// Package local implements store.Store in process on top of any provider.Provider.
//
// Values are wrapped in a small frame carrying the CAS version and the absolute
// expiry, so providers without per-entry TTLs (BigCache) or without atomic
// compare-and-set (all of them) still give correct CAS semantics. Writers are
// serialized per key with striped mutexes; readers never lock.
//
// CAS holds within one process only. For several processes sharing a cache use
// store/redis.
package local

import (
	"context"
	"errors"
	"hash/maphash"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/rpccache/internal/util"
	"github.com/unkn0wn-root/rpccache/internal/wire"
	pr "github.com/unkn0wn-root/rpccache/provider"
	"github.com/unkn0wn-root/rpccache/store"
)

var ErrNilProvider = errors.New("local store: nil provider")

const stripes = 256

type Store struct {
	p     pr.Provider
	ns    string
	now   func() time.Time
	owned bool

	seed  maphash.Seed
	locks [stripes]sync.Mutex
	seq   atomic.Uint64
}

var _ store.Store = (*Store)(nil)

type Config struct {
	Provider  pr.Provider
	Namespace string           // optional key prefix
	Now       func() time.Time // nil => time.Now
	// CloseProvider makes Close also close the provider.
	CloseProvider bool
}

func New(cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, ErrNilProvider
	}
	s := &Store{
		p:     cfg.Provider,
		ns:    cfg.Namespace,
		now:   cfg.Now,
		owned: cfg.CloseProvider,
		seed:  maphash.MakeSeed(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *Store) Read(ctx context.Context, key string) ([]byte, store.Token, error) {
	k := util.Namespaced(s.ns, key)
	f, ok, err := s.load(ctx, k, false)
	if err != nil || !ok {
		return nil, store.Absent, err
	}
	out := make([]byte, len(f.Payload))
	copy(out, f.Payload)
	return out, store.Version(f.Version), nil
}

func (s *Store) Write(ctx context.Context, key string, value []byte, ttl time.Duration, tok store.Token) (bool, error) {
	k := util.Namespaced(s.ns, key)

	mu := s.lockFor(k)
	mu.Lock()
	defer mu.Unlock()

	cur, present, err := s.load(ctx, k, true)
	if err != nil {
		return false, err
	}
	if !tok.Matches(present, cur.Version) {
		return false, nil
	}

	f := wire.Frame{Version: s.seq.Add(1), Payload: value}
	if ttl > 0 {
		f.ExpiresAt = s.now().Add(ttl).UnixNano()
	} else {
		ttl = 0
	}
	return s.p.Set(ctx, k, wire.Encode(f), ttl)
}

func (s *Store) Close(ctx context.Context) error {
	if s.owned {
		return s.p.Close(ctx)
	}
	return nil
}

// load returns the live frame for a storage key. Corrupt or expired frames are
// reported as absent; with heal set (caller holds the key's lock) they are also
// deleted.
func (s *Store) load(ctx context.Context, k string, heal bool) (wire.Frame, bool, error) {
	raw, ok, err := s.p.Get(ctx, k)
	if err != nil || !ok {
		return wire.Frame{}, false, err
	}
	f, err := wire.Decode(raw)
	if err != nil || f.Expired(s.now().UnixNano()) {
		if heal {
			_ = s.p.Del(ctx, k)
		}
		return wire.Frame{}, false, nil
	}
	return f, true, nil
}

func (s *Store) lockFor(k string) *sync.Mutex {
	return &s.locks[maphash.String(s.seed, k)%stripes]
}
