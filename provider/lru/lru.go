// Package lru is a bounded in-process provider on top of hashicorp/golang-lru.
// Least recently used entries are evicted once Size is reached; expiry is tracked
// per entry and checked lazily on Get.
package lru

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	pr "github.com/unkn0wn-root/rpccache/provider"
)

const DefaultSize = 10_000

type item struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Provider struct {
	c   *lru.Cache[string, item]
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	Size int              // 0 => DefaultSize
	Now  func() time.Time // nil => time.Now
}

func New(cfg Config) (*Provider, error) {
	if cfg.Size < 0 {
		return nil, errors.New("lru: negative size")
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c, err := lru.New[string, item](cfg.Size)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: cfg.Now}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	it, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !it.exp.IsZero() && !p.now().Before(it.exp) {
		p.c.Remove(key)
		return nil, false, nil
	}
	return it.v, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	p.c.Add(key, item{v: value, exp: exp})
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}

// Len reports the number of entries currently held, expired ones included.
func (p *Provider) Len() int { return p.c.Len() }
