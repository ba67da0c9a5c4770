package lru

import (
	"context"
	"testing"
	"time"
)

func TestLRUExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	p, err := New(Config{Size: 2, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if ok, err := p.Set(ctx, "a", []byte("A"), time.Second); err != nil || !ok {
		t.Fatalf("Set a: ok=%v err=%v", ok, err)
	}
	if v, ok, _ := p.Get(ctx, "a"); !ok || string(v) != "A" {
		t.Fatalf("Get a: ok=%v v=%q", ok, v)
	}

	now = now.Add(time.Second)
	if _, ok, _ := p.Get(ctx, "a"); ok {
		t.Fatal("a should have expired")
	}

	_, _ = p.Set(ctx, "b", []byte("B"), 0)
	_, _ = p.Set(ctx, "c", []byte("C"), 0)
	_, _ = p.Set(ctx, "d", []byte("D"), 0)
	if _, ok, _ := p.Get(ctx, "b"); ok {
		t.Fatal("b should have been evicted")
	}
	if p.Len() != 2 {
		t.Fatalf("Len = %d, want 2", p.Len())
	}

	if err := p.Del(ctx, "missing"); err != nil {
		t.Fatalf("Del missing: %v", err)
	}
}
