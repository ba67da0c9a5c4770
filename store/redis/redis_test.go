package redis

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/rpccache/store"
)

// newTestStore connects to RPCCACHE_REDIS_ADDR; tests are skipped without it.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("RPCCACHE_REDIS_ADDR")
	if addr == "" {
		t.Skip("RPCCACHE_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	s, err := New(Config{Client: rdb, Namespace: "rpccache-test-" + uuid.NewString(), CloseClient: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("err = %v, want ErrNilClient", err)
	}
}

func TestTokenArg(t *testing.T) {
	if got := tokenArg(store.Absent); got != tokAbsent {
		t.Fatalf("absent -> %q", got)
	}
	if got := tokenArg(store.Unconditional); got != tokAny {
		t.Fatalf("unconditional -> %q", got)
	}
	if got := tokenArg(store.Version(0)); got != "0" {
		t.Fatalf("version 0 -> %q", got)
	}
	if got := tokenArg(store.Version(42)); got != "42" {
		t.Fatalf("version 42 -> %q", got)
	}
}

func TestRedisCASFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v, tok, err := s.Read(ctx, "k")
	if err != nil || v != nil || !tok.IsAbsent() {
		t.Fatalf("initial Read: v=%q tok=%v err=%v", v, tok, err)
	}
	if ok, err := s.Write(ctx, "k", []byte("one"), time.Minute, tok); err != nil || !ok {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Write(ctx, "k", []byte("dup"), time.Minute, store.Absent); ok {
		t.Fatal("create-only write over existing entry applied")
	}

	v1, tok1, err := s.Read(ctx, "k")
	if err != nil || string(v1) != "one" {
		t.Fatalf("Read: v=%q err=%v", v1, err)
	}
	if ok, _ := s.Write(ctx, "k", []byte("two"), time.Minute, tok1); !ok {
		t.Fatal("write with current token rejected")
	}
	if ok, _ := s.Write(ctx, "k", []byte("stale"), time.Minute, tok1); ok {
		t.Fatal("write with stale token applied")
	}
	if ok, _ := s.Write(ctx, "k", []byte("forced"), time.Minute, store.Unconditional); !ok {
		t.Fatal("unconditional write rejected")
	}
	if v, _, _ := s.Read(ctx, "k"); string(v) != "forced" {
		t.Fatalf("Read = %q", v)
	}
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if ok, err := s.Write(ctx, "ttl", []byte("v"), 100*time.Millisecond, store.Absent); err != nil || !ok {
		t.Fatalf("Write: ok=%v err=%v", ok, err)
	}
	time.Sleep(250 * time.Millisecond)
	if v, tok, err := s.Read(ctx, "ttl"); err != nil || v != nil || !tok.IsAbsent() {
		t.Fatalf("expected expiry: v=%q tok=%v err=%v", v, tok, err)
	}
}

func TestRedisConcurrentStaleWriters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _ = s.Write(ctx, "race", []byte("seed"), time.Minute, store.Absent)
	_, tok, _ := s.Read(ctx, "race")

	const writers = 16
	var applied atomic.Int32
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			if ok, _ := s.Write(ctx, "race", []byte("w"), time.Minute, tok); ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	if n := applied.Load(); n != 1 {
		t.Fatalf("applied writes = %d, want 1", n)
	}
}
